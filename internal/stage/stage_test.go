package stage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/stageload/pkg/models"
)

type fakeS3 struct {
	buckets map[string]bool
	objects map[string]string
	created []*s3.CreateBucketInput
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{buckets: map[string]bool{}, objects: map[string]string{}}
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if !f.buckets[aws.ToString(in.Bucket)] {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = append(f.created, in)
	f.buckets[aws.ToString(in.Bucket)] = true
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(b)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3WriterCreatesBucketAndUploads(t *testing.T) {
	fake := newFakeS3()
	w := NewS3Writer(fake, "reddit-stage", "eu-west-1")
	run := models.RunID("20240101")

	ok, err := w.Exists(context.Background(), run)
	require.NoError(t, err)
	assert.False(t, ok)

	loc, err := w.Write(context.Background(), run, strings.NewReader("id\nA\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3://reddit-stage/20240101.csv", loc)
	assert.Equal(t, "id\nA\n", fake.objects["reddit-stage/20240101.csv"])

	require.Len(t, fake.created, 1)
	require.NotNil(t, fake.created[0].CreateBucketConfiguration)
	assert.Equal(t, types.BucketLocationConstraint("eu-west-1"), fake.created[0].CreateBucketConfiguration.LocationConstraint)

	ok, err = w.Exists(context.Background(), run)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second write finds the bucket.
	_, err = w.Write(context.Background(), run, strings.NewReader("id\nB\n"))
	require.NoError(t, err)
	assert.Len(t, fake.created, 1)
}

func TestS3WriterUSEast1OmitsLocationConstraint(t *testing.T) {
	fake := newFakeS3()
	w := NewS3Writer(fake, "b", "us-east-1")
	require.NoError(t, w.EnsureBucket(context.Background()))
	require.Len(t, fake.created, 1)
	assert.Nil(t, fake.created[0].CreateBucketConfiguration)
}

func TestS3WriterSurfacesUploadError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")
	w := NewS3Writer(fake, "b", "us-east-1")

	_, err := w.Write(context.Background(), "20240101", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b/20240101.csv")
}

func TestLocalWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "stage")
	w, err := NewLocalWriter(dir)
	require.NoError(t, err)
	run := models.RunID("20240102")

	ok, err := w.Exists(context.Background(), run)
	require.NoError(t, err)
	assert.False(t, ok)

	loc, err := w.Write(context.Background(), run, strings.NewReader("id\nA\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20240102.csv"), loc)

	b, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "id\nA\n", string(b))

	ok, err = w.Exists(context.Background(), run)
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
