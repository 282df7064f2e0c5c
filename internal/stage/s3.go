// Package stage places stage files where the warehouse's bulk copy can read
// them, keyed by run identifier.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/BartekS5/stageload/internal/config"
	"github.com/BartekS5/stageload/pkg/logger"
	"github.com/BartekS5/stageload/pkg/models"
)

// S3API is the subset of *s3.Client the writer uses.
type S3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// NewS3Client builds a client from the default AWS credential chain, or from
// static keys when both are configured.
func NewS3Client(ctx context.Context, cfg config.StageConfig) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// S3Writer stores stage files as s3://<bucket>/<run>.csv.
type S3Writer struct {
	client S3API
	bucket string
	region string
}

func NewS3Writer(client S3API, bucket, region string) *S3Writer {
	return &S3Writer{client: client, bucket: bucket, region: region}
}

func (w *S3Writer) Location(run models.RunID) string {
	return fmt.Sprintf("s3://%s/%s", w.bucket, run.FileName())
}

// EnsureBucket creates the bucket if it does not exist yet.
func (w *S3Writer) EnsureBucket(ctx context.Context) error {
	_, err := w.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(w.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket %s: %w", w.bucket, err)
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(w.bucket)}
	// us-east-1 rejects an explicit location constraint.
	if w.region != "" && w.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(w.region),
		}
	}
	if _, err := w.client.CreateBucket(ctx, in); err != nil {
		return fmt.Errorf("create bucket %s: %w", w.bucket, err)
	}
	logger.Infof("Created bucket %s in %s", w.bucket, w.region)
	return nil
}

// Write uploads body as the run's stage file and returns its location.
func (w *S3Writer) Write(ctx context.Context, run models.RunID, body io.ReadSeeker) (string, error) {
	if err := w.EnsureBucket(ctx); err != nil {
		return "", err
	}
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(run.FileName()),
		Body:        body,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", w.Location(run), err)
	}
	loc := w.Location(run)
	logger.Infof("Uploaded stage file to %s", loc)
	return loc, nil
}

// Exists reports whether the run's stage file is present.
func (w *S3Writer) Exists(ctx context.Context, run models.RunID) (bool, error) {
	_, err := w.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(run.FileName()),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", w.Location(run), err)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsb *types.NoSuchBucket
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsb) || errors.As(err, &nsk) {
		return true
	}
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		switch coded.ErrorCode() {
		case "NotFound", "NoSuchBucket", "NoSuchKey":
			return true
		}
	}
	return false
}
