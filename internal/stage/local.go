package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BartekS5/stageload/pkg/models"
)

// LocalWriter keeps stage files in a directory, for engines that bulk load
// from the filesystem.
type LocalWriter struct {
	dir string
}

// NewLocalWriter resolves dir to an absolute path so locations stay valid
// for a warehouse process with a different working directory.
func NewLocalWriter(dir string) (*LocalWriter, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve stage dir %s: %w", dir, err)
	}
	return &LocalWriter{dir: abs}, nil
}

func (w *LocalWriter) Location(run models.RunID) string {
	return filepath.Join(w.dir, run.FileName())
}

func (w *LocalWriter) Write(_ context.Context, run models.RunID, body io.ReadSeeker) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create stage dir: %w", err)
	}
	loc := w.Location(run)
	tmp, err := os.CreateTemp(w.dir, "."+run.FileName()+"-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", loc, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), loc); err != nil {
		return "", fmt.Errorf("place %s: %w", loc, err)
	}
	return loc, nil
}

func (w *LocalWriter) Exists(_ context.Context, run models.RunID) (bool, error) {
	_, err := os.Stat(w.Location(run))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
