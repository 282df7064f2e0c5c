package etl

import (
	"context"
	"io"

	"github.com/BartekS5/stageload/internal/warehouse"
	"github.com/BartekS5/stageload/pkg/models"
)

// Extractor pulls one run's row-set from the content source.
type Extractor interface {
	Extract(ctx context.Context, run models.RunID) ([]models.Record, error)
}

// StageWriter places a run's stage file where the warehouse can bulk load it.
type StageWriter interface {
	Location(run models.RunID) string
	Write(ctx context.Context, run models.RunID, body io.ReadSeeker) (string, error)
	Exists(ctx context.Context, run models.RunID) (bool, error)
}

type Loader interface {
	Load(ctx context.Context, req warehouse.Request) (*warehouse.Result, error)
}
