// Package ledger records every load attempt so operators can see what ran,
// what it changed, and why it failed.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/stageload/internal/warehouse"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Entry is one load attempt.
type Entry struct {
	LoadID     string     `bson:"_id" json:"load_id"`
	RunID      string     `bson:"run_id" json:"run_id"`
	Table      string     `bson:"table" json:"table"`
	Engine     string     `bson:"engine" json:"engine"`
	Source     string     `bson:"source" json:"source"`
	Status     Status     `bson:"status" json:"status"`
	Step       string     `bson:"step,omitempty" json:"step,omitempty"`
	ErrorCode  string     `bson:"error_code,omitempty" json:"error_code,omitempty"`
	Error      string     `bson:"error,omitempty" json:"error,omitempty"`
	RolledBack bool       `bson:"rolled_back" json:"rolled_back"`
	Replaced   int64      `bson:"replaced" json:"replaced"`
	Inserted   int64      `bson:"inserted" json:"inserted"`
	StartedAt  time.Time  `bson:"started_at" json:"started_at"`
	FinishedAt *time.Time `bson:"finished_at,omitempty" json:"finished_at,omitempty"`
}

// NewEntry starts a running entry with a fresh load id.
func NewEntry(run, table, engine, source string) *Entry {
	return &Entry{
		LoadID:    uuid.NewString(),
		RunID:     run,
		Table:     table,
		Engine:    engine,
		Source:    source,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

// Complete fills in the outcome of the load. A failure is marked RolledBack
// when it happened inside the merge transaction rather than before it opened.
func (e *Entry) Complete(res *warehouse.Result, err error) {
	now := time.Now().UTC()
	e.FinishedAt = &now
	if err == nil {
		e.Status = StatusSucceeded
		if res != nil {
			e.Replaced = res.Replaced
			e.Inserted = res.Inserted
		}
		return
	}
	e.Status = StatusFailed
	e.Error = err.Error()
	e.RolledBack = !warehouse.IsFatalBeforeMutation(err)
	var loadErr *warehouse.LoadExecutionError
	if errors.As(err, &loadErr) {
		e.Step = string(loadErr.Step)
		e.ErrorCode = loadErr.Code
	}
}

// Recorder persists entries. Implementations must tolerate Finish without a
// prior successful Start.
type Recorder interface {
	Start(ctx context.Context, e *Entry) error
	Finish(ctx context.Context, e *Entry) error
	List(ctx context.Context, run string, limit int64) ([]Entry, error)
	// Running counts unfinished entries for run.
	Running(ctx context.Context, run string) (int64, error)
	Close(ctx context.Context) error
}

// NopRecorder is used when no ledger store is configured.
type NopRecorder struct{}

func (NopRecorder) Start(context.Context, *Entry) error                  { return nil }
func (NopRecorder) Finish(context.Context, *Entry) error                 { return nil }
func (NopRecorder) List(context.Context, string, int64) ([]Entry, error) { return nil, nil }
func (NopRecorder) Running(context.Context, string) (int64, error)       { return 0, nil }
func (NopRecorder) Close(context.Context) error                          { return nil }

var (
	_ Recorder = NopRecorder{}
	_ Recorder = (*MongoRecorder)(nil)
)
