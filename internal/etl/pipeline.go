package etl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BartekS5/stageload/internal/ledger"
	"github.com/BartekS5/stageload/internal/warehouse"
	"github.com/BartekS5/stageload/pkg/logger"
	"github.com/BartekS5/stageload/pkg/models"
)

// Pipeline runs one daily run end to end: extract, write the stage file,
// upload it, and merge it into the warehouse.
type Pipeline struct {
	Extractor  Extractor
	Stager     StageWriter
	Loader     Loader
	Recorder   ledger.Recorder
	Engine     string
	Table      string
	Credential string
	// WorkDir holds the extracted CSV before it is staged.
	WorkDir string
	// LoadTimeout bounds the warehouse merge. Zero means no bound.
	LoadTimeout time.Duration
	DryRun      bool
}

// Run executes every stage for runID. With DryRun set it stops after the
// stage file is written locally.
func (p *Pipeline) Run(ctx context.Context, runID string) (*warehouse.Result, error) {
	run, err := parseRun(runID)
	if err != nil {
		return nil, err
	}
	if !p.DryRun {
		if err := p.checkTable(); err != nil {
			return nil, err
		}
	}
	logger.Infof("Starting pipeline for run %s. DryRun: %v", run, p.DryRun)
	startTime := time.Now()

	path, err := p.Extract(ctx, run)
	if err != nil {
		return nil, err
	}
	if p.DryRun {
		logger.Infof("[DRY RUN] Stage file written to %s; skipping upload and load", path)
		return nil, nil
	}

	source, err := p.Stage(ctx, run, path)
	if err != nil {
		return nil, err
	}

	res, err := p.load(ctx, run, source)
	if err != nil {
		return nil, err
	}
	logger.Infof("Pipeline finished for run %s in %s. Net new rows: %d", run, time.Since(startTime).Round(time.Millisecond), res.NetNew())
	return res, nil
}

// Extract pulls the run's posts and writes them to WorkDir/<run>.csv.
func (p *Pipeline) Extract(ctx context.Context, run models.RunID) (string, error) {
	records, err := p.Extractor.Extract(ctx, run)
	if err != nil {
		return "", fmt.Errorf("extract run %s: %w", run, err)
	}

	if err := os.MkdirAll(p.WorkDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(p.WorkDir, run.FileName())
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteCSV(f, records); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	logger.Infof("Wrote %d records to %s", len(records), path)
	return path, nil
}

// Stage checks that a local stage file parses, uploads it and returns its
// location.
func (p *Pipeline) Stage(ctx context.Context, run models.RunID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return "", fmt.Errorf("check %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	loc, err := p.Stager.Write(ctx, run, f)
	if err != nil {
		return "", fmt.Errorf("stage run %s: %w", run, err)
	}
	logger.Infof("Staged %d records from %s at %s", len(records), path, loc)
	return loc, nil
}

// Load merges an already staged run into the warehouse.
func (p *Pipeline) Load(ctx context.Context, runID string) (*warehouse.Result, error) {
	run, err := parseRun(runID)
	if err != nil {
		return nil, err
	}
	if err := p.checkTable(); err != nil {
		return nil, err
	}
	ok, err := p.Stager.Exists(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("check stage file for run %s: %w", run, err)
	}
	if !ok {
		return nil, &warehouse.InvalidInputError{
			Field: "stage file location",
			Value: p.Stager.Location(run),
			Err:   os.ErrNotExist,
		}
	}
	return p.load(ctx, run, p.Stager.Location(run))
}

func (p *Pipeline) load(ctx context.Context, run models.RunID, source string) (*warehouse.Result, error) {
	rec := p.recorder()
	entry := ledger.NewEntry(run.String(), p.Table, p.Engine, source)

	if n, err := rec.Running(ctx, run.String()); err != nil {
		logger.Warnf("Could not query load history: %v", err)
	} else if n > 0 {
		logger.Warnf("%d unfinished load(s) already recorded for run %s", n, run)
	}
	if err := rec.Start(ctx, entry); err != nil {
		logger.Warnf("Could not record load start: %v", err)
	}

	lctx, cancel := ctx, context.CancelFunc(func() {})
	if p.LoadTimeout > 0 {
		lctx, cancel = context.WithTimeout(ctx, p.LoadTimeout)
	}
	res, err := p.Loader.Load(lctx, warehouse.Request{
		RunID:      run.String(),
		Table:      p.Table,
		Source:     source,
		Credential: p.Credential,
	})
	cancel()

	entry.Complete(res, err)
	if ferr := rec.Finish(context.WithoutCancel(ctx), entry); ferr != nil {
		logger.Warnf("Could not record load outcome: %v", ferr)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) recorder() ledger.Recorder {
	if p.Recorder == nil {
		return ledger.NopRecorder{}
	}
	return p.Recorder
}

func (p *Pipeline) checkTable() error {
	if _, err := warehouse.ParseIdent(p.Table); err != nil {
		return &warehouse.InvalidInputError{Field: "table name", Value: p.Table, Err: err}
	}
	return nil
}

func parseRun(runID string) (models.RunID, error) {
	run, err := models.ParseRunID(runID)
	if err != nil {
		return "", &warehouse.InvalidInputError{Field: "run identifier", Value: runID, Err: err}
	}
	return run, nil
}
