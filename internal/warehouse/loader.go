// Package warehouse loads a staged CSV file into a warehouse table with a
// staging-table merge executed as one transaction.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/stageload/pkg/logger"
	"github.com/BartekS5/stageload/pkg/models"
)

// cleanupTimeout bounds the best-effort staging drop after a failed load.
const cleanupTimeout = 10 * time.Second

// Connector hands out a single warehouse session. *sql.DB satisfies it.
type Connector interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Request describes one load.
type Request struct {
	RunID string
	Table string
	// Source is the fully-qualified stage file location.
	Source string
	// Credential is passed through to the engine's bulk copy.
	Credential string
}

// Result summarizes a committed load.
type Result struct {
	RunID    models.RunID
	Table    string
	Staging  string
	Replaced int64
	Inserted int64
	Duration time.Duration
}

// NetNew is the change in the Target Table's row count.
func (r *Result) NetNew() int64 { return r.Inserted - r.Replaced }

// Loader runs the merge protocol against one engine.
type Loader struct {
	dialect  Dialect
	conn     Connector
	newToken func() string
}

func NewLoader(d Dialect, c Connector) *Loader {
	return &Loader{
		dialect: d,
		conn:    c,
		newToken: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// Load merges the stage file named by req into the Target Table. Either every
// staged row is present afterwards, with rows sharing an id replaced, or the
// Target Table is unchanged and the error says why.
func (l *Loader) Load(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	run, target, err := l.validate(req)
	if err != nil {
		return nil, err
	}

	session, err := l.conn.Conn(ctx)
	if err != nil {
		return nil, &ConnectionError{Engine: l.dialect.Name(), Err: err}
	}
	defer session.Close()

	if err := session.PingContext(ctx); err != nil {
		return nil, &ConnectionError{Engine: l.dialect.Name(), Err: err}
	}

	staging := l.dialect.StagingIdent(l.newToken())
	res := &Result{RunID: run, Table: target.String(), Staging: staging.String()}

	tx, err := session.BeginTx(ctx, nil)
	if err != nil {
		return nil, &ConnectionError{Engine: l.dialect.Name(), Err: err}
	}

	for _, st := range plan(l.dialect, target, staging, req.Source, req.Credential) {
		logger.Debugw("load step", "run", run, "table", res.Table, "step", st.step)
		r, err := tx.ExecContext(ctx, st.sql)
		if err != nil {
			return nil, l.abort(ctx, session, tx, staging, st.step, err)
		}
		switch st.step {
		case StepDelete:
			res.Replaced = rowsAffected(r)
		case StepInsert:
			res.Inserted = rowsAffected(r)
		}
	}

	if err := tx.Commit(); err != nil {
		l.dropStaging(ctx, session, staging)
		return nil, &LoadExecutionError{Step: StepCommit, Code: l.dialect.ErrorCode(err), Err: err}
	}

	res.Duration = time.Since(start)
	logger.Infow("load committed",
		"run", run,
		"table", res.Table,
		"replaced", res.Replaced,
		"inserted", res.Inserted,
		"duration", res.Duration,
	)
	return res, nil
}

func (l *Loader) validate(req Request) (models.RunID, Ident, error) {
	run, err := models.ParseRunID(req.RunID)
	if err != nil {
		return "", Ident{}, &InvalidInputError{Field: "run identifier", Value: req.RunID, Err: err}
	}
	target, err := ParseIdent(req.Table)
	if err != nil {
		return "", Ident{}, &InvalidInputError{Field: "table name", Value: req.Table, Err: err}
	}
	if err := l.dialect.ValidateSource(req.Source, req.Credential); err != nil {
		return "", Ident{}, &InvalidInputError{Field: "stage file location", Value: req.Source, Err: err}
	}
	return run, target, nil
}

// abort rolls the transaction back and makes sure the staging table is gone
// from the session before it is released.
func (l *Loader) abort(ctx context.Context, session *sql.Conn, tx *sql.Tx, staging Ident, step Step, cause error) error {
	loadErr := &LoadExecutionError{Step: step, Code: l.dialect.ErrorCode(cause), Err: cause}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		loadErr.RollbackErr = err
	}
	l.dropStaging(ctx, session, staging)
	logger.Errorw("load rolled back", "staging", staging.String(), "step", step, "error", cause)
	return loadErr
}

func (l *Loader) dropStaging(ctx context.Context, session *sql.Conn, staging Ident) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if _, err := session.ExecContext(cctx, l.dialect.DropIfExists(staging)); err != nil {
		logger.Warnw("staging cleanup failed", "staging", staging.String(), "error", err)
	}
}

func rowsAffected(r sql.Result) int64 {
	n, err := r.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
