package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BartekS5/stageload/internal/config"
	"github.com/BartekS5/stageload/internal/etl"
	"github.com/BartekS5/stageload/internal/ledger"
	"github.com/BartekS5/stageload/internal/stage"
	"github.com/BartekS5/stageload/internal/warehouse"
	"github.com/BartekS5/stageload/pkg/database"
	"github.com/BartekS5/stageload/pkg/logger"
	"github.com/BartekS5/stageload/pkg/models"
)

// env holds what a command opened; close releases it in reverse order.
type env struct {
	cfg     *config.Config
	closers []func()
}

func setup(opts *Options) (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if opts.Table != "" {
		cfg.Warehouse.Table = opts.Table
	}
	if err := logger.InitLogger(cfg.LogFile, cfg.LogDebug); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	e := &env{cfg: cfg}
	e.onClose(logger.Close)
	return e, nil
}

func (e *env) onClose(f func()) { e.closers = append(e.closers, f) }

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// workDir holds extracted CSVs. The local stage backend uses its "stage"
// subdirectory.
func (e *env) workDir() string { return e.cfg.Stage.LocalDir }

func (e *env) extractor() (etl.Extractor, error) {
	if err := e.cfg.Reddit.Validate(); err != nil {
		return nil, err
	}
	return etl.NewRedditExtractor(e.cfg.Reddit), nil
}

func (e *env) stager(ctx context.Context) (etl.StageWriter, error) {
	if err := e.cfg.Stage.Validate(); err != nil {
		return nil, err
	}
	if e.cfg.Stage.Backend == "local" {
		return stage.NewLocalWriter(filepath.Join(e.cfg.Stage.LocalDir, "stage"))
	}
	client, err := stage.NewS3Client(ctx, e.cfg.Stage)
	if err != nil {
		return nil, err
	}
	return stage.NewS3Writer(client, e.cfg.Stage.Bucket, e.cfg.Stage.Region), nil
}

func (e *env) warehouse() (warehouse.Dialect, *sql.DB, error) {
	w := e.cfg.Warehouse
	if err := w.Validate(); err != nil {
		return nil, nil, err
	}
	d, err := warehouse.DialectFor(w.Engine)
	if err != nil {
		return nil, nil, err
	}
	dsn := w.DSN
	if dsn == "" {
		dsn = d.DSN(warehouse.ConnParams{
			Host:     w.Host,
			Port:     w.Port,
			User:     w.User,
			Password: w.Password,
			Database: w.Database,
		})
	}
	db, err := database.OpenSQL(d.DriverName(), dsn)
	if err != nil {
		return nil, nil, &warehouse.ConnectionError{Engine: d.Name(), Err: err}
	}
	e.onClose(func() { db.Close() })
	return d, db, nil
}

// recorder falls back to a no-op ledger when history is disabled or the
// store is unreachable.
func (e *env) recorder(ctx context.Context) ledger.Recorder {
	if !e.cfg.History.Enabled() {
		return ledger.NopRecorder{}
	}
	rec, err := ledger.NewMongoRecorder(ctx, e.cfg.History)
	if err != nil {
		logger.Warnf("Load history unavailable, continuing without it: %v", err)
		return ledger.NopRecorder{}
	}
	e.onClose(func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rec.Close(cctx)
	})
	return rec
}

type parts struct {
	extract bool
	stage   bool
	load    bool
}

func (e *env) pipeline(ctx context.Context, opts *Options, need parts) (*etl.Pipeline, error) {
	p := &etl.Pipeline{
		Engine:      e.cfg.Warehouse.Engine,
		Table:       e.cfg.Warehouse.Table,
		Credential:  e.cfg.Warehouse.BulkCredential(),
		WorkDir:     e.workDir(),
		LoadTimeout: e.cfg.LoadTimeout,
		DryRun:      opts.DryRun,
	}
	var err error
	if need.extract {
		if p.Extractor, err = e.extractor(); err != nil {
			return nil, err
		}
	}
	if need.stage {
		if p.Stager, err = e.stager(ctx); err != nil {
			return nil, err
		}
	}
	if need.load {
		d, db, err := e.warehouse()
		if err != nil {
			return nil, err
		}
		p.Loader = warehouse.NewLoader(d, db)
		p.Recorder = e.recorder(ctx)
	}
	return p, nil
}

// checkRun rejects a malformed run identifier before anything is opened.
func checkRun(runID string) (models.RunID, error) {
	run, err := models.ParseRunID(runID)
	if err != nil {
		return "", &warehouse.InvalidInputError{Field: "run identifier", Value: runID, Err: err}
	}
	return run, nil
}

func runExtract(cmd *cobra.Command, opts *Options, runID string) error {
	run, err := checkRun(runID)
	if err != nil {
		return err
	}
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.close()

	p, err := e.pipeline(cmd.Context(), opts, parts{extract: true})
	if err != nil {
		return err
	}
	path, err := p.Extract(cmd.Context(), run)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Extracted run %s to %s\n", run, path)
	return nil
}

func runStage(cmd *cobra.Command, opts *Options, runID string) error {
	run, err := checkRun(runID)
	if err != nil {
		return err
	}
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.close()

	p, err := e.pipeline(cmd.Context(), opts, parts{stage: true})
	if err != nil {
		return err
	}
	loc, err := p.Stage(cmd.Context(), run, filepath.Join(p.WorkDir, run.FileName()))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Staged run %s at %s\n", run, loc)
	return nil
}

func runLoad(cmd *cobra.Command, opts *Options, runID string) error {
	if _, err := checkRun(runID); err != nil {
		return err
	}
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.close()

	p, err := e.pipeline(cmd.Context(), opts, parts{stage: true, load: true})
	if err != nil {
		return err
	}
	res, err := p.Load(cmd.Context(), runID)
	if err != nil {
		return err
	}
	printResult(cmd, res)
	return nil
}

func runPipeline(cmd *cobra.Command, opts *Options, runID string) error {
	if _, err := checkRun(runID); err != nil {
		return err
	}
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.close()

	p, err := e.pipeline(cmd.Context(), opts, parts{extract: true, stage: !opts.DryRun, load: !opts.DryRun})
	if err != nil {
		return err
	}
	res, err := p.Run(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Dry run for %s finished; nothing loaded.\n", runID)
		return nil
	}
	printResult(cmd, res)
	return nil
}

func runExport(cmd *cobra.Command, opts *Options, file string) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.close()

	d, db, err := e.warehouse()
	if err != nil {
		return err
	}

	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := warehouse.Export(cmd.Context(), db, d, e.cfg.Warehouse.Table, f)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows from %s to %s\n", n, e.cfg.Warehouse.Table, file)
	return nil
}

func runHistory(cmd *cobra.Command, opts *Options, runID string) error {
	run, err := checkRun(runID)
	if err != nil {
		return err
	}
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.close()

	out := cmd.OutOrStdout()
	if !e.cfg.History.Enabled() {
		fmt.Fprintln(out, "Load history is disabled (HISTORY_MONGO_URI is not set).")
		return nil
	}
	rec, err := ledger.NewMongoRecorder(cmd.Context(), e.cfg.History)
	if err != nil {
		return err
	}
	defer rec.Close(context.WithoutCancel(cmd.Context()))

	entries, err := rec.List(cmd.Context(), run.String(), opts.History)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(out, "No load attempts recorded for run %s.\n", run)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tTABLE\tENGINE\tREPLACED\tINSERTED\tSTEP\tROLLED BACK\tERROR")
	for _, en := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%t\t%s\n",
			en.StartedAt.Format(time.RFC3339), en.Status, en.Table, en.Engine,
			en.Replaced, en.Inserted, en.Step, en.RolledBack, en.Error)
	}
	return tw.Flush()
}

func printResult(cmd *cobra.Command, res *warehouse.Result) {
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded run %s into %s: %d replaced, %d inserted, %d net new (%s)\n",
		res.RunID, res.Table, res.Replaced, res.Inserted, res.NetNew(), res.Duration.Round(time.Millisecond))
}
