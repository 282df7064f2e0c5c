package cli

import (
	"github.com/spf13/cobra"
)

type Options struct {
	Table   string
	DryRun  bool
	Cron    string
	History int64
}

func newExtractCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <run>",
		Short: "Extract a run's posts into a local CSV stage file",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runExtract(c, opts, args[0])
		},
	}
}

func newStageCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "stage <run>",
		Short: "Upload a run's local CSV to the object stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runStage(c, opts, args[0])
		},
	}
}

func newLoadCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "load <run>",
		Short: "Merge a staged run into the target table",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runLoad(c, opts, args[0])
		},
	}
}

func newRunCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <run>",
		Short: "Extract, stage and load a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runPipeline(c, opts, args[0])
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Stop after writing the local CSV")
	return cmd
}

func newExportCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Dump the target table to a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runExport(c, opts, args[0])
		},
	}
}

func newHistoryCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <run>",
		Short: "List recorded load attempts for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runHistory(c, opts, args[0])
		},
	}
	cmd.Flags().Int64VarP(&opts.History, "limit", "n", 20, "Maximum attempts to show")
	return cmd
}

func newScheduleCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline for the current UTC day on a cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runSchedule(c, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Cron, "cron", "0 2 * * *", "Five-field cron expression, evaluated in UTC")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Stop each run after writing the local CSV")
	return cmd
}
