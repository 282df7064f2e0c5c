// Package cli wires configuration, the extractor, the stage writer and the
// warehouse loader into cobra commands.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "stageload",
		Short: "stageload - daily extract, stage and merge into a warehouse table",
		Long: `stageload pulls a day's posts from the content API, writes them to a CSV stage
file, uploads it to the object stage and merges it into the warehouse table through
a staging table, all in one transaction.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.Table, "table", "", "Target table, optionally schema-qualified (overrides WAREHOUSE_TABLE)")

	rootCmd.AddCommand(
		newExtractCmd(opts),
		newStageCmd(opts),
		newLoadCmd(opts),
		newRunCmd(opts),
		newExportCmd(opts),
		newHistoryCmd(opts),
		newScheduleCmd(opts),
	)

	return rootCmd
}
