package commands

import (
	"covid19au/cmd/covid19au/globals"
	"covid19au/internal/pipeline"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	generateSource  string
	generateRebuild bool
)

func init() {
	generateCmd.Flags().StringVar(&generateSource, "source", string(pipeline.SourceTables), "Stored captures to replay: tables, markup or documents.")
	generateCmd.Flags().BoolVar(&generateRebuild, "rebuild", false, "Build the dataset from nothing instead of merging into the stored one.")
	rootCmd.AddCommand(generateCmd)
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Regenerates the dataset from the stored raw captures.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := pipeline.ParseSource(generateSource)
		if err != nil {
			return err
		}
		g := globals.Get(cmd.Context())
		result, err := g.Runner().Backfill(cmd.Context(), source, generateRebuild)
		if err != nil {
			return err
		}
		slog.Info(
			"dataset generated",
			"source", source,
			"snapshots", result.Snapshots,
			"rows", result.Rows,
			"columns", result.Columns,
		)
		return nil
	},
}
