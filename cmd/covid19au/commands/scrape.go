package commands

import (
	"covid19au/cmd/covid19au/globals"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	scrapeMode   string
	scrapeRender bool
)

func init() {
	scrapeCmd.Flags().StringVar(&scrapeMode, "mode", "", "Where to scrape from: html (the rendered tables) or engine (the dashboard engine). Defaults to the configured mode.")
	scrapeCmd.Flags().BoolVar(&scrapeRender, "render", false, "Render the page in a headless browser before extracting the tables, html mode only.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Captures the latest figures and merges them into the dataset.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := globals.Get(cmd.Context())
		fetcher, err := g.Fetcher(scrapeMode, scrapeRender)
		if err != nil {
			return err
		}
		result, err := g.Runner().Run(cmd.Context(), fetcher)
		if err != nil {
			return err
		}
		slog.Info(
			"scrape finished",
			"run_id", result.RunID,
			"date", result.Date.String(),
			"keys", result.Keys,
			"replaced", result.Replaced,
			"rows", result.Rows,
			"columns", result.Columns,
			"raw", result.Raw,
		)
		return nil
	},
}
