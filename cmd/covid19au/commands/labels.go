package commands

import (
	"covid19au/cmd/covid19au/globals"
	"covid19au/cmd/covid19au/utils"
	"covid19au/internal/pipeline"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var labelsSource string

func init() {
	labelsCmd.Flags().StringVar(&labelsSource, "source", string(pipeline.SourceTables), "Stored captures to audit: tables, markup or documents.")
	rootCmd.AddCommand(labelsCmd)
}

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Lists the column labels of stored captures that map to no key, with the closest registered variant.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := pipeline.ParseSource(labelsSource)
		if err != nil {
			return err
		}
		g := globals.Get(cmd.Context())
		snapshots, err := g.Runner().Snapshots(cmd.Context(), source)
		if err != nil {
			return err
		}

		unmapped := g.Registry.Audit(snapshots)
		if len(unmapped) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "every label of %d snapshots maps to a key\n", len(snapshots))
			return nil
		}

		t := utils.NewTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Table", "Label", "Seen", "First seen", "Last seen", "Closest variant", "Suffix", "Score"})
		for _, u := range unmapped {
			row := table.Row{u.Table, u.Label, u.Count, u.FirstSeen.String(), u.LastSeen.String()}
			if u.HasSuggestion {
				row = append(row, u.Suggestion.Variant, u.Suggestion.Suffix, fmt.Sprintf("%.2f", u.Suggestion.Score))
			} else {
				row = append(row, "", "", "")
			}
			t.AppendRow(row)
		}
		t.Render()
		return nil
	},
}
