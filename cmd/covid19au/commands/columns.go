package commands

import (
	"covid19au/cmd/covid19au/globals"
	"covid19au/cmd/covid19au/utils"
	"covid19au/internal/dataset"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(columnsCmd)
}

var columnsCmd = &cobra.Command{
	Use:   "columns",
	Short: "Lists every column of the dataset with the number of dates that have a value for it.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := globals.Get(cmd.Context())
		d, err := dataset.Load(g.Config.DataDir)
		if err != nil {
			return err
		}

		rows := d.Rows()
		t := utils.NewTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"#", "Column", "Dates with a value"})
		t.AppendRow(table.Row{0, dataset.DateColumn, len(rows)})
		for i, key := range d.Keys() {
			filled := 0
			for _, row := range rows {
				if !row.Get(key).IsAbsent() {
					filled++
				}
			}
			t.AppendRow(table.Row{i + 1, key, filled})
		}
		t.Render()
		return nil
	},
}
