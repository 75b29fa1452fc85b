package commands

import (
	"covid19au/cmd/covid19au/globals"
	"log/slog"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(splitCmd)
}

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Stores every table of the stored engine documents as its own table file.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		g := globals.Get(cmd.Context())
		written, err := g.Runner().Split(cmd.Context())
		if err != nil {
			return err
		}
		slog.Info("documents split", "written", written)
		return nil
	},
}
