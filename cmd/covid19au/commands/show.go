package commands

import (
	"bytes"
	"covid19au/cmd/covid19au/globals"
	"covid19au/cmd/covid19au/utils"
	"covid19au/internal/extract"
	"covid19au/internal/snapshot"
	"covid19au/lib/htmlutil"
	"errors"
	"fmt"
	"os"

	"github.com/PuerkitoBio/goquery"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	showTable    string
	showMarkdown bool
)

func init() {
	showCmd.Flags().StringVar(&showTable, "table", "", "Only show this table.")
	showCmd.Flags().BoolVar(&showMarkdown, "markdown", false, "Show the tables of the stored page markup as markdown instead.")
	rootCmd.AddCommand(showCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <date>",
	Short: "Shows the stored tables of a publication date.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := snapshot.ParseDate(args[0])
		if err != nil {
			return err
		}
		tables := snapshot.Tables
		if showTable != "" {
			name, err := snapshot.ParseTableName(showTable)
			if err != nil {
				return err
			}
			tables = []snapshot.TableName{name}
		}

		g := globals.Get(cmd.Context())
		if showMarkdown {
			return showMarkup(cmd, g, date, tables)
		}

		store := g.Runner().Store()
		shown := 0
		for _, name := range tables {
			raw, err := store.ReadTable(date, name)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return err
			}

			t := utils.NewTable(cmd.OutOrStdout())
			t.SetTitle(string(name))
			labels := raw.Labels()
			header := table.Row{}
			for _, label := range labels {
				header = append(header, label)
			}
			t.AppendHeader(header)
			for _, r := range raw.Rows {
				row := table.Row{}
				for _, label := range labels {
					cell, _ := r.Get(label)
					row = append(row, cell.Text)
				}
				t.AppendRow(row)
			}
			t.Render()
			shown++
		}
		if shown == 0 {
			return fmt.Errorf("no stored tables for %s", date)
		}
		return nil
	},
}

func showMarkup(cmd *cobra.Command, g *globals.Value, date snapshot.Date, tables []snapshot.TableName) error {
	markup, err := g.Runner().Store().ReadMarkup(date)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(markup))
	if err != nil {
		return err
	}

	for _, name := range tables {
		source, ok := extract.SourceOf(name)
		if !ok {
			continue
		}
		sel, ok := extract.FindTable(doc, source)
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "## %s\n\nnot on the page\n\n", name)
			continue
		}
		fragment, err := goquery.OuterHtml(sel)
		if err != nil {
			return err
		}
		md, err := htmlutil.ToMarkdown(cmd.Context(), fragment)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "## %s\n\n%s\n\n", name, md)
	}
	return nil
}
