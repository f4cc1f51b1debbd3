package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/speclog/internal/report"
)

var convertXLSX string

type convertResult struct {
	Source  string `json:"source" yaml:"source"`
	XLSX    string `json:"xlsx" yaml:"xlsx"`
	Bullets int    `json:"bullets" yaml:"bullets"`
	Rows    int    `json:"rows" yaml:"rows"`
}

var convertCmd = &cobra.Command{
	Use:   "convert <results.json>",
	Short: "Regenerate a submittal log from a JSON backup",
	Long: `Rebuild the Excel submittal log from a results JSON file written by
'speclog extract'. The spreadsheet is written next to the JSON file unless
--xlsx is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		entries, err := report.LoadEntries(src)
		if err != nil {
			return err
		}

		out := convertXLSX
		if out == "" {
			out = strings.TrimSuffix(src, filepath.Ext(src)) + ".xlsx"
		}
		rows := report.BuildRows(entries)
		if err := report.WriteSubmittalLog(out, rows, logger); err != nil {
			return err
		}

		res := convertResult{Source: src, XLSX: out, Bullets: len(entries), Rows: len(rows)}
		if printer.Structured() {
			return printer.Print(res)
		}
		printer.Printf("Wrote %d rows from %d bullets to %s\n", res.Rows, res.Bullets, res.XLSX)
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertXLSX, "xlsx", "", "output spreadsheet path")
}
