package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/tburn/internal/report"
)

var (
	flagExportFormat string
	flagExportDir    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the weekly report as JSON, Parquet, or HTML charts",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&flagExportFormat, "format", "f", "html", "json, parquet, or html")
	exportCmd.Flags().StringVarP(&flagExportDir, "out", "o", ".", "Output directory")
	exportCmd.Flags().StringArrayVar(&flagSessions, "sessions", nil, "Session CSV export (repeatable, glob allowed)")
	exportCmd.Flags().StringVar(&flagBilling, "billing", "", "Billing CSV export for weekly cost")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	format, err := report.ParseFormat(flagExportFormat)
	if err != nil {
		return err
	}
	rep, err := buildReport(cmd.Context())
	if err != nil {
		return err
	}
	paths, err := report.ExportDir(flagExportDir, rep, format)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintf(os.Stderr, "  Wrote %s\n", p)
	}
	return nil
}
