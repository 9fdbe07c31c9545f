package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/download-janitor/internal/report"
	"github.com/franz/download-janitor/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a Markdown summary report from the sort history",
	Long: `Generate a summary report in Markdown format.

The report includes:
- Sorted, skipped and failed counts
- Files per category
- Top errors
- Recent failures and locked files

The report is saved to <root>/.dlj/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	// Report-specific flags
	reportCmd.Flags().String("out", "", "Output directory for report (default: <root>/.dlj/reports/<timestamp>)")
	reportCmd.Flags().String("since", "", "Only include records on or after this date")
	reportCmd.Flags().String("until", "", "Only include records on or before this date")
}

func runReport(cmd *cobra.Command, args []string) error {
	r, err := dateRangeFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Database: %s", cfg.DBPath)

	db, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	util.InfoLog("Analyzing history...")
	summaryReport, err := report.GenerateSummaryReport(db, r)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	summaryReport.RootPath = cfg.Root
	summaryReport.DatabasePath = cfg.DBPath
	summaryReport.EventLogPath = cfg.LogDir

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join(cfg.Root, ".dlj", "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summaryReport, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	s := summaryReport.Stats
	util.SuccessLog("Report generated successfully!")
	util.InfoLog("")
	util.InfoLog("Summary:")
	util.InfoLog("  Sorted: %d (%s)", s.SuccessCount, util.FormatBytes(s.TotalBytes))
	if s.SkippedCount > 0 {
		util.WarnLog("  Skipped (locked): %d", s.SkippedCount)
	}
	if s.FailedCount > 0 {
		util.WarnLog("  Failed: %d", s.FailedCount)
	}

	return nil
}
