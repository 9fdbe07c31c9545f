package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/download-janitor/internal/util"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sort statistics",
	Long: `Show totals from the history database: sorted, skipped and failed
counts, bytes moved, the largest file, and files per category.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().String("since", "", "Only count records on or after this date (YYYY-MM-DD)")
}

func runStats(cmd *cobra.Command, args []string) error {
	r, err := dateRangeFlags(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	db, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.GetAggregateStats(r)
	if err != nil {
		return fmt.Errorf("failed to compute statistics: %w", err)
	}

	var since *time.Time
	if !r.From.IsZero() {
		since = &r.From
	}
	counts, err := db.GetCategoryCounts(since)
	if err != nil {
		return fmt.Errorf("failed to count categories: %w", err)
	}

	out := cmd.OutOrStdout()
	if stats.Total == 0 {
		fmt.Fprintln(out, "No files sorted yet")
		return nil
	}

	fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, [][]string{
		{"Sort attempts", humanize.Comma(int64(stats.Total))},
		{"Sorted", humanize.Comma(int64(stats.SuccessCount))},
		{"Skipped (locked)", humanize.Comma(int64(stats.SkippedCount))},
		{"Failed", humanize.Comma(int64(stats.FailedCount))},
		{"Bytes moved", util.FormatBytes(stats.TotalBytes)},
		{"Largest file", util.FormatBytes(stats.MaxFileSize)},
	}, []columnAlignment{alignLeft, alignRight}))

	if len(counts) > 0 {
		fmt.Fprintln(out, renderTable([]string{"Category", "Files"}, categoryRows(counts),
			[]columnAlignment{alignLeft, alignRight}))
	}
	return nil
}

// categoryRows orders categories by count, then name
func categoryRows(counts map[string]int) [][]string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, strconv.Itoa(counts[name])})
	}
	return rows
}
