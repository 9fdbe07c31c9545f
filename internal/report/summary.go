package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/franz/download-janitor/internal/store"
	"github.com/franz/download-janitor/internal/util"
)

// SummaryReport is a snapshot of the audit log over a date range
type SummaryReport struct {
	GeneratedAt time.Time
	Range       store.DateRange

	Stats      store.AggregateStats
	Categories []CategoryCount

	// Details
	TopErrors      []ErrorSummary
	RecentFailures []*store.Record

	// Metadata
	RootPath     string
	DatabasePath string
	EventLogPath string
}

// CategoryCount is the number of files sorted into one category
type CategoryCount struct {
	Category string
	Count    int
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// GenerateSummaryReport builds a report for r from the audit store
func GenerateSummaryReport(db *store.Store, r store.DateRange) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt:    time.Now(),
		Range:          r,
		Categories:     make([]CategoryCount, 0),
		TopErrors:      make([]ErrorSummary, 0),
		RecentFailures: make([]*store.Record, 0),
	}

	stats, err := db.GetAggregateStats(r)
	if err != nil {
		return nil, err
	}
	report.Stats = *stats

	records, err := db.GetByDateRange(r.From, r.To, 0)
	if err != nil {
		return nil, err
	}

	counts, err := categoryCounts(db, r, records)
	if err != nil {
		return nil, err
	}
	for category, n := range counts {
		report.Categories = append(report.Categories, CategoryCount{Category: category, Count: n})
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		if report.Categories[i].Count != report.Categories[j].Count {
			return report.Categories[i].Count > report.Categories[j].Count
		}
		return report.Categories[i].Category < report.Categories[j].Category
	})

	report.TopErrors = gatherTopErrors(records, 10)
	for _, rec := range records {
		if rec.Status != store.StatusSuccess && len(report.RecentFailures) < 20 {
			report.RecentFailures = append(report.RecentFailures, rec)
		}
	}

	return report, nil
}

// categoryCounts uses the store's aggregate for open-ended ranges and counts
// the already-loaded records otherwise
func categoryCounts(db *store.Store, r store.DateRange, records []*store.Record) (map[string]int, error) {
	if r.To.IsZero() {
		var since *time.Time
		if !r.From.IsZero() {
			since = &r.From
		}
		return db.GetCategoryCounts(since)
	}

	counts := make(map[string]int)
	for _, rec := range records {
		if rec.Status == store.StatusSuccess {
			counts[rec.Category]++
		}
	}
	return counts, nil
}

// gatherTopErrors counts error messages of unsuccessful records
func gatherTopErrors(records []*store.Record, limit int) []ErrorSummary {
	errorCounts := make(map[string]int)
	for _, rec := range records {
		if rec.Status != store.StatusSuccess && rec.Error != "" {
			errorCounts[rec.Error]++
		}
	}

	errors := make([]ErrorSummary, 0, len(errorCounts))
	for err, count := range errorCounts {
		errors = append(errors, ErrorSummary{
			Error: err,
			Count: count,
		})
	}

	// Sort by count (descending), then message for stable output
	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})

	if len(errors) > limit {
		errors = errors[:limit]
	}

	return errors
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// RenderMarkdown formats the report as Markdown
func RenderMarkdown(report *SummaryReport) string {
	var md strings.Builder

	md.WriteString("# Download Janitor - Sort Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	md.WriteString(fmt.Sprintf("**Period:** %s\n\n", describeRange(report.Range)))

	if report.RootPath != "" {
		md.WriteString(fmt.Sprintf("**Root:** `%s`\n\n", report.RootPath))
	}
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	// Overview
	s := report.Stats
	md.WriteString("## 📊 Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Sort Attempts | %d |\n", s.Total))
	md.WriteString(fmt.Sprintf("| Sorted | %d |\n", s.SuccessCount))
	if s.SkippedCount > 0 {
		md.WriteString(fmt.Sprintf("| Skipped (locked) | %d |\n", s.SkippedCount))
	}
	if s.FailedCount > 0 {
		md.WriteString(fmt.Sprintf("| Failed | %d |\n", s.FailedCount))
	}
	md.WriteString(fmt.Sprintf("| Bytes Moved | %s |\n", util.FormatBytes(s.TotalBytes)))
	if s.MaxFileSize > 0 {
		md.WriteString(fmt.Sprintf("| Largest File | %s |\n", util.FormatBytes(s.MaxFileSize)))
	}
	md.WriteString("\n")

	// Categories
	if len(report.Categories) > 0 {
		md.WriteString("## 🗂️ Categories\n\n")
		md.WriteString("| Category | Files |\n")
		md.WriteString("|----------|-------|\n")
		for _, c := range report.Categories {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", c.Category, c.Count))
		}
		md.WriteString("\n")
	}

	// Errors
	if len(report.TopErrors) > 0 {
		md.WriteString("## ⚠️ Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, err.Error))
		}
		md.WriteString("\n")
	}

	if len(report.RecentFailures) > 0 {
		md.WriteString("## 🚨 Recent Problems\n\n")
		md.WriteString("| When | Status | File | Error |\n")
		md.WriteString("|------|--------|------|-------|\n")
		for _, rec := range report.RecentFailures {
			md.WriteString(fmt.Sprintf("| %s | %s | `%s` | %s |\n",
				rec.SortedAt.Local().Format("2006-01-02 15:04"),
				rec.Status,
				truncatePath(rec.SourcePath, 60),
				rec.Error))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by dlj - Download Janitor*\n")

	return md.String()
}

func describeRange(r store.DateRange) string {
	switch {
	case r.From.IsZero() && r.To.IsZero():
		return "all time"
	case r.To.IsZero():
		return "since " + r.From.Local().Format("2006-01-02 15:04")
	case r.From.IsZero():
		return "until " + r.To.Local().Format("2006-01-02 15:04")
	default:
		return r.From.Local().Format("2006-01-02 15:04") + " to " + r.To.Local().Format("2006-01-02 15:04")
	}
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
