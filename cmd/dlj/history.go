package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/download-janitor/internal/store"
	"github.com/franz/download-janitor/internal/util"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sort operations",
	Long: `List sort operations from the history database, newest first.

Filters:
  --search     match original or final file names (case-insensitive)
  --category   only records for one category
  --since/--until  restrict to a date range (YYYY-MM-DD or RFC 3339)`,
	RunE: runHistory,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one history record in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "Maximum records to show (0 for all)")
	historyCmd.Flags().StringP("search", "s", "", "Search file names")
	historyCmd.Flags().StringP("category", "c", "", "Filter by category")
	historyCmd.Flags().String("since", "", "Only records on or after this date")
	historyCmd.Flags().String("until", "", "Only records on or before this date")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	search, _ := cmd.Flags().GetString("search")
	category, _ := cmd.Flags().GetString("category")

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

	hasRange := !r.From.IsZero() || !r.To.IsZero()

	// With more than one filter the query limit would cut rows the other
	// filters still need, so fetch everything and trim afterwards
	queryLimit := limit
	if countTrue(search != "", category != "", hasRange) > 1 {
		queryLimit = 0
	}

	var records []*store.Record
	switch {
	case search != "":
		records, err = db.Search(search, queryLimit)
	case category != "":
		records, err = db.GetByCategory(category, queryLimit)
	case hasRange:
		records, err = db.GetByDateRange(r.From, r.To, queryLimit)
	default:
		records, err = db.GetRecent(queryLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	}

	records = filterRecords(records, category, r)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	if len(records) == 0 {
		util.InfoLog("No matching records")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "When", "Status", "Category", "File", "Size"},
		historyRows(records, time.Now()),
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid record id %q", args[0])
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

	rec, err := db.GetRecord(id)
	if err != nil {
		return err
	}

	rows := [][]string{
		{"ID", strconv.FormatInt(rec.ID, 10)},
		{"Run", rec.RunID},
		{"Sorted at", rec.SortedAt.Local().Format(time.RFC3339)},
		{"Status", string(rec.Status)},
		{"Category", rec.Category},
		{"Original name", rec.OriginalName},
		{"Final name", rec.FinalName},
		{"Source", rec.SourcePath},
		{"Destination", rec.DestPath},
		{"Size", util.FormatBytes(rec.FileSize)},
	}
	if rec.Error != "" {
		rows = append(rows, []string{"Error", rec.Error})
	}
	if rec.ContentHash != "" {
		rows = append(rows, []string{"SHA-1", rec.ContentHash})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
	return nil
}

// filterRecords applies the filters the chosen query did not already apply
func filterRecords(records []*store.Record, category string, r store.DateRange) []*store.Record {
	out := records[:0]
	for _, rec := range records {
		if category != "" && rec.Category != category {
			continue
		}
		if !r.From.IsZero() && rec.SortedAt.Before(r.From) {
			continue
		}
		if !r.To.IsZero() && rec.SortedAt.After(r.To) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func countTrue(conds ...bool) int {
	n := 0
	for _, c := range conds {
		if c {
			n++
		}
	}
	return n
}

func historyRows(records []*store.Record, now time.Time) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		name := rec.OriginalName
		if rec.FinalName != "" && rec.FinalName != rec.OriginalName {
			name = fmt.Sprintf("%s -> %s", rec.OriginalName, rec.FinalName)
		}
		rows = append(rows, []string{
			strconv.FormatInt(rec.ID, 10),
			humanize.RelTime(rec.SortedAt, now, "ago", "from now"),
			string(rec.Status),
			rec.Category,
			name,
			util.FormatBytes(rec.FileSize),
		})
	}
	return rows
}

// dateRangeFlags reads --since and --until. A bare date for --until covers
// the whole day.
func dateRangeFlags(cmd *cobra.Command) (store.DateRange, error) {
	var r store.DateRange

	if since, _ := cmd.Flags().GetString("since"); since != "" {
		t, _, err := parseDate(since)
		if err != nil {
			return r, fmt.Errorf("invalid --since: %w", err)
		}
		r.From = t
	}

	if cmd.Flags().Lookup("until") != nil {
		if until, _ := cmd.Flags().GetString("until"); until != "" {
			t, dateOnly, err := parseDate(until)
			if err != nil {
				return r, fmt.Errorf("invalid --until: %w", err)
			}
			if dateOnly {
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			r.To = t
		}
	}

	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return r, fmt.Errorf("--until is before --since")
	}
	return r, nil
}

// parseDate accepts RFC 3339 or YYYY-MM-DD in local time
func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%q is not YYYY-MM-DD or RFC 3339", s)
	}
	return t, true, nil
}
