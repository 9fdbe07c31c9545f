package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/franz/download-janitor/internal/util"
)

// Status is the terminal outcome of one sort attempt
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Record is one audit log entry
type Record struct {
	ID           int64
	RunID        string
	OriginalName string
	FinalName    string
	SourcePath   string
	DestPath     string
	Category     string
	FileSize     int64
	SortedAt     time.Time // always UTC
	Status       Status
	Error        string
	ContentHash  string
}

// DateRange bounds a query. A zero From or To leaves that side open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// AggregateStats summarises the records in a date range
type AggregateStats struct {
	Total        int
	SuccessCount int
	SkippedCount int
	FailedCount  int
	MaxFileSize  int64
	TotalBytes   int64 // bytes moved by successful sorts
}

const recordColumns = `id, run_id, original_name, final_name, source_path, dest_path, category,
	file_size, sorted_at, status, COALESCE(error, ''), COALESCE(content_hash, '')`

// InsertRecord appends a record in its own transaction and sets its ID.
// SortedAt defaults to now.
func (s *Store) InsertRecord(rec *Record) error {
	if rec.SortedAt.IsZero() {
		rec.SortedAt = time.Now()
	}
	rec.SortedAt = rec.SortedAt.UTC()

	return s.Transaction(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO sort_records
			(run_id, original_name, final_name, source_path, dest_path, category,
			 file_size, sorted_at, status, error, content_hash, original_name_fold, final_name_fold)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.RunID, rec.OriginalName, rec.FinalName, rec.SourcePath, rec.DestPath, rec.Category,
			rec.FileSize, rec.SortedAt.UnixNano(), string(rec.Status), nullString(rec.Error), nullString(rec.ContentHash),
			foldName(rec.OriginalName), foldName(rec.FinalName))
		if err != nil {
			return fmt.Errorf("insert sort record: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return err
		}
		rec.ID = id
		return nil
	})
}

// GetRecent returns the newest records first. A limit <= 0 means no limit.
func (s *Store) GetRecent(limit int) ([]*Record, error) {
	return s.queryRecords(`
		SELECT `+recordColumns+`
		FROM sort_records
		ORDER BY sorted_at DESC, id DESC
		LIMIT ?
	`, sqlLimit(limit))
}

// GetRecord returns the record with the given ID, or util.ErrNotFound
func (s *Store) GetRecord(id int64) (*Record, error) {
	records, err := s.queryRecords(`
		SELECT `+recordColumns+`
		FROM sort_records
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("record %d: %w", id, util.ErrNotFound)
	}
	return records[0], nil
}

// Search matches query against original and final names, case-insensitively
// for any script
func (s *Store) Search(query string, limit int) ([]*Record, error) {
	pattern := "%" + escapeLike(foldName(query)) + "%"
	return s.queryRecords(`
		SELECT `+recordColumns+`
		FROM sort_records
		WHERE original_name_fold LIKE ? ESCAPE '\'
		   OR final_name_fold LIKE ? ESCAPE '\'
		ORDER BY sorted_at DESC, id DESC
		LIMIT ?
	`, pattern, pattern, sqlLimit(limit))
}

// GetByCategory returns records routed to category, newest first
func (s *Store) GetByCategory(category string, limit int) ([]*Record, error) {
	return s.queryRecords(`
		SELECT `+recordColumns+`
		FROM sort_records
		WHERE category = ?
		ORDER BY sorted_at DESC, id DESC
		LIMIT ?
	`, category, sqlLimit(limit))
}

// GetByDateRange returns records with from <= sorted_at <= to, newest first
func (s *Store) GetByDateRange(from, to time.Time, limit int) ([]*Record, error) {
	lo, hi := rangeBounds(DateRange{From: from, To: to})
	return s.queryRecords(`
		SELECT `+recordColumns+`
		FROM sort_records
		WHERE sorted_at >= ? AND sorted_at <= ?
		ORDER BY sorted_at DESC, id DESC
		LIMIT ?
	`, lo, hi, sqlLimit(limit))
}

// GetAggregateStats counts records by status within r
func (s *Store) GetAggregateStats(r DateRange) (*AggregateStats, error) {
	lo, hi := rangeBounds(r)

	var stats AggregateStats
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(MAX(file_size), 0),
			COALESCE(SUM(CASE WHEN status = 'success' THEN file_size ELSE 0 END), 0)
		FROM sort_records
		WHERE sorted_at >= ? AND sorted_at <= ?
	`, lo, hi).Scan(&stats.Total, &stats.SuccessCount, &stats.SkippedCount, &stats.FailedCount,
		&stats.MaxFileSize, &stats.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}

	return &stats, nil
}

// GetCategoryCounts counts successful sorts per category. A nil since
// counts everything.
func (s *Store) GetCategoryCounts(since *time.Time) (map[string]int, error) {
	var lo int64
	if since != nil {
		lo = since.UTC().UnixNano()
	}

	rows, err := s.db.Query(`
		SELECT category, COUNT(*)
		FROM sort_records
		WHERE status = 'success' AND sorted_at >= ?
		GROUP BY category
	`, lo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[category] = n
	}

	return counts, rows.Err()
}

// CountRecords returns the total number of records
func (s *Store) CountRecords() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sort_records").Scan(&n)
	return n, err
}

func (s *Store) queryRecords(query string, args ...any) ([]*Record, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var sortedAt int64
		var status string
		err := rows.Scan(&rec.ID, &rec.RunID, &rec.OriginalName, &rec.FinalName, &rec.SourcePath,
			&rec.DestPath, &rec.Category, &rec.FileSize, &sortedAt, &status, &rec.Error, &rec.ContentHash)
		if err != nil {
			return nil, err
		}
		rec.SortedAt = time.Unix(0, sortedAt).UTC()
		rec.Status = Status(status)
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// rangeBounds converts r to inclusive unix-nano bounds
func rangeBounds(r DateRange) (int64, int64) {
	lo := int64(0)
	hi := int64(1<<63 - 1)
	if !r.From.IsZero() {
		lo = r.From.UTC().UnixNano()
	}
	if !r.To.IsZero() {
		hi = r.To.UTC().UnixNano()
	}
	return lo, hi
}

// sqlLimit maps "no limit" to SQLite's -1
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// foldName is the form names are searched in: NFC, then Unicode lowercase
func foldName(name string) string {
	return strings.ToLower(norm.NFC.String(name))
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
