package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/franz/download-janitor/internal/util"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func insert(t *testing.T, store *Store, rec Record) *Record {
	t.Helper()
	if err := store.InsertRecord(&rec); err != nil {
		t.Fatalf("failed to insert record: %v", err)
	}
	return &rec
}

func TestStoreOpenAndMigrate(t *testing.T) {
	store := openTestStore(t)

	version, err := store.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	for _, table := range []string{"sort_records", "schema_version"} {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	for _, index := range []string{"idx_sort_records_sorted_at", "idx_sort_records_category", "idx_sort_records_status"} {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query index %s: %v", index, err)
		}
		if count != 1 {
			t.Errorf("expected index %s to exist (schema v2)", index)
		}
	}

	if err := store.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed on fresh database: %v", err)
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	insert(t, store, Record{OriginalName: "a.pdf", SourcePath: "/in/a.pdf", Status: StatusSuccess})
	store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store.Close()

	n, err := store.CountRecords()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 record after reopen, got %d", n)
	}
}

func TestRecordInsertAndRetrieve(t *testing.T) {
	store := openTestStore(t)

	local := time.FixedZone("CEST", 2*60*60)
	rec := insert(t, store, Record{
		RunID:        "run-1",
		OriginalName: "report.pdf",
		FinalName:    "report (2).pdf",
		SourcePath:   "/in/report.pdf",
		DestPath:     "/sorted/Documents/report (2).pdf",
		Category:     "Documents",
		FileSize:     2048,
		SortedAt:     base.In(local),
		Status:       StatusSuccess,
		ContentHash:  "abc123",
	})

	if rec.ID == 0 {
		t.Error("expected record ID to be set after insert")
	}

	records, err := store.GetRecent(10)
	if err != nil {
		t.Fatalf("failed to get recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	got := records[0]
	if got.FinalName != "report (2).pdf" || got.Category != "Documents" || got.FileSize != 2048 {
		t.Errorf("unexpected record: %+v", got)
	}
	if !got.SortedAt.Equal(base) || got.SortedAt.Location() != time.UTC {
		t.Errorf("expected SortedAt %v in UTC, got %v", base, got.SortedAt)
	}
	if got.Status != StatusSuccess || got.Error != "" || got.ContentHash != "abc123" {
		t.Errorf("unexpected status fields: %+v", got)
	}
}

func TestGetRecord(t *testing.T) {
	store := openTestStore(t)
	rec := insert(t, store, Record{RunID: "r1", OriginalName: "a.pdf", FinalName: "a.pdf",
		SourcePath: "/in/a.pdf", DestPath: "/out/Documents/a.pdf", Category: "Documents",
		FileSize: 10, SortedAt: base, Status: StatusSuccess})

	got, err := store.GetRecord(rec.ID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.DestPath != rec.DestPath {
		t.Errorf("expected dest %s, got %s", rec.DestPath, got.DestPath)
	}

	_, err = store.GetRecord(rec.ID + 100)
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertDefaultsSortedAt(t *testing.T) {
	store := openTestStore(t)

	before := time.Now().UTC()
	rec := insert(t, store, Record{OriginalName: "x", SourcePath: "/in/x", Status: StatusFailed, Error: "boom"})

	if rec.SortedAt.Before(before.Add(-time.Second)) {
		t.Errorf("expected SortedAt near now, got %v", rec.SortedAt)
	}
}

func TestGetRecentOrdering(t *testing.T) {
	store := openTestStore(t)

	insert(t, store, Record{OriginalName: "old", SourcePath: "/in/old", SortedAt: base, Status: StatusSuccess})
	insert(t, store, Record{OriginalName: "new", SourcePath: "/in/new", SortedAt: base.Add(time.Hour), Status: StatusSuccess})
	// same timestamp as "new": later insert wins the tie
	insert(t, store, Record{OriginalName: "tie", SourcePath: "/in/tie", SortedAt: base.Add(time.Hour), Status: StatusSuccess})

	records, err := store.GetRecent(0)
	if err != nil {
		t.Fatalf("failed to get recent: %v", err)
	}

	want := []string{"tie", "new", "old"}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i, name := range want {
		if records[i].OriginalName != name {
			t.Errorf("position %d: expected %s, got %s", i, name, records[i].OriginalName)
		}
	}

	limited, err := store.GetRecent(2)
	if err != nil {
		t.Fatalf("failed to get recent: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected limit of 2, got %d", len(limited))
	}
}

func TestSearch(t *testing.T) {
	store := openTestStore(t)

	insert(t, store, Record{OriginalName: "Invoice_March.pdf", FinalName: "Invoice_March.pdf", SourcePath: "/in/1", SortedAt: base, Status: StatusSuccess})
	insert(t, store, Record{OriginalName: "photo.jpg", FinalName: "holiday-invoice.jpg", SourcePath: "/in/2", SortedAt: base.Add(time.Minute), Status: StatusSuccess})
	insert(t, store, Record{OriginalName: "100%.txt", FinalName: "100%.txt", SourcePath: "/in/3", SortedAt: base.Add(2 * time.Minute), Status: StatusSuccess})
	insert(t, store, Record{OriginalName: "100x.txt", FinalName: "100x.txt", SourcePath: "/in/4", SortedAt: base.Add(3 * time.Minute), Status: StatusSuccess})

	tests := []struct {
		query    string
		expected []string
	}{
		{"invoice", []string{"photo.jpg", "Invoice_March.pdf"}},
		{"INVOICE_", []string{"Invoice_March.pdf"}},
		{"100%", []string{"100%.txt"}},
		{"nothing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			records, err := store.Search(tt.query, 10)
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			if len(records) != len(tt.expected) {
				t.Fatalf("expected %d results, got %d", len(tt.expected), len(records))
			}
			for i, name := range tt.expected {
				if records[i].OriginalName != name {
					t.Errorf("result %d: expected %s, got %s", i, name, records[i].OriginalName)
				}
			}
		})
	}
}

func TestSearchUnicodeCase(t *testing.T) {
	store := openTestStore(t)

	insert(t, store, Record{OriginalName: "ÉTÉ-Résumé.pdf", FinalName: "ÉTÉ-Résumé.pdf", SourcePath: "/in/1", SortedAt: base, Status: StatusSuccess})
	insert(t, store, Record{OriginalName: "Straße.txt", FinalName: "Straße (2).txt", SourcePath: "/in/2", SortedAt: base.Add(time.Minute), Status: StatusSuccess})

	tests := []struct {
		query    string
		expected int
	}{
		{"ÉTÉ", 1},
		{"été", 1},
		{"RÉSUMÉ", 1},
		{"résumé", 1},
		{"STRASSE", 0}, // folding is lowercasing, not full case folding
		{"straße (2)", 1},
		{"e\u0301te\u0301", 1}, // decomposed accents
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			records, err := store.Search(tt.query, 10)
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			if len(records) != tt.expected {
				t.Errorf("Search(%q): expected %d results, got %d", tt.query, tt.expected, len(records))
			}
		})
	}
}

func TestMigrateBackfillsFoldedNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	// Build a v2 database by hand
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open raw database: %v", err)
	}
	for _, stmt := range []string{schemaV1, schemaV2, "INSERT INTO schema_version (version) VALUES (1), (2)"} {
		if _, err := raw.Exec(stmt); err != nil {
			t.Fatalf("failed to build v2 schema: %v", err)
		}
	}
	_, err = raw.Exec(`INSERT INTO sort_records (original_name, final_name, source_path, sorted_at, status)
		VALUES ('ÉTÉ.pdf', 'ÉTÉ.pdf', '/in/ete.pdf', ?, 'success')`, base.UnixNano())
	if err != nil {
		t.Fatalf("failed to insert v2 record: %v", err)
	}
	raw.Close()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open and migrate: %v", err)
	}
	defer store.Close()

	version, err := store.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != 3 {
		t.Errorf("expected schema version 3, got %d", version)
	}

	records, err := store.Search("été", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected the pre-migration record to be searchable, got %d results", len(records))
	}
}

func TestGetByCategoryAndDateRange(t *testing.T) {
	store := openTestStore(t)

	for i, cat := range []string{"Documents", "Images", "Documents", "Videos"} {
		insert(t, store, Record{
			OriginalName: cat,
			SourcePath:   "/in/" + cat,
			Category:     cat,
			SortedAt:     base.Add(time.Duration(i) * 24 * time.Hour),
			Status:       StatusSuccess,
		})
	}

	docs, err := store.GetByCategory("Documents", 10)
	if err != nil {
		t.Fatalf("by category failed: %v", err)
	}
	if len(docs) != 2 || !docs[0].SortedAt.After(docs[1].SortedAt) {
		t.Errorf("expected 2 documents newest first, got %+v", docs)
	}

	// bounds are inclusive on both ends
	ranged, err := store.GetByDateRange(base.Add(24*time.Hour), base.Add(48*time.Hour), 10)
	if err != nil {
		t.Fatalf("by date range failed: %v", err)
	}
	if len(ranged) != 2 {
		t.Fatalf("expected 2 records in range, got %d", len(ranged))
	}
	if ranged[0].Category != "Documents" || ranged[1].Category != "Images" {
		t.Errorf("unexpected range order: %s, %s", ranged[0].Category, ranged[1].Category)
	}
}

func TestAggregateStatsAndCategoryCounts(t *testing.T) {
	store := openTestStore(t)

	insert(t, store, Record{OriginalName: "a", SourcePath: "/in/a", Category: "Documents", FileSize: 100, SortedAt: base, Status: StatusSuccess})
	insert(t, store, Record{OriginalName: "b", SourcePath: "/in/b", Category: "Documents", FileSize: 300, SortedAt: base.Add(time.Hour), Status: StatusSuccess})
	insert(t, store, Record{OriginalName: "c", SourcePath: "/in/c", Category: "Images", FileSize: 900, SortedAt: base.Add(2 * time.Hour), Status: StatusSkipped, Error: "file is locked"})
	insert(t, store, Record{OriginalName: "d", SourcePath: "/in/d", Category: "Images", FileSize: 50, SortedAt: base.Add(3 * time.Hour), Status: StatusFailed, Error: "permission denied"})
	insert(t, store, Record{OriginalName: "e", SourcePath: "/in/e", Category: "Images", FileSize: 10, SortedAt: base.Add(4 * time.Hour), Status: StatusSuccess})

	stats, err := store.GetAggregateStats(DateRange{})
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	expected := AggregateStats{Total: 5, SuccessCount: 3, SkippedCount: 1, FailedCount: 1, MaxFileSize: 900, TotalBytes: 410}
	if *stats != expected {
		t.Errorf("expected %+v, got %+v", expected, *stats)
	}

	stats, err = store.GetAggregateStats(DateRange{From: base.Add(time.Hour), To: base.Add(3 * time.Hour)})
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Total != 3 || stats.SuccessCount != 1 || stats.MaxFileSize != 900 {
		t.Errorf("unexpected ranged stats: %+v", *stats)
	}

	counts, err := store.GetCategoryCounts(nil)
	if err != nil {
		t.Fatalf("category counts failed: %v", err)
	}
	if counts["Documents"] != 2 || counts["Images"] != 1 || len(counts) != 2 {
		t.Errorf("expected only successful sorts counted, got %v", counts)
	}

	since := base.Add(30 * time.Minute)
	counts, err = store.GetCategoryCounts(&since)
	if err != nil {
		t.Fatalf("category counts failed: %v", err)
	}
	if counts["Documents"] != 1 || counts["Images"] != 1 {
		t.Errorf("unexpected counts since %v: %v", since, counts)
	}
}

func TestConcurrentInserts(t *testing.T) {
	store := openTestStore(t)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				rec := &Record{OriginalName: "f", SourcePath: "/in/f", Status: StatusSuccess}
				if err := store.InsertRecord(rec); err != nil {
					t.Errorf("insert failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	n, err := store.CountRecords()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 200 {
		t.Errorf("expected 200 records, got %d", n)
	}
}

func TestSQLiteVersion(t *testing.T) {
	if SQLiteVersion() == "" {
		t.Error("expected a SQLite version string")
	}
}
