package store

import "database/sql"

// Schema v1 - audit log of sort attempts
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per terminal sort attempt. Rows are never updated.
CREATE TABLE IF NOT EXISTS sort_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL DEFAULT '',
  original_name TEXT NOT NULL,
  final_name TEXT NOT NULL DEFAULT '',
  source_path TEXT NOT NULL,
  dest_path TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  file_size INTEGER NOT NULL DEFAULT 0,
  sorted_at INTEGER NOT NULL,
  status TEXT NOT NULL,
  error TEXT,
  content_hash TEXT
);
`

// Schema v2 - query indexes for history and stats
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_sort_records_sorted_at ON sort_records(sorted_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_sort_records_category ON sort_records(category, sorted_at DESC);
CREATE INDEX IF NOT EXISTS idx_sort_records_status ON sort_records(status);
`

// Schema v3 - Unicode case-folded names for Search. SQLite's LOWER and LIKE
// only fold ASCII.
const schemaV3 = `
ALTER TABLE sort_records ADD COLUMN original_name_fold TEXT NOT NULL DEFAULT '';
ALTER TABLE sort_records ADD COLUMN final_name_fold TEXT NOT NULL DEFAULT '';
`

type migration struct {
	version  int
	name     string
	sql      string
	backfill func(tx *sql.Tx) error // optional, runs after sql
}

// migrations are applied in order; append only
var migrations = []migration{
	{1, "sort records", schemaV1, nil},
	{2, "query indexes", schemaV2, nil},
	{3, "folded names", schemaV3, backfillFoldedNames},
}

// backfillFoldedNames fills the fold columns for rows written before v3
func backfillFoldedNames(tx *sql.Tx) error {
	type names struct {
		id              int64
		original, final string
	}

	rows, err := tx.Query("SELECT id, original_name, final_name FROM sort_records")
	if err != nil {
		return err
	}
	var pending []names
	for rows.Next() {
		var n names
		if err := rows.Scan(&n.id, &n.original, &n.final); err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, n := range pending {
		_, err := tx.Exec("UPDATE sort_records SET original_name_fold = ?, final_name_fold = ? WHERE id = ?",
			foldName(n.original), foldName(n.final), n.id)
		if err != nil {
			return err
		}
	}
	return nil
}
