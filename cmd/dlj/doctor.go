package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/franz/download-janitor/internal/config"
	"github.com/franz/download-janitor/internal/store"
	"github.com/franz/download-janitor/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure dlj can operate correctly.

This command checks:
- Configuration warnings
- SQLite version
- History database accessibility and integrity
- Sort root writability
- Watch folders readability
- Network filesystems (change notifications are unreliable there)
- Whether watch folders share a filesystem with the root (fast renames)
- Disk space availability

Use this command to troubleshoot issues before running dlj watch.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, warnings, err := config.Load(nil)
	if err != nil {
		return err
	}

	results := checkAll(cfg, append(warnings, cfg.Validate()...))

	rows := make([][]string, 0, len(results))
	failed, warned := 0, 0
	for _, r := range results {
		rows = append(rows, []string{r.symbol(), r.name, r.message})
		switch {
		case r.error:
			failed++
		case r.warning:
			warned++
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"", "Check", "Details"}, rows, nil))

	switch {
	case failed > 0:
		util.ErrorLog("%d critical check(s) failed. Please resolve them before running dlj.", failed)
		return fmt.Errorf("system diagnostics failed")
	case warned > 0:
		util.WarnLog("%d check(s) produced warnings. Review them before proceeding.", warned)
	default:
		util.SuccessLog("All checks passed! dlj is ready to sort.")
	}
	return nil
}

func (r checkResult) symbol() string {
	switch {
	case r.error:
		return "✗"
	case r.warning:
		return "⚠"
	}
	return "✓"
}

// checkAll runs every check in display order
func checkAll(cfg *config.Config, warnings []string) []checkResult {
	results := []checkResult{checkConfig(warnings), checkSQLite(), checkDatabase(cfg.DBPath)}

	results = append(results, checkRoot(cfg.Root))
	for _, folder := range cfg.WatchFolders {
		results = append(results, checkWatchFolder(folder))
		results = append(results, checkNetwork(folder))
		results = append(results, checkSameFilesystem(folder, cfg.Root))
	}
	results = append(results, checkDiskSpace(cfg.Root, "root"))

	return results
}

func checkConfig(warnings []string) checkResult {
	if len(warnings) == 0 {
		return checkResult{name: "Configuration", message: "no problems found"}
	}
	msg := warnings[0]
	if len(warnings) > 1 {
		msg = fmt.Sprintf("%s (+%d more, see dlj config)", msg, len(warnings)-1)
	}
	return checkResult{name: "Configuration", warning: true, message: msg}
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database file accessibility
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	count, _ := db.CountRecords()
	return checkResult{
		name:    "Database",
		message: fmt.Sprintf("%s (%s, %d records)", dbPath, util.FormatBytes(info.Size()), count),
	}
}

// checkRoot verifies the sort root exists (or can be created) and is writable
func checkRoot(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Sort root",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Sort root",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Sort root",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Sort root",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".dlj_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Sort root",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Sort root",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkWatchFolder verifies a watch folder is readable. A missing folder is
// only a warning since dlj watch creates it.
func checkWatchFolder(path string) checkResult {
	name := "Watch folder"

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    name,
				warning: true,
				message: fmt.Sprintf("%s does not exist (dlj watch will create it)", path),
			}
		}
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	return checkResult{
		name:    name,
		message: fmt.Sprintf("%s (%d entries waiting)", path, len(entries)),
	}
}

// checkNetwork warns when a watch folder is on a network mount
func checkNetwork(path string) checkResult {
	name := fmt.Sprintf("Filesystem (%s)", filepath.Base(path))

	mount, err := util.DetectMount(existingParent(path))
	if err != nil {
		return checkResult{
			name:    name,
			warning: true,
			message: fmt.Sprintf("cannot detect filesystem: %v", err),
		}
	}
	if mount.Network {
		return checkResult{
			name:    name,
			warning: true,
			message: fmt.Sprintf("%s is on a network filesystem (%s); change notifications may be missed", path, mount.FSType),
		}
	}

	fsType := mount.FSType
	if fsType == "" {
		fsType = "local"
	}
	return checkResult{name: name, message: fsType}
}

// checkSameFilesystem reports whether moves out of a watch folder are renames
// or copies
func checkSameFilesystem(folder, root string) checkResult {
	name := fmt.Sprintf("Same filesystem (%s)", filepath.Base(folder))

	same, err := util.IsSameFilesystem(existingParent(folder), existingParent(root))
	if err != nil {
		return checkResult{
			name:    name,
			warning: true,
			message: fmt.Sprintf("cannot compare: %v", err),
		}
	}
	if !same {
		return checkResult{
			name:    name,
			warning: true,
			message: "different filesystems; files will be copied then deleted (slower)",
		}
	}
	return checkResult{name: name, message: "moves are instant renames"}
}

// existingParent walks up until it finds a path that exists
func existingParent(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
