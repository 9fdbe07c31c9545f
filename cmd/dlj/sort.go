package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/download-janitor/internal/sorter"
	"github.com/franz/download-janitor/internal/store"
	"github.com/franz/download-janitor/internal/util"
)

var sortCmd = &cobra.Command{
	Use:   "sort [folders...]",
	Short: "Sort the files currently sitting in the watch folders",
	Long: `Sort every file directly inside the given folders (default: all watch
folders) once and exit. Files are moved without waiting for them to settle,
so do not run this while downloads are still in progress.

Use --dry-run to print where each file would go without moving anything.`,
	RunE: runSort,
}

func init() {
	rootCmd.AddCommand(sortCmd)

	sortCmd.Flags().Bool("dry-run", false, "Show destinations without moving files")
	sortCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
}

func runSort(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	var audit sorter.AuditSink
	if !dryRun {
		db, err := openStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		audit = db
	}

	logger := openEventLogger(cfg)
	defer logger.Close()

	s := sorter.New(&sorter.Config{
		Settings:     cfg,
		Audit:        audit,
		Logger:       logger,
		DryRun:       dryRun,
		ShowProgress: !noProgress,
	})

	if dryRun {
		util.InfoLog("=== DRY-RUN MODE - No files will be moved ===")
	}

	batch := sortFolders(s, args)

	util.InfoLog("")
	util.InfoLog("=== Sort Summary (run %s) ===", s.RunID())
	util.InfoLog("Sorted:   %d (%s)", batch.Succeeded, util.FormatBytes(batch.BytesMoved))
	util.InfoLog("Skipped:  %d", batch.Skipped)
	util.InfoLog("Failed:   %d", batch.Failed)
	util.InfoLog("Duration: %s", batch.Duration.Round(time.Millisecond))

	if batch.Failed > 0 {
		for _, res := range batch.Results {
			if res.Status == store.StatusFailed {
				util.ErrorLog("  %s: %v", res.SourcePath, res.Err)
			}
		}
		return fmt.Errorf("%d file(s) could not be sorted", batch.Failed)
	}
	if batch.Succeeded > 0 && !dryRun {
		util.SuccessLog("Sort complete")
	}
	return nil
}

// sortFolders sorts the named folders, or every watch folder when none are
// given. Like the watch-folder sweep, an unreadable folder is warned about
// and skipped.
func sortFolders(s *sorter.Sorter, folders []string) *sorter.BatchResult {
	if len(folders) == 0 {
		return s.SortFromAllWatchFolders()
	}

	start := time.Now()
	total := &sorter.BatchResult{}
	for _, folder := range folders {
		batch, err := s.SortFromFolder(folder)
		if err != nil {
			util.WarnLog("Skipping folder: %v", err)
			continue
		}
		total.Merge(batch)
	}
	total.Duration = time.Since(start)
	return total
}
