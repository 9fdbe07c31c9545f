package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/franz/download-janitor/internal/config"
	"github.com/franz/download-janitor/internal/sorter"
	"github.com/franz/download-janitor/internal/store"
	"github.com/franz/download-janitor/internal/util"
	"github.com/franz/download-janitor/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the download folders and sort files as they finish",
	Long: `Watch every configured folder and sort each new file once it has stopped
changing for the settle time. Files already present at startup are sorted
too. Partial downloads (.crdownload, .part, ...) are left alone until the
browser renames them.

Only one watcher may run per sort root. Stop with Ctrl-C.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Duration("sweep", time.Second, "How often settle state is checked")
}

func runWatch(cmd *cobra.Command, args []string) error {
	sweep, _ := cmd.Flags().GetDuration("sweep")

	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	lock, err := acquireInstanceLock(cfg)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	db, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := openEventLogger(cfg)
	defer logger.Close()

	s := sorter.New(&sorter.Config{
		Settings: cfg,
		Audit:    db,
		Logger:   logger,
	})

	w := watch.New(watch.Options{
		Settings:      cfg,
		Sorter:        s,
		Logger:        logger,
		SweepInterval: sweep,
		OnResult:      printResult,
	})

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	util.InfoLog("Watching %d folder(s), settle time %s (run %s)", len(cfg.WatchFolders), cfg.SettleDuration, s.RunID())
	for _, folder := range cfg.WatchFolders {
		util.InfoLog("  %s", folder)
	}

	<-ctx.Done()
	util.InfoLog("Shutting down...")
	pending := w.Tracker().Tracked()
	w.Stop()
	if pending > 0 {
		util.InfoLog("%d unsettled file(s) will be picked up on the next start", pending)
	}
	return nil
}

// acquireInstanceLock takes the per-root lock file so two watchers never
// race on the same folders
func acquireInstanceLock(cfg *config.Config) (*flock.Flock, error) {
	dir := filepath.Join(cfg.Root, ".dlj")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	lock := flock.New(filepath.Join(dir, "watch.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another dlj watch is already running for %s", cfg.Root)
	}
	return lock, nil
}

func printResult(res sorter.Result) {
	switch res.Status {
	case store.StatusSuccess:
		util.SuccessLog("%s -> %s", filepath.Base(res.SourcePath), res.DestPath)
	case store.StatusFailed:
		util.ErrorLog("%s: %v", res.SourcePath, res.Err)
	case store.StatusSkipped:
		if res.Err != nil {
			util.WarnLog("%s: %s", res.SourcePath, res.Reason)
		}
	}
}

