package sorter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"

	"github.com/franz/download-janitor/internal/store"
	"github.com/franz/download-janitor/internal/util"
)

// BatchResult aggregates the outcome of sorting many files
type BatchResult struct {
	Results    []Result
	Succeeded  int
	Skipped    int
	Failed     int
	BytesMoved int64
	Duration   time.Duration
}

func (b *BatchResult) add(res Result) {
	b.Results = append(b.Results, res)
	switch res.Status {
	case store.StatusSuccess:
		b.Succeeded++
		b.BytesMoved += res.Size
	case store.StatusSkipped:
		b.Skipped++
	case store.StatusFailed:
		b.Failed++
	}
}

// Merge folds another batch's results into b
func (b *BatchResult) Merge(other *BatchResult) {
	for _, res := range other.Results {
		b.add(res)
	}
}

// SortFromFolder sorts the regular files directly inside folder, in name
// order. Subdirectories are not descended into. A per-file failure never
// stops the batch; only an unreadable folder is returned as an error.
func (s *Sorter) SortFromFolder(folder string) (*BatchResult, error) {
	start := time.Now()
	batch := &BatchResult{}

	entries, err := afero.ReadDir(s.fs, folder)
	if err != nil {
		return batch, fmt.Errorf("read %s: %w", folder, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(folder, entry.Name())
		if s.settings.ShouldIgnore(path) {
			util.DebugLog("Ignoring %s", path)
			continue
		}
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		util.DebugLog("Nothing to sort in %s", folder)
		return batch, nil
	}

	var bar *progressbar.ProgressBar
	if s.progress && util.IsTerminal(os.Stderr.Fd()) && !util.IsQuiet() {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Sorting "+filepath.Base(folder)),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	for _, path := range paths {
		batch.add(s.SortFile(path))
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	batch.Duration = time.Since(start)
	util.InfoLog("%s: %d sorted, %d skipped, %d failed (%s moved)",
		folder, batch.Succeeded, batch.Skipped, batch.Failed, util.FormatBytes(batch.BytesMoved))

	return batch, nil
}

// SortFromAllWatchFolders sorts every configured watch folder in order.
// Folders that cannot be read are logged and skipped.
func (s *Sorter) SortFromAllWatchFolders() *BatchResult {
	start := time.Now()
	total := &BatchResult{}

	for _, folder := range s.settings.WatchFolders {
		batch, err := s.SortFromFolder(folder)
		if err != nil {
			util.WarnLog("Skipping watch folder: %v", err)
			continue
		}
		total.Merge(batch)
	}

	total.Duration = time.Since(start)
	return total
}
