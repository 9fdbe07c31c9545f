package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/download-janitor/internal/classify"
	"github.com/franz/download-janitor/internal/config"
	"github.com/franz/download-janitor/internal/report"
	"github.com/franz/download-janitor/internal/store"
	"github.com/franz/download-janitor/internal/util"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration dlj will use after merging the config file,
DLJ_* environment variables and flags, including the category table
and any warnings about the settings.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// loadSettings builds the settings snapshot and reports config warnings.
// Precedence: flag, DLJ_* environment variable, config file, default.
func loadSettings() (*config.Config, error) {
	cfg, warnings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	for _, w := range append(warnings, cfg.Validate()...) {
		util.WarnLog("Config: %s", w)
	}
	return cfg, nil
}

// openStore opens the history database, creating its folder. Databases on
// network filesystems get the network pragmas.
func openStore(path string) (*store.Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database folder: %w", err)
	}

	opts := &store.OpenOptions{NetworkOptimized: util.IsNetworkPath(dir)}
	if opts.NetworkOptimized {
		util.WarnLog("Database %s is on a network filesystem; SQLite locking may be unreliable", path)
	}

	db, err := store.OpenWithOptions(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// openEventLogger opens the JSONL event log, or returns a no-op logger if
// the log folder is unusable.
func openEventLogger(cfg *config.Config) *report.EventLogger {
	level := report.LevelInfo
	if viper.GetBool("verbose") {
		level = report.LevelDebug
	}
	logger, err := report.NewEventLogger(cfg.LogDir, level)
	if err != nil {
		util.WarnLog("Event log disabled: %v", err)
		return report.NullLogger()
	}
	return logger
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	file := viper.ConfigFileUsed()
	if file == "" {
		file = "(none, using defaults)"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, [][]string{
		{"Config file", file},
		{"Root", cfg.Root},
		{"Watch folders", strings.Join(cfg.WatchFolders, "\n")},
		{"Settle time", cfg.SettleDuration.String()},
		{"Big file routing", fmt.Sprintf("%t (>= %s to %q)", cfg.BigFileRouting, util.FormatBytes(cfg.BigFileThreshold), cfg.BigFilesCategory)},
		{"Default category", cfg.DefaultCategory},
		{"Ignored extensions", strings.Join(cfg.IgnoreExtensions, " ")},
		{"Content hashing", fmt.Sprintf("%t", cfg.HashContent)},
		{"Database", cfg.DBPath},
		{"Event logs", cfg.LogDir},
	}, nil))

	rows := make([][]string, 0, len(cfg.Categories))
	for _, rule := range cfg.Categories {
		folder := filepath.Join(cfg.Root, rule.Category, rule.Subfolder)
		rows = append(rows, []string{rule.Category, folder, wrapWords(rule.Extensions, 8)})
	}
	fmt.Fprintln(out, renderTable([]string{"Category", "Folder", "Extensions"}, rows, nil))

	folders := classify.New(cfg).Folders()
	fmt.Fprintf(out, "%d destination folders, settle time %s\n", len(folders), cfg.SettleDuration.Round(time.Second))
	return nil
}

// wrapWords joins words with spaces, breaking the line every perLine words
func wrapWords(words []string, perLine int) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			if i%perLine == 0 {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(w)
	}
	return b.String()
}
