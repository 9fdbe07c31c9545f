// Package config holds the settings snapshot shared by the classifier,
// sorter and watcher, loaded through viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/unicode/norm"

	"github.com/franz/download-janitor/internal/util"
)

// CategoryRule maps a set of extensions to a destination category
type CategoryRule struct {
	Category   string   `mapstructure:"name"`
	Extensions []string `mapstructure:"extensions"`
	Subfolder  string   `mapstructure:"subfolder"`
}

// Config is an immutable settings snapshot. Components take a copy at
// construction time and never re-read it mid-batch.
type Config struct {
	Root             string
	WatchFolders     []string
	SettleDuration   time.Duration
	BigFileThreshold int64
	BigFileRouting   bool
	BigFilesCategory string
	DefaultCategory  string
	IgnoreExtensions []string
	Categories       []CategoryRule
	HashContent      bool
	DBPath           string
	LogDir           string
}

// Load builds a Config from viper, applying defaults and clamping invalid
// values. Problems that do not prevent operation are returned as warnings.
func Load(v *viper.Viper) (*Config, []string, error) {
	if v == nil {
		v = viper.GetViper()
	}
	SetDefaults(v)

	var warnings []string

	root, err := expandHome(v.GetString(KeyRoot))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: root: %v", util.ErrInvalidConfig, err)
	}
	if root == "" {
		return nil, nil, fmt.Errorf("%w: root folder is empty", util.ErrInvalidConfig)
	}

	cfg := &Config{
		Root:             filepath.Clean(root),
		BigFileRouting:   v.GetBool(KeyBigFileRouting),
		BigFilesCategory: strings.TrimSpace(v.GetString(KeyBigFilesCategory)),
		DefaultCategory:  strings.TrimSpace(v.GetString(KeyDefaultCategory)),
		IgnoreExtensions: append([]string(nil), v.GetStringSlice(KeyIgnoreExtensions)...),
		HashContent:      v.GetBool(KeyHashContent),
	}

	settle := v.GetInt(KeySettleSeconds)
	if settle < 0 {
		warnings = append(warnings, fmt.Sprintf("settle_seconds %d is negative, using %d", settle, DefaultSettleSeconds))
		settle = DefaultSettleSeconds
	}
	cfg.SettleDuration = time.Duration(settle) * time.Second

	threshold, err := util.ParseBytes(v.GetString(KeyBigFileThreshold))
	if err != nil || threshold < 0 {
		warnings = append(warnings, fmt.Sprintf("big_file_threshold %q is invalid, using %s",
			v.GetString(KeyBigFileThreshold), util.FormatBytes(DefaultBigFileThreshold)))
		threshold = DefaultBigFileThreshold
	}
	cfg.BigFileThreshold = threshold

	if cfg.BigFilesCategory == "" {
		cfg.BigFilesCategory = DefaultBigFilesCategory
	}
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = DefaultUnsortedCategory
	}

	for _, folder := range v.GetStringSlice(KeyWatchFolders) {
		expanded, err := expandHome(folder)
		if err != nil || strings.TrimSpace(expanded) == "" {
			warnings = append(warnings, fmt.Sprintf("ignoring watch folder %q", folder))
			continue
		}
		cfg.WatchFolders = append(cfg.WatchFolders, filepath.Clean(expanded))
	}
	if len(cfg.WatchFolders) == 0 {
		cfg.WatchFolders = []string{cfg.InboxPath()}
	}

	if v.IsSet(KeyCategories) {
		if err := v.UnmarshalKey(KeyCategories, &cfg.Categories); err != nil {
			warnings = append(warnings, fmt.Sprintf("categories are malformed (%v), using built-in table", err))
			cfg.Categories = nil
		}
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}

	cfg.DBPath = v.GetString(KeyDB)
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.Root, ".dlj", "history.db")
	}
	cfg.LogDir = v.GetString(KeyLogDir)
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.Root, ".dlj", "logs")
	}

	warnings = append(warnings, cfg.Normalize()...)
	return cfg, warnings, nil
}

// Normalize canonicalises extensions in place and reports rules that claim
// an extension already owned by an earlier rule. It is idempotent.
func (c *Config) Normalize() []string {
	var warnings []string

	for i, ext := range c.IgnoreExtensions {
		c.IgnoreExtensions[i] = NormalizeExtension(ext)
	}

	owner := make(map[string]string)
	for i := range c.Categories {
		rule := &c.Categories[i]
		rule.Category = strings.TrimSpace(rule.Category)
		rule.Subfolder = strings.Trim(strings.TrimSpace(rule.Subfolder), `/\`)
		if rule.Category == "" {
			warnings = append(warnings, fmt.Sprintf("category rule %d has no name", i+1))
		}
		for j, ext := range rule.Extensions {
			n := NormalizeExtension(ext)
			rule.Extensions[j] = n
			if prev, ok := owner[n]; ok && prev != rule.Category {
				warnings = append(warnings, fmt.Sprintf("extension %q is claimed by %q and %q; %q wins",
					n, prev, rule.Category, prev))
				continue
			}
			owner[n] = rule.Category
		}
	}

	return warnings
}

// InboxPath is the default watch folder derived from the root
func (c *Config) InboxPath() string {
	return filepath.Join(c.Root, "Inbox")
}

// ShouldIgnore reports whether the file's extension is on the ignore list
func (c *Config) ShouldIgnore(path string) bool {
	ext := NormalizeExtension(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, ignored := range c.IgnoreExtensions {
		if NormalizeExtension(ignored) == ext {
			return true
		}
	}
	return false
}

// Validate re-runs the configuration checks and returns the warnings
func (c *Config) Validate() []string {
	var warnings []string
	if c.SettleDuration < 0 {
		warnings = append(warnings, "settle duration is negative")
	}
	if c.BigFileThreshold < 0 {
		warnings = append(warnings, "big file threshold is negative")
	}
	destinations := map[string]bool{
		filepath.Join(c.Root, c.DefaultCategory):  true,
		filepath.Join(c.Root, c.BigFilesCategory): true,
	}
	for _, rule := range c.Categories {
		destinations[filepath.Join(c.Root, rule.Category, rule.Subfolder)] = true
	}
	for _, folder := range c.WatchFolders {
		folder = filepath.Clean(folder)
		if folder == c.Root {
			warnings = append(warnings, fmt.Sprintf("watch folder %s is the sort root itself", folder))
		}
		if destinations[folder] {
			warnings = append(warnings, fmt.Sprintf("watch folder %s is also a category destination", folder))
		}
	}
	return append(warnings, c.Normalize()...)
}

// NormalizeExtension lowercases, NFC-normalises and strips the leading dot.
// An empty result means "no extension" and never matches a rule.
func NormalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	ext = strings.TrimPrefix(ext, ".")
	return norm.NFC.String(strings.ToLower(ext))
}

func expandHome(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
