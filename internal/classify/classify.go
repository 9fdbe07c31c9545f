// Package classify maps a file's extension and size to a destination folder.
package classify

import (
	"path/filepath"

	"github.com/franz/download-janitor/internal/config"
)

// Destination is the outcome of classifying one file
type Destination struct {
	Category string // category name, e.g. "Documents" or "Big Files"
	Folder   string // absolute folder under the sort root
}

// Classifier evaluates a config snapshot. It holds no mutable state and is
// safe for concurrent use.
type Classifier struct {
	root             string
	rules            []config.CategoryRule
	bigFileRouting   bool
	bigFileThreshold int64
	bigFilesCategory string
	defaultCategory  string
}

// New builds a Classifier from cfg. The rule table is copied so later edits
// to cfg do not leak into an in-flight batch.
func New(cfg *config.Config) *Classifier {
	rules := make([]config.CategoryRule, len(cfg.Categories))
	for i, rule := range cfg.Categories {
		rules[i] = config.CategoryRule{
			Category:   rule.Category,
			Subfolder:  rule.Subfolder,
			Extensions: make([]string, 0, len(rule.Extensions)),
		}
		for _, ext := range rule.Extensions {
			rules[i].Extensions = append(rules[i].Extensions, config.NormalizeExtension(ext))
		}
	}

	return &Classifier{
		root:             cfg.Root,
		rules:            rules,
		bigFileRouting:   cfg.BigFileRouting,
		bigFileThreshold: cfg.BigFileThreshold,
		bigFilesCategory: cfg.BigFilesCategory,
		defaultCategory:  cfg.DefaultCategory,
	}
}

// Classify returns the destination for a file with the given extension and size.
// Size routing wins over every extension rule; otherwise the first matching
// rule applies, then the default category.
func (c *Classifier) Classify(ext string, size int64) Destination {
	if c.bigFileRouting && size >= c.bigFileThreshold {
		return Destination{
			Category: c.bigFilesCategory,
			Folder:   filepath.Join(c.root, c.bigFilesCategory),
		}
	}

	ext = config.NormalizeExtension(ext)
	if ext != "" {
		for _, rule := range c.rules {
			if !contains(rule.Extensions, ext) {
				continue
			}
			folder := filepath.Join(c.root, rule.Category)
			if rule.Subfolder != "" {
				folder = filepath.Join(folder, rule.Subfolder)
			}
			return Destination{Category: rule.Category, Folder: folder}
		}
	}

	return Destination{
		Category: c.defaultCategory,
		Folder:   filepath.Join(c.root, c.defaultCategory),
	}
}

// GetDestination returns only the destination folder path
func (c *Classifier) GetDestination(ext string, size int64) string {
	return c.Classify(ext, size).Folder
}

// Folders lists every folder the classifier can route to, rules first.
// Used by doctor and the watcher to avoid watching a destination.
func (c *Classifier) Folders() []string {
	seen := make(map[string]bool)
	var folders []string
	add := func(folder string) {
		if !seen[folder] {
			seen[folder] = true
			folders = append(folders, folder)
		}
	}
	for _, rule := range c.rules {
		add(filepath.Join(c.root, rule.Category, rule.Subfolder))
	}
	add(filepath.Join(c.root, c.defaultCategory))
	if c.bigFileRouting {
		add(filepath.Join(c.root, c.bigFilesCategory))
	}
	return folders
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
