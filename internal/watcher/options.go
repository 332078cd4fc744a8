package watcher

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Options configures the inbox watcher.
type Options struct {
	// Extensions lists accepted file extensions, lower case with the dot.
	Extensions     []string
	IgnorePatterns []string
	SettleDelay    time.Duration
	IgnoreHidden   bool
}

func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 500 * time.Millisecond
	}
	if o.Extensions == nil {
		o.Extensions = []string{".csv", ".ics", ".ical"}
	}

	// Hidden files are ignored by default only when no patterns were given;
	// an explicit (even empty) pattern list keeps the caller's IgnoreHidden.
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".DS_Store",
			"*.tmp",
			"*.part",
			"*.swp",
			"Thumbs.db",
		}
		o.IgnoreHidden = true
	}
}

// shouldIgnore reports whether the file at path is not an import candidate.
func (o *Options) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if o.IgnoreHidden && strings.HasPrefix(base, ".") {
		return true
	}
	for _, pattern := range o.IgnorePatterns {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return !slices.Contains(o.Extensions, strings.ToLower(filepath.Ext(base)))
}
