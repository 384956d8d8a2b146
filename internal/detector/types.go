package detector

import (
	"time"

	"github.com/quick-lint/configwatch/internal/qljsconfig"
)

// ChangeEvent is published on the Core's event bus (and returned from
// Refresh) whenever a watched file's resolved configuration identity or
// content changes (spec.md §4.1 "Change detection in refresh").
type ChangeEvent struct {
	// WatchedPath is the original, as-registered path string of the file
	// whose resolution changed. It is never re-canonicalized, so a
	// directory rename that unlinks a watched file's config still reports
	// the original path substring (spec.md §8 scenario 5).
	WatchedPath string

	// ConfigFilePath is the canonical path of the newly resolved
	// configuration file, or "" if the Default Config now applies.
	ConfigFilePath string

	// Config is the newly resolved configuration object: either a cached
	// Loaded Config or the process-wide Default Config.
	Config *qljsconfig.Configuration

	OccurredAt time.Time
}

func (e ChangeEvent) Type() string {
	return "config_changed"
}

func (e ChangeEvent) Timestamp() time.Time {
	return e.OccurredAt
}
