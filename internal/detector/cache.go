package detector

import (
	"bytes"

	"github.com/quick-lint/configwatch/internal/pathkey"
	"github.com/quick-lint/configwatch/internal/qljsconfig"
)

// loadedConfig is one entry of the Loaded Config cache (spec.md §3), keyed
// by the canonical path of the configuration file it was loaded from.
// generation is bumped every time content differs from what was previously
// observed, so Refresh can detect a content-only change on a canonical
// path whose identity did not move (spec.md §4.1 "Change detection").
type loadedConfig struct {
	path       pathkey.Canonical
	content    []byte
	config     *qljsconfig.Configuration
	generation int
}

// cache owns every Loaded Config for the lifetime of a Core. It is not
// thread-safe (spec.md §5 "Shared-resource policy"); the Core serializes
// access to it.
type cache struct {
	entries map[string]*loadedConfig
}

func newCache() *cache {
	return &cache{entries: make(map[string]*loadedConfig)}
}

// resolveEntry looks up or creates the Loaded Config for path, mutating an
// existing entry in place when its stored bytes differ from content
// (spec.md §4.1 "Cache integration", §9 "In-place configuration mutation").
// It reports whether the entry was newly inserted, found unchanged, or
// mutated, for metrics purposes.
func (c *cache) resolveEntry(path pathkey.Canonical, content []byte) (*loadedConfig, string) {
	key := path.Key()
	entry, ok := c.entries[key]
	if !ok {
		entry = &loadedConfig{
			path:    path,
			content: append([]byte(nil), content...),
			config:  qljsconfig.New(),
		}
		entry.config.SetConfigFilePath(path.String())
		entry.config.LoadFromBytes(entry.content)
		c.entries[key] = entry
		return entry, "miss"
	}
	if bytes.Equal(entry.content, content) {
		return entry, "hit"
	}
	entry.content = append([]byte(nil), content...)
	entry.config.Reset()
	entry.config.SetConfigFilePath(path.String())
	entry.config.LoadFromBytes(entry.content)
	entry.generation++
	return entry, "mutated"
}

// prune removes Loaded Config entries whose canonical path is no longer
// the resolution of any live watch (spec.md §9 Open Question "cleanup of
// stale entries in the loaded-config cache").
func (c *cache) prune(liveKeys map[string]struct{}) int {
	removed := 0
	for key := range c.entries {
		if _, live := liveKeys[key]; !live {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
