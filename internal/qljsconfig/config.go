// Package qljsconfig implements the opaque per-file Configuration object
// (spec.md §3, §6): a mutable value carrying parsed globals and lint rules,
// constructed from a JSON byte buffer, identified by its source config
// file's canonical path. The parser itself sits outside the module's core
// concern (spec.md §1 "Out of scope"); this package exists only far enough
// to make the Core's cache and identity-sharing invariants observable and
// testable end to end.
package qljsconfig

import (
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
)

// Global describes one recognized global variable.
type Global struct {
	Writable   bool
	Shadowable bool
}

// Configuration is the mutable, in-place-reloadable object the Core caches
// by canonical path (spec.md §9 "In-place configuration mutation").
type Configuration struct {
	mu sync.RWMutex

	// configFilePath is the canonical path of the config file this object
	// was most recently loaded from, or "" if it has never been loaded
	// (i.e. it is the Default Config).
	configFilePath string

	globals map[string]Global
	rules   map[string]bool

	// loadError is set when the last LoadFromBytes call failed to parse.
	// A parse failure never evicts the object from the cache; it lives on
	// the configuration itself (spec.md §7).
	loadError error
}

// New returns a zero-value Configuration ready for LoadFromBytes.
func New() *Configuration {
	return &Configuration{
		globals: make(map[string]Global),
		rules:   make(map[string]bool),
	}
}

// Reset clears all parsed state, keeping the object's identity. Required by
// the cache's "hit with different bytes" path (spec.md §4.1 "Cache
// integration").
func (c *Configuration) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globals = make(map[string]Global)
	c.rules = make(map[string]bool)
	c.loadError = nil
}

// SetConfigFilePath records which canonical path this configuration was
// loaded from.
func (c *Configuration) SetConfigFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configFilePath = path
}

// ConfigFilePath returns the canonical path this configuration was loaded
// from, or "" for the Default Config.
func (c *Configuration) ConfigFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configFilePath
}

// LoadError returns the parse error from the most recent LoadFromBytes
// call, if any.
func (c *Configuration) LoadError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadError
}

// LoadFromBytes parses a JSON (optionally JSON-with-comments) configuration
// document and populates globals/rules. A parse failure is recorded on
// LoadError and does not panic; callers can still cache and use the object
// (spec.md §7 "Configuration parse failure").
func (c *Configuration) LoadFromBytes(data []byte) error {
	clean := jsonc.ToJSON(data)
	if !gjson.ValidBytes(clean) {
		c.mu.Lock()
		c.loadError = errInvalidJSON
		c.mu.Unlock()
		return c.loadError
	}

	root := gjson.ParseBytes(clean)

	globals := make(map[string]Global)
	root.Get("globals").ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		switch value.Type {
		case gjson.True, gjson.False:
			globals[name] = Global{Writable: value.Bool()}
		case gjson.JSON:
			globals[name] = Global{
				Writable:   value.Get("writable").Bool(),
				Shadowable: value.Get("shadowable").Bool(),
			}
		default:
			globals[name] = Global{}
		}
		return true
	})

	rules := make(map[string]bool)
	root.Get("rules").ForEach(func(key, value gjson.Result) bool {
		rules[key.String()] = value.Bool()
		return true
	})

	c.mu.Lock()
	c.globals = globals
	c.rules = rules
	c.loadError = nil
	c.mu.Unlock()
	return nil
}

// HasGlobal reports whether name is a recognized global in this
// configuration, falling back to the built-in default globals so a
// partially-specified user config still recognizes ubiquitous names
// (mirrors quick-lint-js's own layered-default behavior).
func (c *Configuration) HasGlobal(name string) bool {
	c.mu.RLock()
	_, ok := c.globals[name]
	c.mu.RUnlock()
	if ok {
		return true
	}
	if c == defaultConfiguration {
		return false
	}
	return defaultConfiguration.HasGlobal(name)
}

// RuleEnabled reports whether the named lint rule is enabled, falling back
// to the built-in defaults.
func (c *Configuration) RuleEnabled(name string) bool {
	c.mu.RLock()
	enabled, ok := c.rules[name]
	c.mu.RUnlock()
	if ok {
		return enabled
	}
	if c == defaultConfiguration {
		return false
	}
	return defaultConfiguration.RuleEnabled(name)
}
