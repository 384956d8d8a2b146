// Package detector implements the Change Detector Core (spec.md §4.1): an
// FS-agnostic component owning the set of watched files, the Loaded Config
// cache, and the ancestor-walk resolution algorithm shared with the Loader.
package detector

import (
	"fmt"
	"sync"
	"time"

	"github.com/quick-lint/configwatch/internal/fsabs"
	"github.com/quick-lint/configwatch/internal/logging"
	"github.com/quick-lint/configwatch/internal/metrics"
	"github.com/quick-lint/configwatch/internal/pathkey"
	"github.com/quick-lint/configwatch/internal/qljsconfig"
)

// configFileNames are probed in this strict order at every ancestor
// directory; the first match wins and the non-dot name shadows the dot
// name in the same directory (spec.md §4.1, §6).
var configFileNames = []string{"quick-lint-js.config", ".quick-lint-js.config"}

// watchedFile is one entry of Core.watches: a source file path under
// observation plus the last resolution observed for it, so Refresh can
// tell whether anything changed (spec.md §3 "Watched File").
type watchedFile struct {
	originalPath   string
	lastConfigKey  string // "" means the Default Config currently applies.
	lastGeneration int
}

// Publisher is the subset of *event.Bus[ChangeEvent] that Core needs to
// announce changes. Accepting this instead of the concrete bus type lets
// tests substitute event.MockBus[ChangeEvent] to observe what Refresh
// publishes.
type Publisher interface {
	Publish(ChangeEvent)
}

// CoreOptions configures a Core. All fields are optional.
type CoreOptions struct {
	// BackendName labels the "backend" dimension of the changes-emitted
	// metric (e.g. "fake", "linux-inotify"); defaults to "unknown".
	BackendName string
	Bus         Publisher
	Registry    *metrics.Registry
	Logger      *logging.Logger
}

// Core is the FS-agnostic Change Detector Core (spec.md §2, §4.1). It is
// not safe for concurrent use without external synchronization (spec.md
// §5 "Shared-resource policy"); the mutex here only protects against
// concurrent calls into the same Core instance, which spec.md's single-
// threaded cooperative model otherwise forbids by convention.
type Core struct {
	mu sync.Mutex

	fs          fsabs.FS
	backendName string
	bus         Publisher
	registry    *metrics.Registry
	logger      *logging.Logger

	cache   *cache
	watches map[string]*watchedFile
	order   []string
}

// NewCore constructs a Change Detector Core over fs.
func NewCore(fs fsabs.FS, opts CoreOptions) *Core {
	backendName := opts.BackendName
	if backendName == "" {
		backendName = "unknown"
	}
	registry := opts.Registry
	if registry == nil {
		registry = metrics.Default
	}
	return &Core{
		fs:          fs,
		backendName: backendName,
		bus:         opts.Bus,
		registry:    registry,
		logger:      opts.Logger,
		cache:       newCache(),
		watches:     make(map[string]*watchedFile),
	}
}

// GetConfigForFile registers path as watched (idempotent by path string)
// and returns the resolved configuration, or the Default Config if none
// applies. It never fails for not-found situations; canonicalization
// failure panics, matching spec.md §7 ("the Core panics; the environment
// assumes canonicalization succeeds for previously seen paths").
func (core *Core) GetConfigForFile(path string) *qljsconfig.Configuration {
	core.mu.Lock()
	defer core.mu.Unlock()

	wf, ok := core.watches[path]
	if !ok {
		wf = &watchedFile{originalPath: path}
		core.watches[path] = wf
		core.order = append(core.order, path)
		core.registry.IncWatchRegistered()
	}

	res := core.resolve(path)
	wf.lastConfigKey = res.key
	wf.lastGeneration = res.generation
	return res.config
}

// Refresh re-resolves every watched file and returns one ChangeEvent per
// watched file whose resolved configuration identity or content changed
// since the last observation (spec.md §4.1 "Change detection in refresh").
// Events are also published on the Core's bus, if one was configured.
// Returned events preserve watch-registration order (spec.md §5 "Ordering
// guarantees").
func (core *Core) Refresh() []ChangeEvent {
	core.mu.Lock()
	defer core.mu.Unlock()

	core.registry.IncRefreshRun()

	var changes []ChangeEvent
	for _, path := range core.order {
		wf := core.watches[path]
		res := core.resolve(path)

		changed := res.key != wf.lastConfigKey
		if !changed && res.key != "" {
			changed = res.generation != wf.lastGeneration
		}
		if !changed {
			continue
		}

		wf.lastConfigKey = res.key
		wf.lastGeneration = res.generation

		change := ChangeEvent{
			WatchedPath:    path,
			ConfigFilePath: res.configPath,
			Config:         res.config,
			OccurredAt:     time.Now().UTC(),
		}
		changes = append(changes, change)
		core.registry.IncChangeEmitted(core.backendName)
		if core.bus != nil {
			core.bus.Publish(change)
		}
	}
	return changes
}

// Prune removes Loaded Config cache entries no longer referenced by any
// live watch (spec.md §9 Open Question: stale cache-entry cleanup). It is
// never called automatically; calling it does not change Refresh's
// documented behavior or complexity.
func (core *Core) Prune() int {
	core.mu.Lock()
	defer core.mu.Unlock()

	live := make(map[string]struct{}, len(core.watches))
	for _, wf := range core.watches {
		if wf.lastConfigKey != "" {
			live[wf.lastConfigKey] = struct{}{}
		}
	}
	return core.cache.prune(live)
}

// resolution is the outcome of running the ancestor-walk algorithm once
// for a single watched path.
type resolution struct {
	key        string // "" when the Default Config applies.
	configPath string // "" when the Default Config applies.
	config     *qljsconfig.Configuration
	generation int
}

// resolve runs the algorithm shared with the Loader (spec.md §4.1
// "Resolution algorithm (shared with Loader)") for a single path and
// folds the result into the Loaded Config cache. Canonicalization failure
// panics here; the Loader variant canonicalizes up front and surfaces the
// same failure as an error instead (spec.md §7).
func (core *Core) resolve(path string) resolution {
	result := core.fs.Canonicalize(path)
	if !result.OK() {
		panic(fmt.Sprintf("configwatch: canonicalize %q: %s", path, result.Error))
	}

	start := StartingDirectory(result.Path)

	matchPath, matchContent, found, _ := AncestorSearch(core.fs, start, core.onReadError)
	if !found {
		return resolution{config: qljsconfig.Default()}
	}

	entry, op := core.cache.resolveEntry(matchPath, matchContent)
	switch op {
	case "hit":
		core.registry.IncCacheHit()
	case "miss":
		core.registry.IncCacheMiss()
	case "mutated":
		core.registry.IncCacheMutation()
	}

	return resolution{
		key:        matchPath.Key(),
		configPath: matchPath.String(),
		config:     entry.config,
		generation: entry.generation,
	}
}

// CacheConfig folds an already-read configuration file's content into the
// Loaded Config cache shared with the ancestor walk above, keyed by path's
// canonical form. It is exported for the Loader, which performs its own
// ancestor walk (with stricter read-failure handling) but still shares this
// cache, so an explicit `--config-file` and a discovered ancestor config at
// the same canonical path observe the same Configuration object (spec.md
// §4.1 "explicit configuration file").
func (core *Core) CacheConfig(path pathkey.Canonical, content []byte) *qljsconfig.Configuration {
	core.mu.Lock()
	defer core.mu.Unlock()

	entry, op := core.cache.resolveEntry(path, content)
	switch op {
	case "hit":
		core.registry.IncCacheHit()
	case "miss":
		core.registry.IncCacheMiss()
	case "mutated":
		core.registry.IncCacheMutation()
	}
	return entry.config
}

// StartingDirectory implements spec.md §4.1 step 1: drop a missing tail if
// present, else treat the (fully existing) input as a file and start from
// its parent. Exported so the Loader's own ancestor walk starts from the
// same place as the Core's.
func StartingDirectory(canonical pathkey.Canonical) pathkey.Canonical {
	if canonical.HasMissingComponents() {
		return canonical.ExistingPrefix()
	}
	if parent, ok := canonical.Parent(); ok {
		return parent
	}
	return canonical
}

// ReadErrorFunc is called by AncestorSearch for every read failure other
// than not-found (spec.md §4.6 "Directory present where a config file name
// is expected"). Returning a non-nil error aborts the walk with that error;
// returning nil treats the failure as a non-match and continues ascending.
type ReadErrorFunc func(dir pathkey.Canonical, name string, reason string) error

// AncestorSearch walks from start toward the filesystem root, announcing
// every ancestor to fs and probing configFileNames at each one until the
// first match, then continues ascending (still announcing) without probing
// further, since closer configs shadow farther ones (spec.md §4.1 step 2).
// This is the resolution algorithm shared between the Core and the Loader;
// the two differ only in onReadError (the Core logs and continues, the
// Loader aborts and surfaces an error to its caller).
func AncestorSearch(fs fsabs.FS, start pathkey.Canonical, onReadError ReadErrorFunc) (pathkey.Canonical, []byte, bool, error) {
	current := start
	found := false
	var matchPath pathkey.Canonical
	var matchContent []byte

	for {
		fs.EnterDirectory(current)

		if !found {
			for _, name := range configFileNames {
				result := fs.ReadFile(current, name)
				if result.OK() {
					found = true
					matchPath = current.Join(name)
					matchContent = result.Data
					break
				}
				if !result.NotFound && onReadError != nil {
					if err := onReadError(current, name, result.Error); err != nil {
						return pathkey.Canonical{}, nil, false, err
					}
				}
			}
		}

		parent, ok := current.Parent()
		if !ok {
			break
		}
		current = parent
	}

	return matchPath, matchContent, found, nil
}

func (core *Core) onReadError(dir pathkey.Canonical, name string, reason string) error {
	core.logWarn("config read failed", map[string]string{
		"directory": dir.String(),
		"name":      name,
		"error":     reason,
	})
	return nil
}

func (core *Core) logWarn(message string, fields map[string]string) {
	if core.logger == nil {
		return
	}
	core.logger.Warn(message, fields)
}
