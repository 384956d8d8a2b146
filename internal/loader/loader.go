// Package loader implements the Loader front-end (spec.md §4.1 "Resolution
// algorithm (shared with Loader)"): a thinner sibling of the Change Detector
// Core aimed at one-shot invocations (a linter run over a single file, or a
// stdin pipe) rather than a long-lived watch set. It shares the Core's
// Loaded Config cache and ancestor-walk algorithm, but canonicalization and
// read failures are surfaced as errors instead of a panic or a logged
// warning, and it additionally supports an explicit `--config-file` path
// and current-working-directory-relative resolution.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quick-lint/configwatch/internal/detector"
	"github.com/quick-lint/configwatch/internal/fsabs"
	"github.com/quick-lint/configwatch/internal/pathkey"
	"github.com/quick-lint/configwatch/internal/qljsconfig"
)

// getwd is overridden in tests so resolution can be exercised without
// depending on the real process working directory.
var getwd = os.Getwd

// stdinPseudoName is the synthetic file name used to resolve stdin mode as
// though the piped input were a file in the working directory (spec.md
// §4.1 "Stdin mode (Loader only)").
const stdinPseudoName = "<stdin>"

// CanonicalizeError reports a path that the FS could not canonicalize. The
// Core panics on this condition (spec.md §7); the Loader returns it instead,
// since a one-shot invocation has a caller able to act on an error.
type CanonicalizeError struct {
	Path   string
	Reason string
}

func (e *CanonicalizeError) Error() string {
	return fmt.Sprintf("configwatch: canonicalize %q: %s", e.Path, e.Reason)
}

// ReadError reports a non-not-found failure reading a probed configuration
// file name inside dir, e.g. a directory sitting where a config file name
// was expected (spec.md §4.6 edge cases; "Loader tests require the error
// text to mention the directory and an OS-level reason").
type ReadError struct {
	Directory string
	Name      string
	Reason    string
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("configwatch: reading %s in %s: %s", e.Name, e.Directory, e.Reason)
}

// Loader resolves a Configuration for a single invocation. It is safe to
// reuse across many Load calls within one process so repeated invocations
// against the same explicit or discovered config file continue to share one
// cached Configuration object with each other and with any Core built over
// the same fsabs.FS and *detector.Core.
type Loader struct {
	fs   fsabs.FS
	core *detector.Core
}

// New builds a Loader that shares core's Loaded Config cache. Passing the
// process-long-lived Core used by a watcher lets a one-shot lookup and a
// live watch observe the same Configuration identity for the same file.
func New(fs fsabs.FS, core *detector.Core) *Loader {
	return &Loader{fs: fs, core: core}
}

// Load resolves the configuration that applies to path. An empty or "-"
// path means stdin mode (spec.md §4.1 "Stdin mode"). If explicitConfigFile
// is non-empty it bypasses the ancestor walk (spec.md §4.1 "explicit
// configuration file"); otherwise the usual ancestor walk runs starting
// from path's resolved location.
func (l *Loader) Load(path string, explicitConfigFile string) (*qljsconfig.Configuration, error) {
	if explicitConfigFile != "" {
		return l.loadExplicit(explicitConfigFile)
	}

	resolvedPath, err := l.resolveInputPath(path)
	if err != nil {
		return nil, err
	}

	canonical, err := l.canonicalize(resolvedPath)
	if err != nil {
		return nil, err
	}

	start := detector.StartingDirectory(canonical)
	matchPath, matchContent, found, err := detector.AncestorSearch(l.fs, start, l.onReadError)
	if err != nil {
		return nil, err
	}
	if !found {
		return qljsconfig.Default(), nil
	}
	return l.core.CacheConfig(matchPath, matchContent), nil
}

// loadExplicit implements the `--config-file` path: a single read at a
// known location, no ancestor walk, but still folded into the shared cache
// by canonical path (spec.md §4.1).
func (l *Loader) loadExplicit(configFile string) (*qljsconfig.Configuration, error) {
	canonical, err := l.canonicalize(configFile)
	if err != nil {
		return nil, err
	}

	dir, ok := canonical.Parent()
	if !ok {
		return nil, fmt.Errorf("configwatch: explicit config file %q has no parent directory", canonical.String())
	}
	name := canonical.Base()

	l.fs.EnterDirectory(dir)
	result := l.fs.ReadFile(dir, name)
	if !result.OK() {
		if result.NotFound {
			return nil, fmt.Errorf("configwatch: config file not found: %s", canonical.String())
		}
		return nil, &ReadError{Directory: dir.String(), Name: name, Reason: result.Error}
	}

	return l.core.CacheConfig(canonical, result.Data), nil
}

// resolveInputPath implements spec.md §4.1's "Relative input paths" and
// "Stdin mode" edge cases: a relative path is resolved against the process
// working directory at call time, and stdin is treated as a pseudo-file
// inside that same directory.
func (l *Loader) resolveInputPath(path string) (string, error) {
	if path == "" || path == "-" {
		cwd, err := getwd()
		if err != nil {
			return "", fmt.Errorf("configwatch: resolving working directory for stdin: %w", err)
		}
		return filepath.Join(cwd, stdinPseudoName), nil
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	cwd, err := getwd()
	if err != nil {
		return "", fmt.Errorf("configwatch: resolving working directory for %q: %w", path, err)
	}
	return filepath.Join(cwd, path), nil
}

func (l *Loader) canonicalize(path string) (pathkey.Canonical, error) {
	result := l.fs.Canonicalize(path)
	if !result.OK() {
		return pathkey.Canonical{}, &CanonicalizeError{Path: path, Reason: result.Error}
	}
	return result.Path, nil
}

func (l *Loader) onReadError(dir pathkey.Canonical, name string, reason string) error {
	return &ReadError{Directory: dir.String(), Name: name, Reason: reason}
}
