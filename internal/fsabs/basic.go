package fsabs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/quick-lint/configwatch/internal/pathkey"
)

// basicFS is the passive, non-watching realization backed by the real
// filesystem. EnterDirectory is a no-op beyond bookkeeping; there is no
// notification support.
type basicFS struct {
	mu      sync.Mutex
	entered map[string]struct{}
}

// singletonBasic is the process-wide non-watching FS instance (spec.md §6
// "Process-wide state").
var singletonBasic = &basicFS{entered: make(map[string]struct{})}

// Basic returns the singleton passive FS realization.
func Basic() FS {
	return singletonBasic
}

// NewBasic constructs an independent basic FS realization, useful in tests
// that want isolated EnterDirectory bookkeeping.
func NewBasic() FS {
	return &basicFS{entered: make(map[string]struct{})}
}

func (b *basicFS) Canonicalize(path string) CanonicalResult {
	canon, err := canonicalizeReal(path)
	if err != nil {
		return CanonicalResult{Error: err.Error()}
	}
	return CanonicalResult{Path: canon}
}

func (b *basicFS) EnterDirectory(dir pathkey.Canonical) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entered[dir.Key()] = struct{}{}
}

func (b *basicFS) ReadFile(dir pathkey.Canonical, name string) ReadResult {
	full := filepath.Join(dir.String(), name)
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ReadResult{Error: err.Error(), NotFound: true}
		}
		info, statErr := os.Stat(full)
		if statErr == nil && info.IsDir() {
			return ReadResult{Error: full + " is a directory, not a file"}
		}
		return ReadResult{Error: err.Error()}
	}
	return ReadResult{Data: data}
}

// canonicalizeReal resolves path against the process working directory,
// following symlinks through the existing prefix (spec.md §9 Open Question,
// resolved in DESIGN.md: resolve through symlinks; watch the resolved
// target) and reporting any trailing components that do not exist.
func canonicalizeReal(path string) (pathkey.Canonical, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		wd, err := os.Getwd()
		if err != nil {
			return pathkey.Canonical{}, err
		}
		abs = filepath.Join(wd, abs)
	}
	abs = filepath.Clean(abs)

	volume := filepath.VolumeName(abs)
	rest := strings.TrimPrefix(abs, volume)
	rest = strings.TrimPrefix(rest, string(filepath.Separator))
	var allComponents []string
	if rest != "" {
		allComponents = strings.Split(rest, string(filepath.Separator))
	}

	// Walk from the root down, resolving symlinks as we find an existing
	// prefix, and counting how many trailing components are missing.
	existingPath, missingTail, err := splitExisting(volume, allComponents)
	if err != nil {
		return pathkey.Canonical{}, err
	}

	resolved := existingPath
	if target, err := filepath.EvalSymlinks(existingPath); err == nil {
		resolved = target
	}

	resolvedVolume := filepath.VolumeName(resolved)
	resolvedRest := strings.TrimPrefix(resolved, resolvedVolume)
	resolvedRest = strings.TrimPrefix(resolvedRest, string(filepath.Separator))
	var resolvedComponents []string
	if resolvedRest != "" {
		resolvedComponents = strings.Split(resolvedRest, string(filepath.Separator))
	}

	finalComponents := append(resolvedComponents, missingTail...)
	return pathkey.New(resolvedVolume, finalComponents, len(missingTail)), nil
}

// splitExisting returns the longest existing prefix of the path (as a
// joined, OS-native path string, always at least the root) and the
// trailing components that do not exist.
func splitExisting(volume string, components []string) (string, []string, error) {
	root := volume + string(filepath.Separator)
	current := root
	for i, comp := range components {
		candidate := filepath.Join(current, comp)
		if _, err := os.Lstat(candidate); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return current, components[i:], nil
			}
			return "", nil, err
		}
		current = candidate
	}
	return current, nil, nil
}
