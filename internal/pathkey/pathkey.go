// Package pathkey implements the Canonical Path value type: an absolute,
// component-normalized path that may carry a trailing suffix of components
// that do not yet exist on disk.
package pathkey

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Canonical is a platform-normalized absolute path plus an optional suffix
// of components that were not found to exist when the path was resolved.
// Equality is componentwise, and case-sensitive except where the host OS
// defines otherwise (Windows).
type Canonical struct {
	components []string
	// missing is the count of trailing components (from the end of
	// components) that do not exist on disk. A value of 0 means the whole
	// path exists.
	missing int
	// volume holds a Windows drive/UNC volume prefix, empty on POSIX.
	volume string
}

// caseSensitive reports whether path components should compare
// case-sensitively on the current platform.
func caseSensitive() bool {
	return runtime.GOOS != "windows"
}

// New builds a Canonical path from a volume prefix, the path's components
// from the root down, and a count of trailing components known not to
// exist.
func New(volume string, components []string, missing int) Canonical {
	if missing < 0 {
		missing = 0
	}
	if missing > len(components) {
		missing = len(components)
	}
	cleaned := make([]string, len(components))
	copy(cleaned, components)
	return Canonical{volume: volume, components: cleaned, missing: missing}
}

// HasMissingComponents reports whether the canonical path carries a
// non-existent tail.
func (c Canonical) HasMissingComponents() bool {
	return c.missing > 0
}

// ExistingPrefix returns the canonical path with any missing trailing
// components dropped.
func (c Canonical) ExistingPrefix() Canonical {
	if c.missing == 0 {
		return c
	}
	return Canonical{
		volume:     c.volume,
		components: append([]string(nil), c.components[:len(c.components)-c.missing]...),
		missing:    0,
	}
}

// Parent returns the canonical path with its last existing-or-not component
// removed. Calling Parent on the root returns the root itself with ok=false.
func (c Canonical) Parent() (Canonical, bool) {
	if len(c.components) == 0 {
		return c, false
	}
	parentMissing := c.missing - 1
	if parentMissing < 0 {
		parentMissing = 0
	}
	return Canonical{
		volume:     c.volume,
		components: append([]string(nil), c.components[:len(c.components)-1]...),
		missing:    parentMissing,
	}, true
}

// Base returns the last component of the path, or "" for the root.
func (c Canonical) Base() string {
	if len(c.components) == 0 {
		return ""
	}
	return c.components[len(c.components)-1]
}

// Join appends a single path component.
func (c Canonical) Join(name string) Canonical {
	components := append(append([]string(nil), c.components...), name)
	return Canonical{volume: c.volume, components: components, missing: c.missing}
}

// String renders the canonical path using the host's path separator.
func (c Canonical) String() string {
	sep := string(filepath.Separator)
	if len(c.components) == 0 {
		if c.volume != "" {
			return c.volume + sep
		}
		return sep
	}
	return c.volume + sep + strings.Join(c.components, sep)
}

// Equal reports componentwise, platform-appropriate equality.
func (c Canonical) Equal(other Canonical) bool {
	if c.volume != other.volume || c.missing != other.missing {
		return equalVolume(c.volume, other.volume) && c.missing == other.missing && equalComponents(c.components, other.components)
	}
	return equalComponents(c.components, other.components)
}

func equalVolume(a, b string) bool {
	if caseSensitive() {
		return a == b
	}
	return strings.EqualFold(a, b)
}

func equalComponents(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sensitive := caseSensitive()
	for i := range a {
		if sensitive {
			if a[i] != b[i] {
				return false
			}
		} else if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Key returns a value suitable for use as a map key: the exact-cased string
// on case-sensitive platforms, the lowercased string otherwise. Two
// Canonical values that are Equal always produce the same Key.
func (c Canonical) Key() string {
	s := c.String()
	if caseSensitive() {
		return s
	}
	return strings.ToLower(s)
}
