package fsabs

import (
	"sort"
	"strings"
	"sync"

	"github.com/quick-lint/configwatch/internal/pathkey"
)

// FakeRootVolume is the sentinel prefix every path in a Fake filesystem is
// rooted at (spec.md §4.6 "a virtual tree rooted at a sentinel prefix").
const FakeRootVolume = "<fake>"

type fakeNode struct {
	isDir    bool
	data     []byte
	children map[string]*fakeNode
}

// Fake is the in-memory FS realization used by tests to exercise the
// resolution algorithm without OS coupling (spec.md §4.6).
type Fake struct {
	mu       sync.Mutex
	root     *fakeNode
	entered  map[string]struct{}
	enterLog []pathkey.Canonical
}

// NewFake constructs an empty Fake filesystem.
func NewFake() *Fake {
	return &Fake{
		root:    &fakeNode{isDir: true, children: make(map[string]*fakeNode)},
		entered: make(map[string]struct{}),
	}
}

// CreateFile writes bytes at path, creating any missing ancestor
// directories. path is a slash-separated path rooted below FakeRootVolume,
// e.g. "/X/quick-lint-js.config" or "X/quick-lint-js.config".
func (f *Fake) CreateFile(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	components := splitComponents(path)
	if len(components) == 0 {
		return
	}
	dir := f.root
	for _, comp := range components[:len(components)-1] {
		next, ok := dir.children[comp]
		if !ok || !next.isDir {
			next = &fakeNode{isDir: true, children: make(map[string]*fakeNode)}
			dir.children[comp] = next
		}
		dir = next
	}
	name := components[len(components)-1]
	dir.children[name] = &fakeNode{data: append([]byte(nil), data...)}
}

// Mkdir creates an (empty, if new) directory at path.
func (f *Fake) Mkdir(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	components := splitComponents(path)
	dir := f.root
	for _, comp := range components {
		next, ok := dir.children[comp]
		if !ok {
			next = &fakeNode{isDir: true, children: make(map[string]*fakeNode)}
			dir.children[comp] = next
		}
		dir = next
	}
}

// Remove deletes the file or empty bookkeeping for path.
func (f *Fake) Remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	components := splitComponents(path)
	if len(components) == 0 {
		return
	}
	dir := f.root
	for _, comp := range components[:len(components)-1] {
		next, ok := dir.children[comp]
		if !ok {
			return
		}
		dir = next
	}
	delete(dir.children, components[len(components)-1])
}

// Rename moves the file or directory at oldPath to newPath. If newPath's
// destination already exists it is replaced.
func (f *Fake) Rename(oldPath, newPath string) {
	f.mu.Lock()
	oldComponents := splitComponents(oldPath)
	if len(oldComponents) == 0 {
		f.mu.Unlock()
		return
	}
	oldParent := f.root
	for _, comp := range oldComponents[:len(oldComponents)-1] {
		next, ok := oldParent.children[comp]
		if !ok {
			f.mu.Unlock()
			return
		}
		oldParent = next
	}
	node, ok := oldParent.children[oldComponents[len(oldComponents)-1]]
	if !ok {
		f.mu.Unlock()
		return
	}
	delete(oldParent.children, oldComponents[len(oldComponents)-1])

	newComponents := splitComponents(newPath)
	newParent := f.root
	for _, comp := range newComponents[:len(newComponents)-1] {
		next, ok := newParent.children[comp]
		if !ok || !next.isDir {
			next = &fakeNode{isDir: true, children: make(map[string]*fakeNode)}
			newParent.children[comp] = next
		}
		newParent = next
	}
	newParent.children[newComponents[len(newComponents)-1]] = node
	f.mu.Unlock()
}

// WriteFile replaces the bytes stored at path. It behaves exactly like
// CreateFile: the file's node is replaced by a new one, and missing
// ancestor directories are created.
func (f *Fake) WriteFile(path string, data []byte) {
	f.CreateFile(path, data)
}

// Entered returns the canonical directories most recently announced via
// EnterDirectory, in call order, for assertions about ancestor-walk
// coverage.
func (f *Fake) Entered() []pathkey.Canonical {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pathkey.Canonical(nil), f.enterLog...)
}

func splitComponents(path string) []string {
	path = strings.TrimPrefix(path, FakeRootVolume)
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (f *Fake) lookup(components []string) (*fakeNode, int) {
	node := f.root
	for i, comp := range components {
		next, ok := node.children[comp]
		if !ok {
			return nil, len(components) - i
		}
		node = next
	}
	return node, 0
}

// Canonicalize implements FS. Every Fake path is absolute under
// FakeRootVolume; missing trailing components are reported, never an error.
func (f *Fake) Canonicalize(path string) CanonicalResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	components := splitComponents(path)
	_, missing := f.lookup(components)
	if missing > len(components) {
		missing = len(components)
	}
	return CanonicalResult{Path: pathkey.New(FakeRootVolume, components, missing)}
}

// EnterDirectory implements FS, recording the call for test assertions.
func (f *Fake) EnterDirectory(dir pathkey.Canonical) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := dir.Key()
	if _, ok := f.entered[key]; !ok {
		f.entered[key] = struct{}{}
	}
	f.enterLog = append(f.enterLog, dir)
}

// ReadFile implements FS.
func (f *Fake) ReadFile(dir pathkey.Canonical, name string) ReadResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	components := append(splitComponents(dir.String()), name)
	node, missing := f.lookup(components)
	if missing > 0 {
		return ReadResult{Error: name + " not found", NotFound: true}
	}
	if node.isDir {
		return ReadResult{Error: name + " is a directory, not a file"}
	}
	return ReadResult{Data: append([]byte(nil), node.data...)}
}

// ListDir returns the sorted names of entries directly under path, for
// diagnostics and tests.
func (f *Fake) ListDir(path string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	node, missing := f.lookup(splitComponents(path))
	if missing > 0 || node == nil || !node.isDir {
		return nil
	}
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
