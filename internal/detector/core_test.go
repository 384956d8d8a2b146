package detector

import (
	"testing"

	"github.com/quick-lint/configwatch/internal/event"
	"github.com/quick-lint/configwatch/internal/fsabs"
)

func newTestCore(fs *fsabs.Fake) *Core {
	return NewCore(fs, CoreOptions{BackendName: "fake"})
}

func TestIdentitySharing(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/quick-lint-js.config", []byte(`{}`))
	core := newTestCore(fs)

	a := core.GetConfigForFile("/X/a/hello.js")
	b := core.GetConfigForFile("/X/b/world.js")

	if a != b {
		t.Fatalf("expected identical config object, got distinct pointers")
	}
}

func TestDistinctByName(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/a/quick-lint-js.config", []byte(`{}`))
	fs.CreateFile("/X/b/.quick-lint-js.config", []byte(`{}`))
	core := newTestCore(fs)

	a := core.GetConfigForFile("/X/a/hello.js")
	b := core.GetConfigForFile("/X/b/hello.js")

	if a == b {
		t.Fatalf("expected distinct config objects for non-dot vs dot config files")
	}
}

func TestNoOpWrite(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/quick-lint-js.config", []byte(`{}`))
	core := newTestCore(fs)

	core.GetConfigForFile("/X/hello.js")
	fs.WriteFile("/X/quick-lint-js.config", []byte(`{}`))

	changes := core.Refresh()
	if len(changes) != 0 {
		t.Fatalf("expected zero changes for identical rewrite, got %d", len(changes))
	}
}

func TestRoundTrip(t *testing.T) {
	fs := fsabs.NewFake()
	original := []byte(`{"globals":{"a":true}}`)
	fs.CreateFile("/X/quick-lint-js.config", original)
	core := newTestCore(fs)

	core.GetConfigForFile("/X/hello.js")

	fs.WriteFile("/X/quick-lint-js.config", []byte(`{"globals":{"b":true}}`))
	fs.WriteFile("/X/quick-lint-js.config", original)

	changes := core.Refresh()
	if len(changes) != 0 {
		t.Fatalf("expected zero changes for A->B->A round trip, got %d", len(changes))
	}
}

func TestShadowPriority(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/.quick-lint-js.config", []byte(`{}`))
	fs.CreateFile("/X/quick-lint-js.config", []byte(`{}`))
	core := newTestCore(fs)

	core.GetConfigForFile("/X/hello.js")
	changes := core.Refresh()
	_ = changes

	config := core.GetConfigForFile("/X/hello.js")
	if config.ConfigFilePath() != "<fake>/X/quick-lint-js.config" {
		t.Fatalf("expected non-dot config to shadow dot config, got %q", config.ConfigFilePath())
	}
}

func TestAncestorFallback(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/quick-lint-js.config", []byte(`{}`))
	core := newTestCore(fs)

	config := core.GetConfigForFile("/X/a/b/hello.js")
	if config.ConfigFilePath() == "" {
		t.Fatalf("expected ancestor config to apply, got default")
	}
}

func TestMissingAncestorsDoNotFail(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/quick-lint-js.config", []byte(`{}`))
	core := newTestCore(fs)

	config := core.GetConfigForFile("/X/does/not/exist/hello.js")
	if config.ConfigFilePath() == "" {
		t.Fatalf("expected nearest existing ancestor's config, got default")
	}
}

func TestScenario1AncestorResolution(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/quick-lint-js.config", []byte(`{}`))
	core := newTestCore(fs)

	config := core.GetConfigForFile("/X/a/b/c/d/e/f/hello.js")
	if config.ConfigFilePath() != "<fake>/X/quick-lint-js.config" {
		t.Fatalf("expected config_file_path <fake>/X/quick-lint-js.config, got %q", config.ConfigFilePath())
	}
}

func TestScenario2ShadowByCreation(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/.quick-lint-js.config", []byte(`{}`))
	core := newTestCore(fs)
	core.GetConfigForFile("/X/hello.js")

	fs.CreateFile("/X/quick-lint-js.config", []byte(`{}`))

	changes := core.Refresh()
	if len(changes) != 1 {
		t.Fatalf("expected exactly one change, got %d", len(changes))
	}
	if changes[0].ConfigFilePath != "<fake>/X/quick-lint-js.config" {
		t.Fatalf("expected shadowed config path, got %q", changes[0].ConfigFilePath)
	}
}

func TestScenario3PartialRewrite(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/quick-lint-js.config", []byte(`{"globals":{"before":true}}`))
	core := newTestCore(fs)

	core.GetConfigForFile("/X/a.js")
	core.GetConfigForFile("/X/b.js")

	fs.WriteFile("/X/quick-lint-js.config", []byte(`{"globals":{"after_":true}}`))

	changes := core.Refresh()
	if len(changes) != 2 {
		t.Fatalf("expected one change per watched file sharing the config, got %d", len(changes))
	}
}

func TestScenario4RewriteToSameContent(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/quick-lint-js.config", []byte(`{"globals":{"a":true}}`))
	core := newTestCore(fs)
	core.GetConfigForFile("/X/hello.js")

	fs.WriteFile("/X/quick-lint-js.config", []byte(`{"globals":{"b":true}}`))
	fs.WriteFile("/X/quick-lint-js.config", []byte(`{"globals":{"a":true}}`))

	changes := core.Refresh()
	if len(changes) != 0 {
		t.Fatalf("expected zero changes, got %d", len(changes))
	}
}

func TestScenario5DirectoryRenameUnlinks(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/olddir/quick-lint-js.config", []byte(`{}`))
	fs.CreateFile("/X/olddir/hello.js", []byte(``))
	core := newTestCore(fs)

	core.GetConfigForFile("/X/olddir/hello.js")

	fs.Rename("/X/olddir", "/X/newdir")

	changes := core.Refresh()
	if len(changes) != 1 {
		t.Fatalf("expected exactly one change, got %d", len(changes))
	}
	if changes[0].ConfigFilePath != "" {
		t.Fatalf("expected the default config to apply after unlink, got %q", changes[0].ConfigFilePath)
	}
	if changes[0].WatchedPath != "/X/olddir/hello.js" {
		t.Fatalf("expected watched path to retain olddir substring, got %q", changes[0].WatchedPath)
	}
}

func TestScenario6DirectoryCreationThenConfig(t *testing.T) {
	fs := fsabs.NewFake()
	fs.Mkdir("/X")
	core := newTestCore(fs)

	core.GetConfigForFile("/X/dir/test.js")

	fs.Mkdir("/X/dir")
	fs.CreateFile("/X/dir/quick-lint-js.config", []byte(`{}`))

	changes := core.Refresh()
	if len(changes) != 1 {
		t.Fatalf("expected one batched change, got %d", len(changes))
	}
	if changes[0].ConfigFilePath != "<fake>/X/dir/quick-lint-js.config" {
		t.Fatalf("expected new config path, got %q", changes[0].ConfigFilePath)
	}
}

func TestScenario7ManyWatchersShareConfig(t *testing.T) {
	fs := fsabs.NewFake()
	fs.Mkdir("/X")
	core := newTestCore(fs)

	for i := 0; i < 10; i++ {
		core.GetConfigForFile(siblingPath(i))
	}

	fs.CreateFile("/X/quick-lint-js.config", []byte(`{}`))

	changes := core.Refresh()
	if len(changes) != 10 {
		t.Fatalf("expected ten changes, got %d", len(changes))
	}
	first := changes[0].Config
	for _, change := range changes[1:] {
		if change.Config != first {
			t.Fatalf("expected all ten changes to share one configuration object")
		}
	}
}

func siblingPath(i int) string {
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	return "/X/" + names[i] + ".js"
}

func TestScenario8DefaultWhenNone(t *testing.T) {
	fs := fsabs.NewFake()
	fs.Mkdir("/X")
	core := newTestCore(fs)

	config := core.GetConfigForFile("/X/hello.js")
	if !config.HasGlobal("Array") {
		t.Fatal("expected default config to recognize Array")
	}
	if !config.HasGlobal("console") {
		t.Fatal("expected default config to recognize console")
	}
	if config.HasGlobal("variableDoesNotExist") {
		t.Fatal("expected default config to not recognize variableDoesNotExist")
	}
}

func TestRefreshPublishesOnBus(t *testing.T) {
	fs := fsabs.NewFake()
	bus := event.NewMockBus[ChangeEvent]()
	core := NewCore(fs, CoreOptions{BackendName: "fake", Bus: bus})

	core.GetConfigForFile("/X/hello.js")
	fs.CreateFile("/X/quick-lint-js.config", []byte(`{}`))
	changes := core.Refresh()

	if len(changes) != 1 {
		t.Fatalf("expected Refresh to report 1 change, got %d", len(changes))
	}
	published := bus.Events()
	if len(published) != 1 {
		t.Fatalf("expected 1 event published on the bus, got %d", len(published))
	}
	if published[0].WatchedPath != "/X/hello.js" {
		t.Fatalf("expected published event's WatchedPath %q, got %q", "/X/hello.js", published[0].WatchedPath)
	}
	if published[0].ConfigFilePath != "<fake>/X/quick-lint-js.config" {
		t.Fatalf("expected published event's ConfigFilePath %q, got %q", "<fake>/X/quick-lint-js.config", published[0].ConfigFilePath)
	}
	if published[0] != changes[0] {
		t.Fatalf("expected the published event to equal the returned change")
	}
}

func TestPruneRemovesUnreferencedEntries(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/quick-lint-js.config", []byte(`{}`))
	core := newTestCore(fs)

	core.GetConfigForFile("/X/hello.js")
	fs.Rename("/X/quick-lint-js.config", "/X/quick-lint-js.config.bak")
	core.Refresh()

	removed := core.Prune()
	if removed != 1 {
		t.Fatalf("expected one stale entry pruned, got %d", removed)
	}
}

func TestEnterDirectoryCalledOnEveryAncestor(t *testing.T) {
	fs := fsabs.NewFake()
	fs.CreateFile("/X/quick-lint-js.config", []byte(`{}`))
	core := newTestCore(fs)

	core.GetConfigForFile("/X/a/b/hello.js")

	entered := fs.Entered()
	if len(entered) != 2 {
		t.Fatalf("expected 2 ancestor directories entered (<fake>/X and the root), got %d", len(entered))
	}
}
