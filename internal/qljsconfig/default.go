package qljsconfig

import "errors"

var errInvalidJSON = errors.New("invalid configuration: not valid JSON")

// defaultGlobals is the built-in global set every configuration falls back
// to, matching quick-lint-js's documented JavaScript + browser + Node.js
// default environment closely enough to satisfy spec.md §8 scenario 8
// ("globals.find("Array") && globals.find("console") &&
// !globals.find("variableDoesNotExist")").
var defaultGlobals = []string{
	"Array", "Boolean", "console", "Date", "Error", "JSON", "Map", "Math",
	"Number", "Object", "Promise", "RegExp", "Set", "String", "Symbol",
	"globalThis", "process", "require", "module", "exports", "window",
	"document", "fetch", "setTimeout", "setInterval", "clearTimeout",
	"clearInterval",
}

// defaultConfiguration is the process-wide, immutable Default Config
// (spec.md §3 "Default Config" / §9 "Global default configuration").
var defaultConfiguration = buildDefaultConfiguration()

func buildDefaultConfiguration() *Configuration {
	config := New()
	for _, name := range defaultGlobals {
		config.globals[name] = Global{Writable: false, Shadowable: true}
	}
	return config
}

// Default returns the singleton Default Config. Callers must never mutate
// the returned object.
func Default() *Configuration {
	return defaultConfiguration
}
