package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/quick-lint/configwatch/internal/bridge"
	"github.com/quick-lint/configwatch/internal/detector"
	"github.com/quick-lint/configwatch/internal/event"
	"github.com/quick-lint/configwatch/internal/fsabs"
	"github.com/quick-lint/configwatch/internal/loader"
	"github.com/quick-lint/configwatch/internal/logging"
	"github.com/quick-lint/configwatch/internal/qljsconfig"
	"github.com/quick-lint/configwatch/internal/version"
	"github.com/quick-lint/configwatch/internal/watchfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	cfg, err := parseArgs(args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitCodeSuccess
		}
		return exitCodeUsage
	}
	if cfg.ShowVersion {
		fmt.Fprintf(out, "configwatch-demo %s\n", version.String())
		return exitCodeSuccess
	}

	logger := logging.NewLoggerWithOutput(nil, logging.LevelWarning, errOut)

	if cfg.ConfigFile != "" {
		return runExplicit(cfg, out, errOut, logger)
	}
	return runWatched(cfg, out, errOut, logger)
}

// runExplicit resolves a single --config-file load. It never enters watch
// mode: an explicit config file bypasses the ancestor search that Refresh
// relies on to notice anything changed.
func runExplicit(cfg Config, out io.Writer, errOut io.Writer, logger *logging.Logger) int {
	fs := fsabs.NewBasic()
	core := detector.NewCore(fs, detector.CoreOptions{BackendName: "none", Logger: logger})
	ld := loader.New(fs, core)

	config, err := ld.Load(cfg.Path, cfg.ConfigFile)
	if err != nil {
		fmt.Fprintln(errOut, err.Error())
		return exitCodeRuntime
	}
	printConfig(out, config, cfg.Verbose)

	if cfg.Watch {
		fmt.Fprintln(errOut, "configwatch-demo: --watch has no effect with --config-file; exiting after one-shot load")
	}
	return exitCodeSuccess
}

// runWatched resolves cfg.Path via the ordinary ancestor search and,
// if requested, keeps refreshing it against a live watching backend until
// interrupted.
func runWatched(cfg Config, out io.Writer, errOut io.Writer, logger *logging.Logger) int {
	var fs fsabs.FS = fsabs.NewBasic()
	var backend watchfs.Backend
	var wait watchfs.WaitHandle

	if cfg.Watch {
		b, w, err := watchfs.New(watchfs.Options{})
		if err != nil {
			fmt.Fprintf(errOut, "configwatch-demo: starting watcher: %v\n", err)
			return exitCodeRuntime
		}
		backend, wait = b, w
		fs = backend
		defer backend.Close()
	}

	bus := event.NewBus[detector.ChangeEvent](context.Background(), event.BusOptions{
		Name:                 "configwatch-demo",
		SubscriberBufferSize: 16,
	})
	core := detector.NewCore(fs, detector.CoreOptions{
		BackendName: watchfs.Name(),
		Bus:         bus,
		Logger:      logger,
	})

	config := core.GetConfigForFile(cfg.Path)
	printConfig(out, config, cfg.Verbose)

	if !cfg.Watch {
		return exitCodeSuccess
	}

	var server *http.Server
	if cfg.BridgeAddr != "" {
		server = &http.Server{
			Addr: cfg.BridgeAddr,
			Handler: &bridge.Handler{
				Bus:       bus,
				AuthToken: cfg.BridgeToken,
				Logger:    logger,
			},
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(errOut, "configwatch-demo: bridge server: %v\n", err)
			}
		}()
		defer server.Close()
		fmt.Fprintf(errOut, "configwatch-demo: serving change events on ws://%s\n", cfg.BridgeAddr)
	}

	for {
		wait.Wait(cfg.PollInterval)
		if !backend.ProcessChanges() {
			continue
		}
		for _, change := range core.Refresh() {
			printChange(out, change)
		}
	}
}

func printConfig(out io.Writer, config *qljsconfig.Configuration, verbose bool) {
	path := config.ConfigFilePath()
	if path == "" {
		fmt.Fprintln(out, "(default configuration)")
		return
	}
	fmt.Fprintln(out, path)
	if verbose && config.LoadError() != nil {
		fmt.Fprintf(out, "  load error: %v\n", config.LoadError())
	}
}

func printChange(out io.Writer, change detector.ChangeEvent) {
	target := change.ConfigFilePath
	if target == "" {
		target = "(default configuration)"
	}
	fmt.Fprintf(out, "%s: %s -> %s\n", change.OccurredAt.Format(time.RFC3339), change.WatchedPath, target)
}
