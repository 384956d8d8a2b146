package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/quick-lint/configwatch/internal/cli"
)

const defaultPollInterval = 500 * time.Millisecond

// Config is the parsed command line for configwatch-demo.
type Config struct {
	Path         string
	ConfigFile   string
	Watch        bool
	BridgeAddr   string
	BridgeToken  string
	PollInterval time.Duration
	Verbose      bool
	ShowVersion  bool
}

func parseArgs(args []string, errOut io.Writer) (Config, error) {
	fs := flag.NewFlagSet("configwatch-demo", flag.ContinueOnError)
	fs.SetOutput(errOut)

	configFileFlag := fs.String("config-file", "", "Explicit config file to load, bypassing the ancestor search")
	watchFlag := fs.Bool("watch", false, "Keep running and print a line for every detected configuration change")
	bridgeAddrFlag := fs.String("bridge-addr", "", "Serve a websocket change-event stream on this address (implies --watch)")
	bridgeTokenFlag := fs.String("bridge-token", "", "Bearer/query token required of websocket clients (flag only; not read from the environment)")
	pollIntervalFlag := fs.Duration("poll-interval", defaultPollInterval, "How long to block waiting for filesystem events between refreshes")
	verboseFlag := fs.Bool("verbose", false, "Also print the resolved configuration's load error, if any; its contents are not printed")
	helpVersion := cli.AddHelpVersionFlags(fs, "Show this help message", "Print version and exit")
	fs.Usage = func() {
		printDemoHelp(fs.Output())
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if helpVersion.Help {
		fs.Usage()
		return Config{}, flag.ErrHelp
	}
	if helpVersion.Version {
		return Config{ShowVersion: true}, nil
	}

	if fs.NArg() > 1 {
		fs.Usage()
		return Config{}, fmt.Errorf("at most one file path argument is accepted")
	}

	path := ""
	if fs.NArg() == 1 {
		path = fs.Arg(0)
	}
	if path == "" && *configFileFlag == "" {
		fs.Usage()
		return Config{}, fmt.Errorf("a file path or --config-file is required")
	}

	bridgeAddr := strings.TrimSpace(*bridgeAddrFlag)
	watch := *watchFlag || bridgeAddr != ""

	return Config{
		Path:         path,
		ConfigFile:   strings.TrimSpace(*configFileFlag),
		Watch:        watch,
		BridgeAddr:   bridgeAddr,
		BridgeToken:  strings.TrimSpace(*bridgeTokenFlag),
		PollInterval: *pollIntervalFlag,
		Verbose:      *verboseFlag,
	}, nil
}

func printDemoHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: configwatch-demo [options] [path]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Resolve the quick-lint-js.config file that applies to path, and optionally")
	fmt.Fprintln(out, "watch the filesystem for changes that would alter the result.")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	writeDemoOption(out, "--config-file PATH", "Explicit config file to load, bypassing the ancestor search")
	writeDemoOption(out, "--watch", "Keep running and print a line for every detected configuration change")
	writeDemoOption(out, "--bridge-addr ADDR", "Serve a websocket change-event stream on this address (implies --watch)")
	writeDemoOption(out, "--bridge-token TOKEN", "Bearer/query token required of websocket clients")
	writeDemoOption(out, "--poll-interval DURATION", "How long to block between refreshes (default: 500ms)")
	writeDemoOption(out, "--verbose", "Also print the resolved configuration's load error, if any; its contents are not printed")
	writeDemoOption(out, "--help", "Show this help message")
	writeDemoOption(out, "--version", "Print version and exit")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Examples:")
	fmt.Fprintln(out, "  configwatch-demo src/hello.js")
	fmt.Fprintln(out, "  configwatch-demo --watch src/hello.js")
	fmt.Fprintln(out, "  configwatch-demo --watch --bridge-addr localhost:8080 src/hello.js")
}

func writeDemoOption(out io.Writer, name, desc string) {
	fmt.Fprintf(out, "  %-24s %s\n", name, desc)
}
