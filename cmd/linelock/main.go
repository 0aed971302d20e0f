// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command linelock runs Lua scripts with line breakpoints. The main
// goroutine is the coordinator; controller commands are read from stdin.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"code.hybscloud.com/linelock"
	"code.hybscloud.com/linelock/control"
	"code.hybscloud.com/linelock/script"
)

var version = "dev"

type options struct {
	configPath string
	scriptsDir string
	logLevel   string
	watch      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := linelock.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts.scriptsDir != "" {
		cfg.ScriptsDir = opts.scriptsDir
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	cfg.Watch = cfg.Watch || opts.watch
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}
	log := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := linelock.NewRegistry(log)
	coord := linelock.NewCoordinator(
		linelock.WithQueueSize(cfg.CoordinatorQueue),
		linelock.WithCoordinatorLogger(log))
	ctl := control.New(reg, log)
	rt := script.NewRuntime(reg, coord,
		script.WithLogger(log),
		script.WithMaxPoints(cfg.MaxPoints),
		script.WithOnLoad(ctl.Rearm),
		script.WithOnUnload(ctl.Forget))

	names, err := script.LoadDir(rt, cfg.ScriptsDir)
	if err != nil {
		log.Warn("some scripts failed to load", linelock.F("dir", cfg.ScriptsDir), linelock.F("error", err))
	}
	log.Info("scripts loaded", linelock.F("dir", cfg.ScriptsDir), linelock.F("programs", names))

	if cfg.Watch {
		w, err := script.NewWatcher(rt, cfg.ScriptsDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to watch %s: %v\n", cfg.ScriptsDir, err)
			return 1
		}
		defer w.Close()
		go w.Run(ctx)
	}

	shell := control.NewShell(ctl, rt, os.Stdout)
	go func() {
		if err := shell.Serve(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("command input failed", linelock.F("error", err))
		}
		coord.Stop()
	}()

	if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", "linelock.toml", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "linelock.toml", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.scriptsDir, "scripts", "", "Directory of .lua programs (overrides scripts_dir)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.watch, "watch", false, "Reload programs when their files change")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "linelock - Lua scripts with line breakpoints\n\n")
		fmt.Fprintf(os.Stderr, "Usage: linelock [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nType help at the prompt for controller commands.\n")
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("linelock %s\n", version)
		os.Exit(0)
	}
	return opts
}
