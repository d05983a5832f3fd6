// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

// lectern is an incremental build tool for course document collections:
// LaTeX sources with Asymptote figures, compiled to PDF artifacts.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"
	"zombiezen.com/go/bass/sigterm"
	"zombiezen.com/go/log"
)

func main() {
	rootCommand := &cobra.Command{
		Use:           "lectern",
		Short:         "incremental course document builder",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	g := defaultGlobalConfig()
	configPath := rootCommand.PersistentFlags().String("config", "", "`path` to an extra configuration file")
	manifest := rootCommand.PersistentFlags().String("manifest", g.Manifest, "`path` to the course manifest")
	buildDir := rootCommand.PersistentFlags().String("build-dir", g.BuildDir, "`path` to the build directory")
	outDir := rootCommand.PersistentFlags().String("out-dir", g.OutDir, "`path` to the artifact directory")
	cacheDB := rootCommand.PersistentFlags().String("cache", g.CacheDB, "`path` to the digest ledger database")
	jobs := nonNegativeInt(g.Jobs)
	rootCommand.PersistentFlags().Var(&jobs, "jobs", "maximum `number` of concurrent build steps (0 = number of CPUs)")
	maxIterations := nonNegativeInt(g.MaxIterations)
	rootCommand.PersistentFlags().Var(&maxIterations, "max-iterations", "cap on LaTeX reruns per document (0 = default)")
	showDebug := rootCommand.PersistentFlags().Bool("debug", false, "show debugging output")

	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := g.mergeFiles(configPaths(*configPath)); err != nil {
			return err
		}
		if err := g.mergeEnvironment(); err != nil {
			return err
		}
		// Flags given on the command line win over files and environment.
		flags := cmd.Flags()
		if flags.Changed("manifest") {
			g.Manifest = *manifest
		}
		if flags.Changed("build-dir") {
			g.BuildDir = *buildDir
		}
		if flags.Changed("out-dir") {
			g.OutDir = *outDir
		}
		if flags.Changed("cache") {
			g.CacheDB = *cacheDB
		}
		if flags.Changed("jobs") {
			g.Jobs = int(jobs)
		}
		if flags.Changed("max-iterations") {
			g.MaxIterations = int(maxIterations)
		}
		if flags.Changed("debug") {
			g.Debug = *showDebug
		}
		initLogging(g.Debug)
		return g.validate()
	}

	rootCommand.AddCommand(
		newBuildCommand(g),
		newCleanCommand(g),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), sigterm.Signals()...)
	err := rootCommand.ExecuteContext(ctx)
	cancel()
	if err != nil {
		initLogging(*showDebug)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
}

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "lectern: ", log.StdFlags, nil),
		})
	})
}
