// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"zombiezen.com/go/log"
	"lectern.build/pkg/internal/buildgraph"
	"lectern.build/pkg/internal/course"
	"lectern.build/pkg/internal/ledger"
)

func newBuildCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "build [options] [DOCUMENT [...]]",
		Short:                 "build course documents",
		DisableFlagsInUseLine: true,
		Args:                  cobra.ArbitraryArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runBuild(cmd.Context(), g, args)
	}
	return c
}

func runBuild(ctx context.Context, g *globalConfig, documents []string) error {
	m, err := course.ParseManifestFile(g.Manifest)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(g.CacheDB), 0o755); err != nil {
		return err
	}
	l := ledger.Open(g.CacheDB)
	defer func() {
		if err := l.Close(); err != nil {
			log.Errorf(ctx, "%v", err)
		}
	}()
	l.SetBuild(uuid.New())

	plan, err := course.NewPlan(m, documents, course.Options{
		BuildDir:      g.BuildDir,
		OutDir:        g.OutDir,
		Ledger:        l,
		MaxIterations: g.MaxIterations,
		LaTeX:         g.LaTeX,
		Asymptote:     g.Asymptote,
	})
	if err != nil {
		return err
	}

	u := &buildgraph.Updater{Jobs: g.Jobs}
	if err := u.Update(ctx, plan.Roots...); err != nil {
		return err
	}
	for _, artifact := range plan.Artifacts {
		fmt.Println(artifact)
	}
	return nil
}
