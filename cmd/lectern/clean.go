// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"zombiezen.com/go/log"
	"lectern.build/pkg/internal/ledger"
)

func newCleanCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "clean [DOCUMENT [...]]",
		Short:                 "remove build outputs and forget their digests",
		DisableFlagsInUseLine: true,
		Args:                  cobra.ArbitraryArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runClean(cmd.Context(), g, args)
	}
	return c
}

func runClean(ctx context.Context, g *globalConfig, documents []string) error {
	l := ledger.Open(g.CacheDB)
	defer func() {
		if err := l.Close(); err != nil {
			log.Errorf(ctx, "%v", err)
		}
	}()

	if len(documents) == 0 {
		log.Infof(ctx, "Removing %s", g.BuildDir)
		if err := os.RemoveAll(g.BuildDir); err != nil {
			return err
		}
		return l.Forget(ctx, "")
	}

	for _, name := range documents {
		if strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("clean %s: document names must not contain path separators", name)
		}
		dir := filepath.Join(g.BuildDir, name)
		log.Infof(ctx, "Removing %s", dir)
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		if err := l.Forget(ctx, name+"/"); err != nil {
			return err
		}
	}
	return nil
}
