// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package course

import (
	"context"

	"lectern.build/pkg/internal/buildgraph"
)

// Default toolchain binaries, overridable through [Options].
const (
	defaultLaTeX     = "pdflatex"
	defaultAsymptote = "asy"
)

// latexCommand compiles a document with a LaTeX engine.
// The engine rereads and rewrites its own .aux/.toc side files,
// so the owning node is a CyclicNode and this command may run
// several times per build.
type latexCommand struct {
	tool    string
	dir     string
	jobname string
	main    string
}

func (c *latexCommand) Run(ctx context.Context, exec *buildgraph.Executor) error {
	argv := []string{
		c.tool,
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-jobname=" + c.jobname,
		c.main,
	}
	_, err := exec.CombinedOutput(ctx, argv, c.dir)
	return err
}

// asyCommand renders an Asymptote source into a PDF figure
// next to the source inside the build directory.
type asyCommand struct {
	tool   string
	dir    string
	source string
}

func (c *asyCommand) Run(ctx context.Context, exec *buildgraph.Executor) error {
	_, err := exec.CombinedOutput(ctx, []string{c.tool, "-f", "pdf", c.source}, c.dir)
	return err
}
