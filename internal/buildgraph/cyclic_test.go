// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"lectern.build/pkg/internal/testcontext"
)

// auxCommand simulates a step like LaTeX that writes its main output
// and rewrites a side file whose content depends on the pass number.
// sideContent is indexed by zero-based run count;
// runs past the end repeat the final value.
type auxCommand struct {
	out  string
	aux  string
	runs int

	sideContent []string
}

func (c *auxCommand) Run(ctx context.Context, exec *Executor) error {
	i := c.runs
	if i >= len(c.sideContent) {
		i = len(c.sideContent) - 1
	}
	c.runs++
	if err := os.WriteFile(c.out, []byte(fmt.Sprintf("output after run %d", c.runs)), 0o644); err != nil {
		return err
	}
	return os.WriteFile(c.aux, []byte(c.sideContent[i]), 0o644)
}

func TestCyclicConverges(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	dir := t.TempDir()
	cmd := &auxCommand{
		out:         filepath.Join(dir, "doc.pdf"),
		aux:         filepath.Join(dir, "doc.aux"),
		sideContent: []string{"v1", "v2", "v2"},
	}
	node := NewCyclic("doc", cmd.out, nil, cmd, 0)
	aux := NewAutowrittenNeed(dir, "doc.aux")
	if err := node.AddAutowrittenNeed(aux); err != nil {
		t.Fatal(err)
	}

	if err := Update(ctx, node); err != nil {
		t.Fatal(err)
	}
	// Run 1 observes v1 (new), run 2 observes v2 (changed),
	// run 3 observes v2 again and stops.
	if cmd.runs != 3 {
		t.Errorf("command ran %d times; want 3", cmd.runs)
	}
	if !node.Updated() {
		t.Error("node not updated")
	}
	if !node.Modified() {
		t.Error("node not modified after building")
	}

	// The side file must now be a symlink to its hash-named backing file.
	info, err := os.Lstat(aux.LogicalPath())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Errorf("%s is not a symlink after the build", aux.LogicalPath())
	}
	got, err := os.ReadFile(aux.LogicalPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("side file content = %q; want %q", got, "v2")
	}
}

func TestCyclicHitsIterationCap(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	dir := t.TempDir()
	cmd := &auxCommand{
		out: filepath.Join(dir, "doc.pdf"),
		aux: filepath.Join(dir, "doc.aux"),
		// Every pass writes fresh content, so this can never converge.
		sideContent: []string{"1", "2", "3", "4", "5", "6", "7", "8"},
	}
	const maxIterations = 3
	node := NewCyclic("doc", cmd.out, nil, cmd, maxIterations)
	if err := node.AddAutowrittenNeed(NewAutowrittenNeed(dir, "doc.aux")); err != nil {
		t.Fatal(err)
	}

	if err := Update(ctx, node); err != nil {
		t.Fatal(err)
	}
	if cmd.runs != maxIterations {
		t.Errorf("command ran %d times; want %d (the iteration cap)", cmd.runs, maxIterations)
	}
	if !node.Updated() {
		t.Error("node not updated despite accepting output at the cap")
	}
}

func TestCyclicStableAcrossProcesses(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	dir := t.TempDir()
	srcPath := mustWriteFile(t, dir, "doc.tex", "hello")
	build := func() int {
		source := NewSourceFile("source", srcPath)
		cmd := &auxCommand{
			out:         filepath.Join(dir, "doc.pdf"),
			aux:         filepath.Join(dir, "doc.aux"),
			sideContent: []string{"stable"},
		}
		node := NewCyclic("doc", cmd.out, source, cmd, 0)
		if err := node.AddAutowrittenNeed(NewAutowrittenNeed(dir, "doc.aux")); err != nil {
			t.Fatal(err)
		}
		if err := Update(ctx, node); err != nil {
			t.Fatal(err)
		}
		return cmd.runs
	}

	// First process: the step runs, writes the side file,
	// and converges immediately on the second pass's identical content.
	if runs := build(); runs != 2 {
		t.Errorf("first build ran %d times; want 2", runs)
	}

	// Simulate a later process with unchanged inputs:
	// the output is newer than the source and the side file is managed,
	// so nothing runs at all.
	if runs := build(); runs != 0 {
		t.Errorf("second build ran %d times; want 0", runs)
	}
}

func TestCyclicHandEditedSideFileIsStale(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	dir := t.TempDir()
	// A bare regular file under the logical name is not in the managed
	// hash-named layout, so the node must rebuild even though its output
	// is newer than everything else.
	mustWriteFile(t, dir, "doc.aux", "hand edited")
	mustWriteFile(t, dir, "doc.pdf", "existing output")

	cmd := &auxCommand{
		out:         filepath.Join(dir, "doc.pdf"),
		aux:         filepath.Join(dir, "doc.aux"),
		sideContent: []string{"regenerated"},
	}
	node := NewCyclic("doc", cmd.out, nil, cmd, 0)
	if err := node.AddAutowrittenNeed(NewAutowrittenNeed(dir, "doc.aux")); err != nil {
		t.Fatal(err)
	}
	if err := Update(ctx, node); err != nil {
		t.Fatal(err)
	}
	if cmd.runs == 0 {
		t.Error("node with hand-edited side file did not rebuild")
	}
}

func TestAddAutowrittenNeedAfterUpdate(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	dir := t.TempDir()
	cmd := &auxCommand{
		out:         filepath.Join(dir, "doc.pdf"),
		aux:         filepath.Join(dir, "doc.aux"),
		sideContent: []string{"x"},
	}
	node := NewCyclic("doc", cmd.out, nil, cmd, 0)
	if err := Update(ctx, node); err != nil {
		t.Fatal(err)
	}
	if err := node.AddAutowrittenNeed(NewAutowrittenNeed(dir, "doc.aux")); err == nil {
		t.Error("AddAutowrittenNeed after update did not fail")
	}
}
