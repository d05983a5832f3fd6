// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"lectern.build/pkg/internal/testcontext"
)

func TestUpdateIsIdempotent(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	dir := t.TempDir()

	outPath := filepath.Join(dir, "out.txt")
	cmd := writeFileCommand(outPath, "out")
	product := NewProduct("out.txt", outPath, nil, cmd)
	top := NewTarget("top", product)

	if err := Update(ctx, top); err != nil {
		t.Fatal(err)
	}
	wantModified := product.Modified()
	if err := Update(ctx, top); err != nil {
		t.Fatal(err)
	}
	if cmd.runs != 1 {
		t.Errorf("command ran %d times across two updates; want 1", cmd.runs)
	}
	if product.Modified() != wantModified {
		t.Error("modified flag changed on second update")
	}
}

func TestUpdateDAG(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	// A diamond: top -> {left, right} -> bottom.
	bottom := NewDated("bottom")
	left := NewTarget("left", bottom)
	right := NewTarget("right", bottom)
	top := NewTarget("top", left, right)

	if err := Update(ctx, top); err != nil {
		t.Fatal(err)
	}
	for _, n := range []Node{top, left, right, bottom} {
		if !n.Updated() {
			t.Errorf("%s not updated", n.Name())
		}
	}
}

func TestUpdateDetectsCycle(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	a := NewTarget("a")
	b := NewTarget("b", a)
	if err := a.AppendNeeds(b); err != nil {
		t.Fatal(err)
	}

	err := Update(ctx, a)
	if err == nil {
		t.Fatal("update of cyclic graph did not fail")
	}
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("update error = %v; want CycleError", err)
	}
	if !slices.Contains(cycle.Chain, "a") || !slices.Contains(cycle.Chain, "b") {
		t.Errorf("cycle chain %v does not contain both a and b", cycle.Chain)
	}
}

func TestUpdateFailureIsReportedOnce(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	dir := t.TempDir()

	boom := errors.New("boom")
	bad := NewProduct("bad", filepath.Join(dir, "bad.txt"), nil, CommandFunc(func(ctx context.Context, exec *Executor) error {
		return boom
	}))
	top := NewTarget("top", bad)

	err := Update(ctx, top)
	if err == nil {
		t.Fatal("update of failing command did not fail")
	}
	if !errors.Is(err, boom) {
		t.Errorf("update error = %v; want it to wrap the command error", err)
	}
	if !IsReported(err) {
		t.Error("propagated build failure not marked as reported")
	}
	if top.Updated() {
		t.Error("ancestor of failed node marked updated")
	}
}
