// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern.build/pkg/internal/testcontext"
)

func TestBuildDirectoryCreates(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	dir := filepath.Join(t.TempDir(), "build")
	n := NewBuildDirectory("build", dir)
	if err := Update(ctx, n.PreClean()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", dir)
	}
	if !n.Modified() {
		t.Error("freshly created directory not modified")
	}
}

func TestBuildDirectoryPreCleanRemovesRogueFiles(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	dir := t.TempDir()
	mustWriteFile(t, dir, "kept.txt", "x")
	mustWriteFile(t, dir, "kept.abcd1234", "x")
	rogue := mustWriteFile(t, dir, "rogue.txt", "x")

	n := NewBuildDirectory("build", dir)
	if err := n.Approve("kept.txt"); err != nil {
		t.Fatal(err)
	}
	if err := n.ApprovePattern("kept.*"); err != nil {
		t.Fatal(err)
	}
	if err := Update(ctx, n.PreClean()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(rogue); !os.IsNotExist(err) {
		t.Errorf("rogue file still present (stat err = %v)", err)
	}
	for _, name := range []string{"kept.txt", "kept.abcd1234"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("approved file removed: %v", err)
		}
	}
}

func TestBuildDirectoryPreCleanRejectsSubdirectory(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "stray"), 0o755); err != nil {
		t.Fatal(err)
	}

	n := NewBuildDirectory("build", dir)
	err := Update(ctx, n.PreClean())
	if err == nil {
		t.Fatal("update did not fail on unexpected subdirectory")
	}
	if !strings.Contains(err.Error(), "stray") {
		t.Errorf("error %v does not name the subdirectory", err)
	}
}

func TestBuildDirectoryRegister(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	dir := t.TempDir()
	rogue := mustWriteFile(t, dir, "rogue.txt", "x")

	n := NewBuildDirectory("build", dir)
	outPath := filepath.Join(dir, "out.txt")
	cmd := &countingCommand{fn: func(ctx context.Context, exec *Executor) error {
		// The rogue file must be gone before any registered child builds.
		if _, err := os.Stat(rogue); !os.IsNotExist(err) {
			t.Errorf("rogue file present during child build (stat err = %v)", err)
		}
		return os.WriteFile(outPath, []byte("x"), 0o644)
	}}
	product := NewProduct("out", outPath, nil, cmd)
	if err := n.Register(product, "out.txt"); err != nil {
		t.Fatal(err)
	}

	if err := Update(ctx, n.PostCheck()); err != nil {
		t.Fatal(err)
	}
	if cmd.runs != 1 {
		t.Errorf("child command ran %d times; want 1", cmd.runs)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Error(err)
	}
}

func TestBuildDirectoryApproveAfterUpdate(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	n := NewBuildDirectory("build", filepath.Join(t.TempDir(), "build"))
	if err := Update(ctx, n.PreClean()); err != nil {
		t.Fatal(err)
	}
	if err := n.Approve("late.txt"); err == nil {
		t.Error("Approve after update did not fail")
	}
	if err := n.ApprovePattern("late.*"); err == nil {
		t.Error("ApprovePattern after update did not fail")
	}
}

func TestBuildDirectoryApprovePatternValidates(t *testing.T) {
	n := NewBuildDirectory("build", filepath.Join(t.TempDir(), "build"))
	if err := n.ApprovePattern("[unclosed"); err == nil {
		t.Error("ApprovePattern accepted a malformed pattern")
	}
}
