// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"lectern.build/pkg/internal/testcontext"
)

// fakeLedger is an in-memory [HashLedger].
type fakeLedger struct {
	digests map[string][]byte
	sets    int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{digests: make(map[string][]byte)}
}

func (l *fakeLedger) Digest(ctx context.Context, key string) ([]byte, error) {
	return l.digests[key], nil
}

func (l *fakeLedger) SetDigest(ctx context.Context, key string, digest []byte) error {
	l.digests[key] = digest
	l.sets++
	return nil
}

func TestTextFileContentCutoff(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "driver.tex")
	ledger := newFakeLedger()
	text := "\\input{lecture1}\n"
	newNode := func() *TextFileNode {
		return NewTextFile("driver", path, "driver.tex", ledger, func() (string, error) {
			return text, nil
		})
	}

	// First run writes the file and counts as a modification.
	n := newNode()
	if err := Update(ctx, n); err != nil {
		t.Fatal(err)
	}
	if !n.Modified() {
		t.Error("first generation not modified")
	}
	if got, err := os.ReadFile(path); err != nil || string(got) != text {
		t.Errorf("ReadFile = %q, %v; want %q", got, err, text)
	}

	// Identical regenerated content is not a modification
	// and does not rewrite the ledger.
	before := ledger.sets
	n = newNode()
	if err := Update(ctx, n); err != nil {
		t.Fatal(err)
	}
	if n.Modified() {
		t.Error("identical regeneration reported as modified")
	}
	if ledger.sets != before {
		t.Error("identical regeneration rewrote the ledger")
	}

	// Changed content is a modification.
	text = "\\input{lecture2}\n"
	n = newNode()
	if err := Update(ctx, n); err != nil {
		t.Fatal(err)
	}
	if !n.Modified() {
		t.Error("changed content not reported as modified")
	}
	if got, _ := os.ReadFile(path); string(got) != text {
		t.Errorf("file content = %q; want %q", got, text)
	}
}

func TestTextFileRewritesDeletedFile(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "driver.tex")
	ledger := newFakeLedger()
	generate := func() (string, error) { return "same text", nil }

	n := NewTextFile("driver", path, "driver.tex", ledger, generate)
	if err := Update(ctx, n); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	// The hash still matches the ledger, but the file is gone:
	// it must be rewritten without counting as a modification.
	n = NewTextFile("driver", path, "driver.tex", ledger, generate)
	if err := Update(ctx, n); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("deleted file not rewritten: %v", err)
	}
	if n.Modified() {
		t.Error("rewrite of unchanged content reported as modified")
	}
}

func TestTextFileNilLedger(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	path := filepath.Join(t.TempDir(), "out.txt")
	for range 2 {
		n := NewTextFile("out", path, "out.txt", nil, func() (string, error) {
			return "text", nil
		})
		if err := Update(ctx, n); err != nil {
			t.Fatal(err)
		}
		if !n.Modified() {
			t.Error("ledgerless rewrite not reported as modified")
		}
	}
}
