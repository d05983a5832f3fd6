// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"bytes"
	"context"
	"errors"
	"os"

	"github.com/zeebo/blake3"
	"lectern.build/pkg/internal/osutil"
)

// A HashLedger persists content digests across process runs,
// keyed by a stable node key.
// It lets content-addressed nodes avoid reporting themselves modified
// when regenerated content is byte-identical to what is already on disk.
type HashLedger interface {
	// Digest returns the recorded digest for key, or nil if none exists.
	Digest(ctx context.Context, key string) ([]byte, error)
	// SetDigest records the digest for key.
	SetDigest(ctx context.Context, key string, digest []byte) error
}

// TextFileNode regenerates a text file from a generator function on
// every pass. Whether the node counts as modified is decided by a
// content hash checked against a [HashLedger], not by mtime:
// rewriting the file with byte-identical text is not a modification.
type TextFileNode struct {
	PathNode
	key      string
	ledger   HashLedger
	generate func() (string, error)
}

// NewTextFile returns a content-addressed text node.
// key identifies the node in the ledger and must be stable across runs.
// ledger may be nil, in which case every rewrite counts as a modification.
func NewTextFile(name, path, key string, ledger HashLedger, generate func() (string, error)) *TextFileNode {
	return &TextFileNode{
		PathNode: PathNode{nodeCore: newCore(name), path: path},
		key:      key,
		ledger:   ledger,
		generate: generate,
	}
}

func (n *TextFileNode) needsBuild() (bool, error) {
	// Regeneration is cheap; the hash comparison is the real cutoff.
	return true, nil
}

func (n *TextFileNode) runUpdate(ctx context.Context, exec *Executor) error {
	text, err := n.generate()
	if err != nil {
		return err
	}
	sum := blake3.Sum256([]byte(text))

	var old []byte
	if n.ledger != nil {
		old, err = n.ledger.Digest(ctx, n.key)
		if err != nil {
			return err
		}
	}
	if err := n.reloadModTime(); err != nil {
		return err
	}
	same := old != nil && bytes.Equal(old, sum[:])
	if same && !n.mtime.IsZero() {
		return nil
	}

	if err := osutil.WriteFilePerm(n.path, []byte(text), 0o644); err != nil {
		return err
	}
	if err := n.reloadModTime(); err != nil {
		return err
	}
	if !same {
		if n.ledger != nil {
			if err := n.ledger.SetDigest(ctx, n.key, sum[:]); err != nil {
				return err
			}
		}
		n.modified = true
	}
	return nil
}

// SymlinkNode produces a symbolic link with a fixed intended target.
// Its staleness test ignores mtimes entirely:
// the link is stale iff it does not already point exactly where it should.
type SymlinkNode struct {
	nodeCore
	path   string
	target string
}

// NewSymlink returns a node ensuring that a symlink at path points at
// target. source, if non-nil, is appended to the node's needs.
func NewSymlink(name, path, target string, source Node) *SymlinkNode {
	n := &SymlinkNode{nodeCore: newCore(name), path: path, target: target}
	if source != nil {
		n.needs = append(n.needs, source)
	}
	return n
}

// Path returns the location of the link itself.
func (n *SymlinkNode) Path() string { return n.path }

// Target returns the intended link target.
func (n *SymlinkNode) Target() string { return n.target }

func (n *SymlinkNode) needsBuild() (bool, error) {
	current, err := os.Readlink(n.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		// The path exists but is not a symlink; replace it.
		return true, nil
	}
	return current != n.target, nil
}

func (n *SymlinkNode) runUpdate(ctx context.Context, exec *Executor) error {
	stale, err := n.needsBuild()
	if err != nil {
		return err
	}
	if !stale {
		return nil
	}
	if err := osutil.ReplaceSymlink(n.target, n.path); err != nil {
		return err
	}
	n.modified = true
	return nil
}
