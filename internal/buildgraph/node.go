// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TargetNode is a plain grouping node with no work of its own.
// It is modified whenever any of its prerequisites is modified.
type TargetNode struct {
	nodeCore
}

// NewTarget returns a grouping node with the given prerequisites.
func NewTarget(name string, needs ...Node) *TargetNode {
	return &TargetNode{nodeCore: newCore(name, needs...)}
}

// mtimer is implemented by nodes that expose a comparable
// logical modification time.
// The zero time means the node has never been built.
type mtimer interface {
	ModTime() time.Time
}

// datedNeedsBuild is the staleness rule shared by mtime-carrying nodes:
// rebuild if the node was never built, if any prerequisite is modified,
// or if any prerequisite exposing an mtime has a strictly newer one.
func datedNeedsBuild(n Node, self time.Time) bool {
	if self.IsZero() {
		return true
	}
	for _, need := range n.Needs() {
		if need.Modified() {
			return true
		}
		if m, ok := need.(mtimer); ok {
			if t := m.ModTime(); !t.IsZero() && t.After(self) {
				return true
			}
		}
	}
	return false
}

// DatedNode carries a stored logical modification time
// not backed by any filesystem path.
type DatedNode struct {
	nodeCore
	mtime time.Time
}

// NewDated returns a dated node with no recorded modification time.
func NewDated(name string, needs ...Node) *DatedNode {
	return &DatedNode{nodeCore: newCore(name, needs...)}
}

// ModTime returns the node's logical modification time.
// The zero time means the node has never been built.
func (n *DatedNode) ModTime() time.Time { return n.mtime }

// SetModTime records the node's logical modification time.
func (n *DatedNode) SetModTime(t time.Time) { n.mtime = t }

func (n *DatedNode) needsBuild() (bool, error) {
	return datedNeedsBuild(n, n.mtime), nil
}

func (n *DatedNode) runUpdate(ctx context.Context, exec *Executor) error {
	stale, err := n.needsBuild()
	if err != nil {
		return err
	}
	if stale {
		n.mtime = time.Now()
		n.modified = true
	}
	return nil
}

// directoryModTime is the degenerate modification time reported for
// directories. Real directory mtimes change on every child creation
// and would make everything depending on "the directory exists"
// spuriously stale.
var directoryModTime = time.Unix(0, 1)

// PathNode derives its modification time from a filesystem path.
// By default the path is examined without following symlinks;
// a following variant exists for nodes whose identity is
// "whatever this path currently resolves to".
type PathNode struct {
	nodeCore
	path    string
	follow  bool
	statted bool
	mtime   time.Time
}

// NewPath returns a path-backed node.
// The path must be absolute.
func NewPath(name, path string, needs ...Node) *PathNode {
	return &PathNode{nodeCore: newCore(name, needs...), path: path}
}

// NewFollowingPath returns a path-backed node whose modification time
// follows symlinks when examining the path.
func NewFollowingPath(name, path string, needs ...Node) *PathNode {
	return &PathNode{nodeCore: newCore(name, needs...), path: path, follow: true}
}

// Path returns the node's filesystem path.
func (n *PathNode) Path() string { return n.path }

// ModTime returns the most recently loaded modification time for the path.
// The zero time means the path does not exist (or was never examined).
func (n *PathNode) ModTime() time.Time { return n.mtime }

// reloadModTime re-derives the node's mtime from the filesystem.
// A missing path yields the zero time; a directory yields a constant.
func (n *PathNode) reloadModTime() error {
	if !filepath.IsAbs(n.path) {
		return fmt.Errorf("stat %s: path is not absolute", n.path)
	}
	var info os.FileInfo
	var err error
	if n.follow {
		info, err = os.Stat(n.path)
	} else {
		info, err = os.Lstat(n.path)
	}
	n.statted = true
	switch {
	case errors.Is(err, os.ErrNotExist):
		n.mtime = time.Time{}
	case err != nil:
		return fmt.Errorf("stat %s: %v", n.path, err)
	case info.IsDir():
		n.mtime = directoryModTime
	default:
		n.mtime = info.ModTime()
	}
	return nil
}

func (n *PathNode) ensureStat() error {
	if n.statted {
		return nil
	}
	return n.reloadModTime()
}

func (n *PathNode) needsBuild() (bool, error) {
	if err := n.ensureStat(); err != nil {
		return false, err
	}
	return datedNeedsBuild(n, n.mtime), nil
}

func (n *PathNode) runUpdate(ctx context.Context, exec *Executor) error {
	// A bare path node only observes the filesystem.
	return n.ensureStat()
}

// SourceFileNode is a path node for an input file that must already exist.
// Updating it fails if the file is missing.
type SourceFileNode struct {
	PathNode
}

// NewSourceFile returns a node for the source file at the given absolute path.
func NewSourceFile(name, path string) *SourceFileNode {
	return &SourceFileNode{PathNode: PathNode{nodeCore: newCore(name), path: path}}
}

func (n *SourceFileNode) needsBuild() (bool, error) {
	// Source files are never built; dependents compare against their mtime.
	return false, nil
}

func (n *SourceFileNode) runUpdate(ctx context.Context, exec *Executor) error {
	if err := n.reloadModTime(); err != nil {
		return err
	}
	if n.mtime.IsZero() {
		return fmt.Errorf("source file %s does not exist", n.path)
	}
	return nil
}

// ProductNode is a path node with a bound [Command] that produces the path,
// and a distinguished source prerequisite describing what the product
// is built from.
type ProductNode struct {
	PathNode
	source Node
	cmd    Command
}

// NewProduct returns a node whose command produces the file at path.
// source, if non-nil, is appended to the node's needs.
func NewProduct(name, path string, source Node, cmd Command) *ProductNode {
	n := &ProductNode{
		PathNode: PathNode{nodeCore: newCore(name), path: path},
		source:   source,
		cmd:      cmd,
	}
	if source != nil {
		n.needs = append(n.needs, source)
	}
	return n
}

// Source returns the node's distinguished source prerequisite, if any.
func (n *ProductNode) Source() Node { return n.source }

func (n *ProductNode) runUpdate(ctx context.Context, exec *Executor) error {
	stale, err := n.needsBuild()
	if err != nil {
		return err
	}
	if !stale {
		return nil
	}
	return n.buildOnce(ctx, exec)
}

// buildOnce runs the bound command and settles the node's mtime and
// modified flag from the resulting filesystem state.
func (n *ProductNode) buildOnce(ctx context.Context, exec *Executor) error {
	old := n.mtime
	if n.cmd == nil {
		return fmt.Errorf("%s is stale but has no command", n.name)
	}
	if err := n.cmd.Run(ctx, exec); err != nil {
		return err
	}
	if err := n.reloadModTime(); err != nil {
		return err
	}
	if n.mtime.IsZero() {
		return &MissingOutputError{Node: n.name, Path: n.path}
	}
	if old.IsZero() || n.mtime.After(old) {
		n.modified = true
	}
	return nil
}
