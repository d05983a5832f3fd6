// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"zombiezen.com/go/log"
	"lectern.build/pkg/internal/sets"
)

// BuildDirectoryNode tracks the set of filenames a managed build
// directory is expected to contain.
// Every node that produces a file or subdirectory directly inside the
// directory must register itself via [BuildDirectoryNode.Register]
// during graph construction.
//
// Two companion nodes are wired into the graph:
// a pre-cleanup node that removes stray artifacts from previous runs
// before anything else in the directory runs,
// and a post-check node that warns about unexpected files afterwards.
// Both are ordinary nodes and participate in the same scheduling and
// staleness machinery as everything else.
type BuildDirectoryNode struct {
	PathNode
	approved sets.Set[string]
	patterns []string
	pre      *directoryCleanNode
	post     *directoryCheckNode
}

// NewBuildDirectory returns a managed directory node for the given
// absolute path, along with its pre-cleanup and post-check companions.
func NewBuildDirectory(name, dir string) *BuildDirectoryNode {
	n := &BuildDirectoryNode{
		PathNode: PathNode{nodeCore: newCore(name), path: dir},
		approved: make(sets.Set[string]),
	}
	n.pre = &directoryCleanNode{nodeCore: newCore(name + ":preclean"), dir: n}
	n.pre.needs = []Node{n}
	n.post = &directoryCheckNode{nodeCore: newCore(name + ":postcheck"), dir: n}
	return n
}

// PreClean returns the pre-cleanup companion node.
// It is a prerequisite of every node registered under the directory.
func (n *BuildDirectoryNode) PreClean() Node { return n.pre }

// PostCheck returns the post-check companion node.
// It depends on every node registered under the directory.
func (n *BuildDirectoryNode) PostCheck() Node { return n.post }

// Approve declares directory entries that are expected to exist.
// The approved set is populated during graph construction
// and is frozen once the directory begins updating.
func (n *BuildDirectoryNode) Approve(names ...string) error {
	if n.updated || n.pre.updated {
		return fmt.Errorf("approve names in %s: directory already updating", n.name)
	}
	n.approved.Add(names...)
	return nil
}

// ApprovePattern declares a [path.Match] pattern of expected entries,
// for nodes whose on-disk names embed a content hash.
func (n *BuildDirectoryNode) ApprovePattern(pattern string) error {
	if n.updated || n.pre.updated {
		return fmt.Errorf("approve pattern in %s: directory already updating", n.name)
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("approve pattern in %s: %v", n.name, err)
	}
	n.patterns = append(n.patterns, pattern)
	return nil
}

// Register wires child into the directory's integrity machinery:
// the given produced entry names are approved,
// the pre-cleanup node becomes a prerequisite of child,
// and the post-check node gains child as a prerequisite.
func (n *BuildDirectoryNode) Register(child Node, producedNames ...string) error {
	if err := n.Approve(producedNames...); err != nil {
		return err
	}
	if err := child.AppendNeeds(n.pre); err != nil {
		return err
	}
	return n.post.AppendNeeds(child)
}

func (n *BuildDirectoryNode) approves(name string) bool {
	if n.approved.Has(name) {
		return true
	}
	for _, pattern := range n.patterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (n *BuildDirectoryNode) needsBuild() (bool, error) {
	if err := n.ensureStat(); err != nil {
		return false, err
	}
	return n.mtime.IsZero(), nil
}

func (n *BuildDirectoryNode) runUpdate(ctx context.Context, exec *Executor) error {
	stale, err := n.needsBuild()
	if err != nil {
		return err
	}
	if !stale {
		return nil
	}
	if err := os.MkdirAll(n.path, 0o755); err != nil {
		return err
	}
	if err := n.reloadModTime(); err != nil {
		return err
	}
	n.modified = true
	return nil
}

// directoryCleanNode deletes stray artifacts left by a previous run
// whose graph shape has since changed.
// It runs before any node registered under the directory.
type directoryCleanNode struct {
	nodeCore
	dir *BuildDirectoryNode
}

func (n *directoryCleanNode) runUpdate(ctx context.Context, exec *Executor) error {
	entries, err := os.ReadDir(n.dir.path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if n.dir.approves(name) {
			continue
		}
		if entry.IsDir() {
			return fmt.Errorf("clean %s: unexpected subdirectory %s", n.dir.path, name)
		}
		log.Infof(ctx, "%s: removing rogue file %s", n.dir.Name(), name)
		if err := os.Remove(filepath.Join(n.dir.path, name)); err != nil {
			return fmt.Errorf("clean %s: %v", n.dir.path, err)
		}
	}
	return nil
}

// directoryCheckNode re-lists the directory after all registered nodes
// have run and warns about anything that was not approved,
// catching build steps that wrote unexpected files as a side effect.
type directoryCheckNode struct {
	nodeCore
	dir *BuildDirectoryNode
}

func (n *directoryCheckNode) runUpdate(ctx context.Context, exec *Executor) error {
	entries, err := os.ReadDir(n.dir.path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !n.dir.approves(entry.Name()) {
			log.Warnf(ctx, "%s: rogue file %s (no registered node produced it)", n.dir.Name(), entry.Name())
		}
	}
	return nil
}
