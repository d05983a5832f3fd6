// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

// Package buildgraph implements lectern's incremental build engine:
// a graph of dependency nodes with per-node staleness rules,
// a sequential recursive updater with cycle detection,
// and a concurrent scheduler ([Updater]) that drives build commands
// with bounded subprocess parallelism.
//
// Graph construction and execution are strictly separated.
// Callers wire a fully-formed graph of nodes first,
// then hand one or more roots to [Update] or [Updater.Update].
// No edges may be added to a node after its update pass has begun.
package buildgraph

import (
	"context"
	"fmt"

	"zombiezen.com/go/log"
)

// A Node is a vertex in the build graph.
// All implementations in this package embed [nodeCore],
// which provides identity, the prerequisite list,
// and the per-process updated/modified markers.
//
// A node's name is used for diagnostics only; it is not an identity.
type Node interface {
	// Name returns the node's human-readable name.
	Name() string
	// Needs returns the node's prerequisites.
	// Callers must not mutate the returned slice.
	Needs() []Node
	// AppendNeeds adds prerequisites to the node.
	// It reports an error if the node has already completed its update pass.
	AppendNeeds(needs ...Node) error
	// Updated reports whether the node has completed its update pass
	// during this process run.
	Updated() bool
	// Modified reports whether the node produced new output
	// during this process run.
	// Its value is final once Updated reports true.
	Modified() bool

	core() *nodeCore
}

// A Command is the unit of rebuild work bound to exactly one node.
// Run is invoked at most once per build pass,
// and only when the bound node is judged stale
// at the moment the node is actually executed.
//
// A Command may start at most one external process per logical attempt,
// through the [Executor] it is handed.
// On failure it must leave the node's on-disk state
// either fully consistent or cleanly absent.
type Command interface {
	Run(ctx context.Context, exec *Executor) error
}

// CommandFunc adapts a function to the [Command] interface.
type CommandFunc func(ctx context.Context, exec *Executor) error

// Run calls f.
func (f CommandFunc) Run(ctx context.Context, exec *Executor) error {
	return f(ctx, exec)
}

// nodeCore is the state shared by every node implementation.
type nodeCore struct {
	name     string
	needs    []Node
	updated  bool
	modified bool
	// locked marks the node as being on the current descent path
	// of a sequential update. Revisiting a locked node is a cycle.
	locked bool
}

func newCore(name string, needs ...Node) nodeCore {
	return nodeCore{name: name, needs: needs}
}

func (c *nodeCore) Name() string { return c.name }

func (c *nodeCore) Needs() []Node { return c.needs }

func (c *nodeCore) Updated() bool { return c.updated }

func (c *nodeCore) Modified() bool { return c.modified }

func (c *nodeCore) core() *nodeCore { return c }

// AppendNeeds adds prerequisites to the node.
// The prerequisite list is append-only until the node begins updating.
func (c *nodeCore) AppendNeeds(needs ...Node) error {
	if c.updated {
		return fmt.Errorf("append needs to %s: node already updated", c.name)
	}
	c.needs = append(c.needs, needs...)
	return nil
}

// staler is implemented by nodes that customize their staleness rule.
type staler interface {
	needsBuild() (bool, error)
}

// selfUpdater is implemented by nodes that perform work of their own
// during their update step.
// Nodes without it simply propagate their prerequisites' modified flags.
type selfUpdater interface {
	runUpdate(ctx context.Context, exec *Executor) error
}

// reiterator is implemented by nodes that may request another build pass
// after completing one (cyclic convergence).
type reiterator interface {
	wantsRerun() bool
}

// NeedsBuild evaluates the node's staleness predicate.
// The base rule judges a node stale if any prerequisite is modified;
// node types may override it (mtime comparison, content hashes, symlink
// targets).
func NeedsBuild(n Node) (bool, error) {
	if s, ok := n.(staler); ok {
		return s.needsBuild()
	}
	return anyNeedModified(n), nil
}

func anyNeedModified(n Node) bool {
	for _, need := range n.Needs() {
		if need.Modified() {
			return true
		}
	}
	return false
}

// runStep executes the node's own update step.
// Prerequisites must all have completed successfully.
// It reports rerun=true if the node requested another pass.
//
// Failures are logged here with the node's name and returned
// as already-reported errors so that callers do not log them again.
func runStep(ctx context.Context, n Node, exec *Executor) (rerun bool, err error) {
	if su, ok := n.(selfUpdater); ok {
		if err := su.runUpdate(ctx, exec); err != nil {
			if !IsReported(err) {
				log.Errorf(ctx, "%s: %v", n.Name(), err)
				err = Reported(err)
			}
			return false, fmt.Errorf("update %s: %w", n.Name(), err)
		}
	} else {
		n.core().modified = anyNeedModified(n)
	}
	if r, ok := n.(reiterator); ok {
		return r.wantsRerun(), nil
	}
	return false, nil
}
