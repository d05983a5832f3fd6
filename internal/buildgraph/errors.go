// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"errors"
	"fmt"
	"strings"

	"lectern.build/pkg/internal/xmaps"
)

// MissingOutputError reports that a node's command completed
// without leaving behind the node's declared output.
// It is fatal and never silently retried.
type MissingOutputError struct {
	Node string
	Path string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("%s: command completed without producing %s", e.Node, e.Path)
}

// CycleError reports that the prerequisite graph is not acyclic
// outside the explicitly supported cyclic-need mechanism.
// Chain holds node names along the detected cycle.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	if len(e.Chain) == 0 {
		return "dependency cycle detected"
	}
	return "dependency cycle: " + strings.Join(e.Chain, " -> ")
}

// closed reports whether the chain has wrapped back to its first node.
func (e *CycleError) closed() bool {
	return len(e.Chain) > 1 && e.Chain[0] == e.Chain[len(e.Chain)-1]
}

// reportedError marks a failure that has already been logged once.
// Ancestors in the dependency chain must not log it again.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Reported wraps err so that [IsReported] returns true for it.
// A nil or already-reported error is returned unchanged.
func Reported(err error) error {
	if err == nil || IsReported(err) {
		return err
	}
	return &reportedError{err: err}
}

// IsReported reports whether err has already been logged.
func IsReported(err error) bool {
	return errors.As(err, new(*reportedError))
}

// BuildError aggregates every terminal failure of a build pass.
// A multi-job run reports all independent failures, not just the first.
type BuildError struct {
	// Failures maps node names to the error that failed them.
	Failures map[string]error
}

func (e *BuildError) Error() string {
	names := xmaps.SortedKeys(e.Failures)
	if len(names) == 1 {
		return fmt.Sprintf("build failed: node %s: %v", names[0], e.Failures[names[0]])
	}
	return fmt.Sprintf("build failed: %d nodes failed: %s", len(names), strings.Join(names, ", "))
}

// Unwrap returns the individual failures in node-name order.
func (e *BuildError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, name := range xmaps.SortedKeys(e.Failures) {
		errs = append(errs, e.Failures[name])
	}
	return errs
}
