// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Update performs a single-threaded recursive update of node:
// prerequisites first (in list order), then the node's own step.
// A node that already completed its update pass is skipped.
//
// Revisiting a node that is still on the descent path is a dependency
// cycle; the returned [*CycleError] carries the chain of node names
// collected as the error propagates back out of each recursive frame,
// so the reported path shows the exact cycle.
func Update(ctx context.Context, node Node) error {
	u := &sequentialUpdater{
		buildID: uuid.New(),
		tally:   new(processTally),
	}
	return u.update(ctx, node)
}

type sequentialUpdater struct {
	buildID uuid.UUID
	tally   *processTally
}

func (u *sequentialUpdater) update(ctx context.Context, n Node) error {
	c := n.core()
	if c.updated {
		return nil
	}
	if c.locked {
		return &CycleError{Chain: []string{n.Name()}}
	}
	c.locked = true
	defer func() { c.locked = false }()

	for _, need := range n.Needs() {
		if err := u.update(ctx, need); err != nil {
			var cycle *CycleError
			if errors.As(err, &cycle) && !cycle.closed() {
				cycle.Chain = append(cycle.Chain, n.Name())
			}
			return err
		}
	}

	exec := &Executor{node: n.Name(), buildID: u.buildID, tally: u.tally}
	for {
		rerun, err := runStep(ctx, n, exec)
		if err != nil {
			return err
		}
		if !rerun {
			break
		}
	}
	c.updated = true
	return nil
}
