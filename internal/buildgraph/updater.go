// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"context"
	"runtime"

	"github.com/google/uuid"
	"zombiezen.com/go/log"
)

// Updater drives concurrent execution of ready nodes.
//
// Each node's build step runs in its own goroutine;
// results are multiplexed over a single completion channel,
// so all [nodeMap] bookkeeping happens in the controlling goroutine
// and needs no locks.
// The number of concurrently executing build steps is bounded by Jobs,
// and since a step runs at most one external process at a time,
// so is the number of concurrently running processes.
type Updater struct {
	// Jobs bounds the number of concurrently executing build steps.
	// If non-positive, it defaults to the number of CPUs.
	Jobs int
}

type stepResult struct {
	node  Node
	rerun bool
	err   error
}

// Update brings every node reachable from the given roots up to date.
//
// Among nodes with satisfied prerequisites no ordering is guaranteed.
// Once any terminal error occurs, no new node is started,
// but steps already in flight are drained to completion;
// their results are still consumed and successful nodes still finish.
// All terminal failures of the pass are aggregated into a single
// [*BuildError].
func (u *Updater) Update(ctx context.Context, roots ...Node) error {
	jobs := u.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	buildID := uuid.New()
	tally := new(processTally)
	m := newNodeMap(roots...)
	log.Debugf(ctx, "Build %v: %d unresolved node(s), %d job(s)", buildID, m.outstanding(), jobs)

	done := make(chan stepResult)
	inflight := 0
	failures := make(map[string]error)
	for {
		for inflight < jobs && len(failures) == 0 {
			n, ok := m.popReady()
			if !ok {
				break
			}
			inflight++
			exec := &Executor{node: n.Name(), buildID: buildID, tally: tally}
			go func(n Node) {
				rerun, err := runStep(ctx, n, exec)
				done <- stepResult{node: n, rerun: rerun, err: err}
			}(n)
		}
		if inflight == 0 {
			break
		}

		res := <-done
		inflight--
		switch {
		case res.err != nil:
			failures[res.node.Name()] = res.err
		case res.rerun:
			m.requeue(res.node)
		default:
			res.node.core().updated = true
			m.finish(res.node)
		}
	}

	if len(failures) > 0 {
		return &BuildError{Failures: failures}
	}
	if m.outstanding() > 0 {
		// Every ready node ran and nothing failed, yet unresolved nodes
		// remain: the graph has a cycle the walk did not reject.
		return &CycleError{Chain: m.findCycle()}
	}
	log.Debugf(ctx, "Build %v: complete", buildID)
	return nil
}
