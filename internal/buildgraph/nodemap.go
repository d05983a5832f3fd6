// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"slices"

	"lectern.build/pkg/internal/sets"
	"lectern.build/pkg/internal/xslices"
)

// nodeMap is the bookkeeping structure for a concurrent update pass.
// For the working set of unresolved nodes it tracks which prerequisites
// remain unmet and which dependents are waiting on each node.
//
// A nodeMap is mutated only by the scheduler's controlling goroutine.
type nodeMap struct {
	// needs maps each unresolved node to its not-yet-finished prerequisites.
	needs map[Node]sets.Set[Node]
	// revneeds maps each unresolved node to the dependents waiting on it.
	revneeds map[Node]sets.Set[Node]
	// ready holds nodes whose remaining-prerequisite set is empty.
	ready []Node
}

// newNodeMap walks the graph from the requested roots and populates the
// bookkeeping structures. Nodes already updated in a prior pass are
// treated as pre-satisfied and excluded from the working set.
func newNodeMap(roots ...Node) *nodeMap {
	m := &nodeMap{
		needs:    make(map[Node]sets.Set[Node]),
		revneeds: make(map[Node]sets.Set[Node]),
	}
	stack := slices.Clone(roots)
	for len(stack) > 0 {
		n := xslices.Last(stack)
		stack = xslices.Pop(stack, 1)
		if n.Updated() {
			continue
		}
		if _, visited := m.needs[n]; visited {
			continue
		}
		unmet := make(sets.Set[Node])
		for _, need := range n.Needs() {
			if need.Updated() {
				continue
			}
			unmet.Add(need)
			dependents := m.revneeds[need]
			if dependents == nil {
				dependents = make(sets.Set[Node])
				m.revneeds[need] = dependents
			}
			dependents.Add(n)
			stack = append(stack, need)
		}
		m.needs[n] = unmet
		if unmet.Len() == 0 {
			m.ready = append(m.ready, n)
		}
	}
	return m
}

// popReady removes and returns a node with no remaining prerequisites.
func (m *nodeMap) popReady() (Node, bool) {
	if len(m.ready) == 0 {
		return nil, false
	}
	n := xslices.Last(m.ready)
	m.ready = xslices.Pop(m.ready, 1)
	return n, true
}

// requeue puts a node back on the ready queue for another build pass.
// Its prerequisites are already satisfied.
func (m *nodeMap) requeue(n Node) {
	m.ready = append(m.ready, n)
}

// finish removes a completed node from the working set,
// promoting any dependent whose remaining-prerequisite set becomes empty.
func (m *nodeMap) finish(n Node) {
	delete(m.needs, n)
	for dependent := range m.revneeds[n].All() {
		unmet := m.needs[dependent]
		unmet.Delete(n)
		if unmet.Len() == 0 {
			m.ready = append(m.ready, dependent)
		}
	}
	delete(m.revneeds, n)
}

// outstanding returns the number of unresolved nodes left in the working set.
func (m *nodeMap) outstanding() int {
	return len(m.needs)
}

// findCycle diagnoses a non-empty leftover working set by following an
// arbitrary chain of remaining unmet prerequisites until a node repeats.
func (m *nodeMap) findCycle() []string {
	var start Node
	for n := range m.needs {
		start = n
		break
	}
	if start == nil {
		return nil
	}
	index := map[Node]int{}
	var chain []string
	for n := start; ; {
		if at, seen := index[n]; seen {
			return append(chain[at:], n.Name())
		}
		index[n] = len(chain)
		chain = append(chain, n.Name())
		next := n
		for unmet := range m.needs[n].All() {
			next = unmet
			break
		}
		if next == n {
			// No unmet prerequisite: not actually part of a cycle.
			return chain
		}
		n = next
	}
}
