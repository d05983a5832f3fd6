// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"zombiezen.com/go/log"
)

// processTally counts external processes running across a whole build pass.
type processTally struct {
	running atomic.Int64
}

// Executor launches external processes on behalf of a single node's
// build step. One Executor is handed to each [Command] invocation;
// it captures the process's combined output and logs failures once,
// tagged with the node's name.
type Executor struct {
	node    string
	buildID uuid.UUID
	tally   *processTally
}

// BuildID returns the identifier of the build pass this step belongs to.
func (e *Executor) BuildID() uuid.UUID { return e.buildID }

// CombinedOutput runs the process described by argv
// with the given absolute working directory,
// blocking until its combined stdout+stderr reaches end-of-file
// and its exit status is known.
//
// On a non-zero exit the full output is logged once
// and the returned error is marked reported;
// the partial output is still returned so the caller
// can apply its own interpretation (such as retrying once).
//
// There is no hard cancellation: a started process is always
// allowed to finish.
func (e *Executor) CombinedOutput(ctx context.Context, argv []string, dir string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%s: empty command", e.node)
	}
	if !filepath.IsAbs(dir) {
		return nil, fmt.Errorf("%s: working directory %q is not absolute", e.node, dir)
	}

	c := exec.Command(argv[0], argv[1:]...)
	c.Dir = dir
	output := new(bytes.Buffer)
	c.Stdout = output
	c.Stderr = output

	log.Debugf(ctx, "%s: running %s (in %s)", e.node, strings.Join(argv, " "), dir)
	if e.tally != nil {
		e.tally.running.Add(1)
	}
	err := c.Run()
	if e.tally != nil {
		e.tally.running.Add(-1)
	}
	if err != nil {
		log.Errorf(ctx, "%s: %s failed: %v\n%s", e.node, strings.Join(argv, " "), err, output.Bytes())
		return output.Bytes(), Reported(fmt.Errorf("run %s: %w", argv[0], err))
	}
	return output.Bytes(), nil
}
