// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package buildgraph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
	"zombiezen.com/go/log"
	"lectern.build/pkg/internal/osutil"
)

// DefaultMaxIterations is the default cap on cyclic convergence passes.
const DefaultMaxIterations = 5

// An AutowrittenNeed is a side file written by a node's own build step
// that is itself an input to the next run of the same step
// (a LaTeX .aux file is the canonical case).
//
// The file's identity is its content hash, not its mtime:
// the on-disk file is kept under a name embedding the hash of its content,
// and the logical name is a symbolic link to that hash-named file.
// Rewriting the file with byte-identical content is therefore a no-op.
type AutowrittenNeed struct {
	dir  string
	name string

	loaded bool
	// digest is the BLAKE3-256 hash of the last observed content.
	// nil means no content has ever been observed.
	digest []byte
	// managed reports whether the on-disk state matches the
	// hash-named-file-plus-symlink layout for digest.
	managed bool
}

// NewAutowrittenNeed declares a side file with the given logical name
// inside the (absolute) directory dir.
func NewAutowrittenNeed(dir, name string) *AutowrittenNeed {
	return &AutowrittenNeed{dir: dir, name: name}
}

// LogicalPath returns the path of the side file under its logical name.
func (a *AutowrittenNeed) LogicalPath() string {
	return filepath.Join(a.dir, a.name)
}

// ApprovedNames returns the directory entries the need is allowed to
// occupy: the logical name itself plus the hash-named backing files.
func (a *AutowrittenNeed) ApprovedNames() (names []string, patterns []string) {
	return []string{a.name}, []string{a.name + ".*"}
}

func (a *AutowrittenNeed) hashName(digest []byte) string {
	return fmt.Sprintf("%s.%x", a.name, digest[:8])
}

// load seeds the need's digest from whatever is on disk,
// without rewriting anything.
// It reports dirty=true if the on-disk content is not in the managed
// hash-named layout (for example, the file was edited by hand),
// which makes the owning node stale.
func (a *AutowrittenNeed) load() (dirty bool, err error) {
	if a.loaded {
		return false, nil
	}
	a.loaded = true
	content, err := os.ReadFile(a.LogicalPath())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %v", a.LogicalPath(), err)
	}
	sum := blake3.Sum256(content)
	a.digest = sum[:]

	info, err := os.Lstat(a.LogicalPath())
	if err != nil {
		return false, fmt.Errorf("load %s: %v", a.LogicalPath(), err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return true, nil
	}
	target, err := os.Readlink(a.LogicalPath())
	if err != nil {
		return false, fmt.Errorf("load %s: %v", a.LogicalPath(), err)
	}
	a.managed = target == a.hashName(a.digest)
	return !a.managed, nil
}

// refresh re-examines the side file after a build step,
// renames it into its hash-named form,
// and repoints the logical symlink.
// It reports whether the content hash changed since last checked.
func (a *AutowrittenNeed) refresh(ctx context.Context) (changed bool, err error) {
	logical := a.LogicalPath()
	content, err := os.ReadFile(logical)
	if errors.Is(err, os.ErrNotExist) {
		// The build step wrote nothing this pass; nothing new to consume.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("refresh %s: %v", logical, err)
	}
	sum := blake3.Sum256(content)
	changed = a.digest == nil || !bytes.Equal(sum[:], a.digest)
	hashName := a.hashName(sum[:])

	info, err := os.Lstat(logical)
	if err != nil {
		return false, fmt.Errorf("refresh %s: %v", logical, err)
	}
	switch {
	case info.Mode()&os.ModeSymlink == 0:
		// A fresh regular file: rename it to embed the hash,
		// then leave a symlink under the logical name.
		if err := os.Rename(logical, filepath.Join(a.dir, hashName)); err != nil {
			return false, fmt.Errorf("refresh %s: %v", logical, err)
		}
		if err := os.Symlink(hashName, logical); err != nil {
			return false, fmt.Errorf("refresh %s: %v", logical, err)
		}
	default:
		// The build step wrote through the existing symlink,
		// so the old hash-named file now holds the new content.
		oldTarget, err := os.Readlink(logical)
		if err != nil {
			return false, fmt.Errorf("refresh %s: %v", logical, err)
		}
		if oldTarget != hashName {
			if err := osutil.WriteFilePerm(filepath.Join(a.dir, hashName), content, 0o644); err != nil {
				return false, fmt.Errorf("refresh %s: %v", logical, err)
			}
			if err := osutil.ReplaceSymlink(hashName, logical); err != nil {
				return false, fmt.Errorf("refresh %s: %v", logical, err)
			}
			// The old backing file's name no longer matches its content.
			os.Remove(filepath.Join(a.dir, oldTarget))
		}
	}

	a.digest = sum[:]
	a.managed = true
	log.Debugf(ctx, "%s: content hash now %x (changed=%t)", logical, sum[:8], changed)
	return changed, nil
}

// CyclicNode is a product node whose build step may run several times
// per process invocation, because the step both reads and rewrites its
// autowritten needs. The step is repeated until the needs' content
// hashes stabilize or MaxIterations passes have run.
type CyclicNode struct {
	ProductNode
	autowritten   []*AutowrittenNeed
	maxIterations int
	iterations    int
	rerun         bool
}

// NewCyclic returns a cyclic product node.
// maxIterations caps the convergence loop;
// a non-positive value means [DefaultMaxIterations].
func NewCyclic(name, path string, source Node, cmd Command, maxIterations int) *CyclicNode {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	n := &CyclicNode{maxIterations: maxIterations}
	n.PathNode = PathNode{nodeCore: newCore(name), path: path}
	n.source = source
	n.cmd = cmd
	if source != nil {
		n.needs = append(n.needs, source)
	}
	return n
}

// AddAutowrittenNeed registers a side file tracked across the node's
// build iterations. It reports an error once the node has updated.
func (n *CyclicNode) AddAutowrittenNeed(a *AutowrittenNeed) error {
	if n.updated {
		return fmt.Errorf("add autowritten need to %s: node already updated", n.name)
	}
	n.autowritten = append(n.autowritten, a)
	return nil
}

func (n *CyclicNode) needsBuild() (bool, error) {
	if n.rerun {
		return true, nil
	}
	stale, err := n.PathNode.needsBuild()
	if err != nil || stale {
		return stale, err
	}
	for _, a := range n.autowritten {
		dirty, err := a.load()
		if err != nil {
			return false, err
		}
		if dirty {
			return true, nil
		}
	}
	return false, nil
}

func (n *CyclicNode) runUpdate(ctx context.Context, exec *Executor) error {
	stale, err := n.needsBuild()
	if err != nil {
		return err
	}
	if !stale {
		return nil
	}
	// Seed digests from disk so the first refresh compares against the
	// previous run's content rather than treating it as brand new.
	for _, a := range n.autowritten {
		if _, err := a.load(); err != nil {
			return err
		}
	}

	n.rerun = false
	if err := n.buildOnce(ctx, exec); err != nil {
		return err
	}
	n.iterations++

	changed := false
	for _, a := range n.autowritten {
		c, err := a.refresh(ctx)
		if err != nil {
			return err
		}
		changed = changed || c
	}
	switch {
	case !changed:
		log.Debugf(ctx, "%s: converged after %d iteration(s)", n.name, n.iterations)
	case n.iterations < n.maxIterations:
		log.Debugf(ctx, "%s: autowritten needs changed; scheduling iteration %d", n.name, n.iterations+1)
		n.rerun = true
	default:
		log.Warnf(ctx, "%s: did not converge after %d iterations; accepting output as-is", n.name, n.iterations)
	}
	return nil
}

func (n *CyclicNode) wantsRerun() bool { return n.rerun }
