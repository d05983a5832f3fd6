// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package course

import (
	"fmt"
	"path/filepath"
	"strings"

	"lectern.build/pkg/internal/buildgraph"
)

// Options configures graph assembly.
type Options struct {
	// BuildDir is the root of the per-document build directories.
	BuildDir string
	// OutDir is where finished artifacts are exposed.
	OutDir string
	// Ledger persists content digests across runs. May be nil.
	Ledger buildgraph.HashLedger
	// MaxIterations caps LaTeX reruns per document.
	// Non-positive means the engine default.
	MaxIterations int
	// LaTeX and Asymptote override the toolchain binaries.
	LaTeX     string
	Asymptote string
}

// Plan is a wired node graph for a set of documents.
type Plan struct {
	// Roots are the nodes to hand to the updater,
	// one per requested document.
	Roots []buildgraph.Node
	// Artifacts are the finished artifact paths under OutDir,
	// parallel to Roots.
	Artifacts []string
}

// NewPlan assembles the build graph for the named documents
// (all documents in the manifest if names is empty).
// It only wires nodes; nothing touches the filesystem until the
// graph is updated.
func NewPlan(m *Manifest, names []string, opts Options) (*Plan, error) {
	docs := m.Documents
	if len(names) > 0 {
		docs = make([]*Document, 0, len(names))
		for _, name := range names {
			doc := m.Document(name)
			if doc == nil {
				return nil, fmt.Errorf("plan: no document named %s", name)
			}
			docs = append(docs, doc)
		}
	}

	buildDir, err := filepath.Abs(opts.BuildDir)
	if err != nil {
		return nil, fmt.Errorf("plan: %v", err)
	}
	outDir, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return nil, fmt.Errorf("plan: %v", err)
	}
	if opts.LaTeX == "" {
		opts.LaTeX = defaultLaTeX
	}
	if opts.Asymptote == "" {
		opts.Asymptote = defaultAsymptote
	}

	// The output directory is created but never policed:
	// it may hold files lectern does not know about.
	outDirNode := buildgraph.NewBuildDirectory("dir:out", outDir)

	plan := new(Plan)
	for _, doc := range docs {
		root, artifact, err := planDocument(m, doc, buildDir, outDirNode, opts)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", doc.Name, err)
		}
		plan.Roots = append(plan.Roots, root)
		plan.Artifacts = append(plan.Artifacts, artifact)
	}
	return plan, nil
}

func planDocument(m *Manifest, doc *Document, buildDir string, outDirNode *buildgraph.BuildDirectoryNode, opts Options) (root buildgraph.Node, artifact string, err error) {
	docDir := filepath.Join(buildDir, doc.Name)
	dir := buildgraph.NewBuildDirectory("dir:"+doc.Name, docDir)

	// Mirror every declared source into the build directory as a
	// symlink, so the LaTeX working directory is self-contained and
	// the rogue-file sweep knows exactly what belongs there.
	var latexInputs []buildgraph.Node
	for _, rel := range append([]string{doc.Main}, doc.Inputs...) {
		link, src, err := mirrorSource(m, doc, dir, docDir, rel)
		if err != nil {
			return nil, "", err
		}
		// The symlink's own mtime never changes once it exists;
		// staleness must come from the real file behind it.
		latexInputs = append(latexInputs, link, src)
	}

	for _, rel := range doc.Figures {
		link, src, err := mirrorSource(m, doc, dir, docDir, rel)
		if err != nil {
			return nil, "", err
		}
		base := filepath.Base(rel)
		pdfName := strings.TrimSuffix(base, ".asy") + ".pdf"
		fig := buildgraph.NewProduct(
			doc.Name+"/"+pdfName,
			filepath.Join(docDir, pdfName),
			src,
			&asyCommand{tool: opts.Asymptote, dir: docDir, source: base},
		)
		if err := fig.AppendNeeds(link); err != nil {
			return nil, "", err
		}
		if err := dir.Register(fig, pdfName); err != nil {
			return nil, "", err
		}
		latexInputs = append(latexInputs, fig)
	}

	driver := buildgraph.NewTextFile(
		doc.Name+"/driver.tex",
		filepath.Join(docDir, "driver.tex"),
		doc.Name+"/driver.tex",
		opts.Ledger,
		func() (string, error) { return driverText(doc), nil },
	)
	if err := dir.Register(driver, "driver.tex"); err != nil {
		return nil, "", err
	}

	pdfName := doc.Name + ".pdf"
	latex := buildgraph.NewCyclic(
		doc.Name+"/"+pdfName,
		filepath.Join(docDir, pdfName),
		driver,
		&latexCommand{tool: opts.LaTeX, dir: docDir, jobname: doc.Name, main: "driver.tex"},
		opts.MaxIterations,
	)
	for _, side := range []string{doc.Name + ".aux", doc.Name + ".toc"} {
		aw := buildgraph.NewAutowrittenNeed(docDir, side)
		if err := latex.AddAutowrittenNeed(aw); err != nil {
			return nil, "", err
		}
		names, patterns := aw.ApprovedNames()
		if err := dir.Approve(names...); err != nil {
			return nil, "", err
		}
		for _, p := range patterns {
			if err := dir.ApprovePattern(p); err != nil {
				return nil, "", err
			}
		}
	}
	if err := latex.AppendNeeds(latexInputs...); err != nil {
		return nil, "", err
	}
	if err := dir.Register(latex, pdfName); err != nil {
		return nil, "", err
	}
	// The engine leaves .log and friends behind; tolerate anything
	// carrying the document's jobname.
	if err := dir.ApprovePattern(doc.Name + ".*"); err != nil {
		return nil, "", err
	}

	artifact = filepath.Join(outDirNode.Path(), doc.OutputName())
	out := buildgraph.NewSymlink("out:"+doc.Name, artifact, latex.Path(), latex)
	if err := out.AppendNeeds(outDirNode); err != nil {
		return nil, "", err
	}

	root = buildgraph.NewTarget("doc:"+doc.Name, dir.PostCheck(), out)
	return root, artifact, nil
}

// mirrorSource declares the source file at rel (relative to the
// manifest) and a symlink to it inside the document's build directory.
func mirrorSource(m *Manifest, doc *Document, dir *buildgraph.BuildDirectoryNode, docDir, rel string) (link, src buildgraph.Node, err error) {
	base := filepath.Base(rel)
	abs := filepath.Join(m.Root, rel)
	srcNode := buildgraph.NewSourceFile(doc.Name+"/src/"+rel, abs)
	linkNode := buildgraph.NewSymlink(doc.Name+"/"+base, filepath.Join(docDir, base), abs, srcNode)
	if err := dir.Register(linkNode, base); err != nil {
		return nil, nil, err
	}
	return linkNode, srcNode, nil
}

// driverText renders the generated top-level .tex file,
// which does nothing but pull in the document's main file.
func driverText(doc *Document) string {
	main := strings.TrimSuffix(filepath.Base(doc.Main), ".tex")
	return fmt.Sprintf("%% Generated by lectern. Edit %s instead.\n\\input{%s}\n", doc.Main, main)
}
