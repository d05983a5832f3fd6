// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

// Package course assembles the build graph for a collection of course
// documents: LaTeX sources with Asymptote figures, compiled to PDFs.
package course

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	"lectern.build/pkg/internal/sets"
)

// Manifest is the top-level description of a course,
// usually read from a lectern.yaml file next to the sources.
type Manifest struct {
	// Root is the directory the sources live in.
	// It is filled in from the manifest file's location, not the YAML.
	Root string `yaml:"-"`

	Documents []*Document `yaml:"documents"`
}

// Document describes one buildable course document.
type Document struct {
	// Name identifies the document on the command line and
	// names its build subdirectory. It must be unique.
	Name string `yaml:"name"`

	// Main is the path of the document's main .tex file,
	// relative to the manifest.
	Main string `yaml:"main"`

	// Inputs lists additional .tex files the main file includes,
	// relative to the manifest.
	Inputs []string `yaml:"inputs,omitempty"`

	// Figures lists Asymptote sources compiled to PDF figures,
	// relative to the manifest.
	Figures []string `yaml:"figures,omitempty"`

	// Output is the artifact file name. Defaults to Name + ".pdf".
	Output string `yaml:"output,omitempty"`
}

// OutputName returns the document's artifact file name.
func (doc *Document) OutputName() string {
	if doc.Output != "" {
		return doc.Output
	}
	return doc.Name + ".pdf"
}

// ParseManifestFile reads and validates the manifest at path.
func ParseManifestFile(path string) (*Manifest, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := parseManifest(bs)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	m.Root = root
	return m, nil
}

func parseManifest(bs []byte) (*Manifest, error) {
	m := new(Manifest)
	dec := yaml.NewDecoder(bytes.NewReader(bs))
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) validate() error {
	if len(m.Documents) == 0 {
		return fmt.Errorf("no documents declared")
	}
	names := make(sets.Set[string])
	for i, doc := range m.Documents {
		if doc.Name == "" {
			return fmt.Errorf("document #%d: missing name", i+1)
		}
		if strings.ContainsAny(doc.Name, `/\`) {
			return fmt.Errorf("document %s: name must not contain path separators", doc.Name)
		}
		if names.Has(doc.Name) {
			return fmt.Errorf("document %s declared twice", doc.Name)
		}
		names.Add(doc.Name)
		if doc.Main == "" {
			return fmt.Errorf("document %s: missing main file", doc.Name)
		}
		if filepath.Ext(doc.Main) != ".tex" {
			return fmt.Errorf("document %s: main file %s is not a .tex file", doc.Name, doc.Main)
		}
		for _, fig := range doc.Figures {
			if filepath.Ext(fig) != ".asy" {
				return fmt.Errorf("document %s: figure %s is not an .asy file", doc.Name, fig)
			}
		}
	}
	return nil
}

// Document returns the named document, or nil if the manifest has none.
func (m *Manifest) Document(name string) *Document {
	for _, doc := range m.Documents {
		if doc.Name == name {
			return doc
		}
	}
	return nil
}
