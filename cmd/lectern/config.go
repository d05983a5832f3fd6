// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/tailscale/hujson"
)

type globalConfig struct {
	Debug         bool   `json:"debug"`
	Manifest      string `json:"manifest"`
	BuildDir      string `json:"buildDirectory"`
	OutDir        string `json:"outputDirectory"`
	CacheDB       string `json:"cacheDB"`
	Jobs          int    `json:"jobs"`
	MaxIterations int    `json:"maxIterations"`
	LaTeX         string `json:"latex"`
	Asymptote     string `json:"asymptote"`
}

func defaultGlobalConfig() *globalConfig {
	g := &globalConfig{
		Manifest: "lectern.yaml",
		BuildDir: "build",
		OutDir:   "out",
	}
	if cd, err := os.UserCacheDir(); err == nil {
		g.CacheDB = filepath.Join(cd, "lectern", "ledger.db")
	}
	return g
}

// configPaths yields the configuration files to merge, in ascending
// precedence. extra, if non-empty, is merged last.
func configPaths(extra string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if cd, err := os.UserConfigDir(); err == nil {
			if !yield(filepath.Join(cd, "lectern", "config.jwcc")) {
				return
			}
		}
		if extra != "" {
			yield(extra)
		}
	}
}

func (g *globalConfig) mergeEnvironment() error {
	if path := os.Getenv("LECTERN_MANIFEST"); path != "" {
		g.Manifest = path
	}
	if dir := os.Getenv("LECTERN_BUILD_DIR"); dir != "" {
		g.BuildDir = dir
	}
	if dir := os.Getenv("LECTERN_OUT_DIR"); dir != "" {
		g.OutDir = dir
	}
	if path := os.Getenv("LECTERN_CACHE_DB"); path != "" {
		g.CacheDB = path
	}
	if tool := os.Getenv("LECTERN_LATEX"); tool != "" {
		g.LaTeX = tool
	}
	if tool := os.Getenv("LECTERN_ASYMPTOTE"); tool != "" {
		g.Asymptote = tool
	}
	return nil
}

func (g *globalConfig) mergeFiles(paths iter.Seq[string]) error {
	for path := range paths {
		huJSONData, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		jsonData, err := hujson.Standardize(huJSONData)
		if err != nil {
			return fmt.Errorf("read %s: %v", path, err)
		}
		if err := jsonv2.Unmarshal(jsonData, g, jsonv2.RejectUnknownMembers(false)); err != nil {
			return fmt.Errorf("read %s: %v", path, err)
		}
	}

	return nil
}

// UnmarshalJSONFrom unmarshals the configuration object from the JSON decoder,
// merging any fields in the JSON object with existing values.
func (g *globalConfig) UnmarshalJSONFrom(in *jsontext.Decoder) error {
	tok, err := in.ReadToken()
	if err != nil {
		return err
	}
	if got := tok.Kind(); got != '{' {
		return fmt.Errorf("config must be an object not a %v", got)
	}

	for {
		keyToken, err := in.ReadToken()
		if err != nil {
			return err
		}
		switch kind := keyToken.Kind(); kind {
		case '}':
			return nil
		case '"':
			// Keep going.
		default:
			return fmt.Errorf("unexpected non-string key (%v) in object", kind)
		}

		switch k := keyToken.String(); k {
		case "debug":
			if err := jsonv2.UnmarshalDecode(in, &g.Debug); err != nil {
				return fmt.Errorf("unmarshal config.debug: %w", err)
			}
		case "manifest":
			if err := jsonv2.UnmarshalDecode(in, &g.Manifest); err != nil {
				return fmt.Errorf("unmarshal config.manifest: %w", err)
			}
		case "buildDirectory":
			if err := jsonv2.UnmarshalDecode(in, &g.BuildDir); err != nil {
				return fmt.Errorf("unmarshal config.buildDirectory: %w", err)
			}
		case "outputDirectory":
			if err := jsonv2.UnmarshalDecode(in, &g.OutDir); err != nil {
				return fmt.Errorf("unmarshal config.outputDirectory: %w", err)
			}
		case "cacheDB":
			if err := jsonv2.UnmarshalDecode(in, &g.CacheDB); err != nil {
				return fmt.Errorf("unmarshal config.cacheDB: %w", err)
			}
		case "jobs":
			if err := jsonv2.UnmarshalDecode(in, &g.Jobs); err != nil {
				return fmt.Errorf("unmarshal config.jobs: %w", err)
			}
		case "maxIterations":
			if err := jsonv2.UnmarshalDecode(in, &g.MaxIterations); err != nil {
				return fmt.Errorf("unmarshal config.maxIterations: %w", err)
			}
		case "latex":
			if err := jsonv2.UnmarshalDecode(in, &g.LaTeX); err != nil {
				return fmt.Errorf("unmarshal config.latex: %w", err)
			}
		case "asymptote":
			if err := jsonv2.UnmarshalDecode(in, &g.Asymptote); err != nil {
				return fmt.Errorf("unmarshal config.asymptote: %w", err)
			}
		default:
			if reject, _ := jsonv2.GetOption(in.Options(), jsonv2.RejectUnknownMembers); reject {
				return fmt.Errorf("unmarshal config: unknown field %q", k)
			}
		}
	}
}

func (g *globalConfig) validate() error {
	if g.Manifest == "" {
		return fmt.Errorf("manifest path not set")
	}
	if g.BuildDir == "" {
		return fmt.Errorf("build directory not set")
	}
	if g.OutDir == "" {
		return fmt.Errorf("output directory not set")
	}
	if g.CacheDB == "" {
		return fmt.Errorf("cache database path not set")
	}
	if g.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative")
	}
	if g.MaxIterations < 0 {
		return fmt.Errorf("max iterations must not be negative")
	}
	return nil
}
