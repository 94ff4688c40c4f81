// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package config loads runner settings from the environment and the
// fragment layout from a TOML manifest.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/bradleyjkemp/fuzz-harness/harness"
)

var ErrUnknownEntry = errors.New("unknown entry point")

// Config holds runner defaults. Flags override every field.
type Config struct {
	Manifest string        `env:"HARNESS_MANIFEST" envDefault:"harness.toml"`
	Rounds   int           `env:"HARNESS_ROUNDS" envDefault:"3"`
	Workdir  string        `env:"HARNESS_WORKDIR"`
	Timeout  time.Duration `env:"HARNESS_TIMEOUT" envDefault:"30s"`
	Verbose  bool          `env:"HARNESS_VERBOSE"`
}

// FromEnv reads Config from the environment.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Manifest maps entry point names to Lua fragment files.
//
//	[fragments]
//	jsfuzzer = "main.lua"
//	eventhandler1 = "click.lua"
type Manifest struct {
	Fragments map[string]string `toml:"fragments"`
}

// LoadManifest decodes the manifest at path and reads every fragment file.
// Relative fragment paths are resolved against the manifest's directory.
func LoadManifest(path string) (map[harness.Entry]string, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	root := filepath.Dir(path)

	names := make([]string, 0, len(m.Fragments))
	for name := range m.Fragments {
		names = append(names, name)
	}
	sort.Strings(names)

	sources := make(map[harness.Entry]string, len(names))
	for _, name := range names {
		e, ok := harness.ParseEntry(name)
		if !ok {
			return nil, fmt.Errorf("%s: %w %q", path, ErrUnknownEntry, name)
		}
		file := m.Fragments[name]
		if !filepath.IsAbs(file) {
			file = filepath.Join(root, file)
		}
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read fragment for %s: %w", name, err)
		}
		sources[e] = string(src)
	}
	return sources, nil
}
