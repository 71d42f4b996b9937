// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SomnusConfig is the optional somnus.yaml configuration file. Every
// field has a working default so a missing file is not an error; CLI
// flags override the file where both exist.
type SomnusConfig struct {
	// Catalog locates the product catalog.
	Catalog CatalogConfig `yaml:"catalog"`

	// LLM configures the chat backend.
	LLM LLMConfig `yaml:"llm"`

	// Sessions configures conversation persistence.
	Sessions SessionsConfig `yaml:"sessions"`

	// Cache configures the on-disk embedding/expansion caches.
	Cache CacheConfig `yaml:"cache"`

	// Backup configures GCS session backups.
	Backup BackupConfig `yaml:"backup"`

	// Metrics configures the InfluxDB session-metrics export.
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging configures the CLI logger.
	Logging LogConfig `yaml:"logging"`
}

type CatalogConfig struct {
	// Path to the catalog JSON file.
	Path string `yaml:"path"`

	// UseWeaviate serves retrieval from Weaviate instead of the
	// in-process store. Requires a prior `somnus catalog ingest --weaviate`.
	UseWeaviate bool `yaml:"use_weaviate"`
}

type LLMConfig struct {
	// Model overrides the default chat model. Empty keeps the
	// SOMNUS_LLM_MODEL/env default.
	Model string `yaml:"model,omitempty"`

	// Temperature for synthesis calls.
	Temperature float32 `yaml:"temperature"`
}

type SessionsConfig struct {
	// Dir is where unsuffixed session files are written and listed.
	Dir string `yaml:"dir"`
}

type CacheConfig struct {
	// Dir is the root of the badger caches. Empty runs them in memory.
	Dir string `yaml:"dir,omitempty"`
}

type BackupConfig struct {
	ProjectID       string `yaml:"project_id,omitempty"`
	Bucket          string `yaml:"bucket,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`

	// Prefix is the object-name prefix inside the bucket.
	Prefix string `yaml:"prefix,omitempty"`
}

type MetricsConfig struct {
	// InfluxURL is the InfluxDB endpoint. Token comes from INFLUXDB_TOKEN.
	InfluxURL    string `yaml:"influx_url,omitempty"`
	InfluxOrg    string `yaml:"influx_org,omitempty"`
	InfluxBucket string `yaml:"influx_bucket,omitempty"`
}

type LogConfig struct {
	// Dir enables file logging when set.
	Dir string `yaml:"dir,omitempty"`

	// Debug lowers the level to debug.
	Debug bool `yaml:"debug"`
}

// DefaultSomnusConfig returns the defaults used when somnus.yaml is
// absent or partial.
func DefaultSomnusConfig() SomnusConfig {
	return SomnusConfig{
		Catalog:  CatalogConfig{Path: "products.json"},
		LLM:      LLMConfig{Temperature: 0.7},
		Sessions: SessionsConfig{Dir: "sessions"},
		Metrics: MetricsConfig{
			InfluxURL:    "http://localhost:8086",
			InfluxOrg:    "somnus",
			InfluxBucket: "somnus-sessions",
		},
		Backup: BackupConfig{Prefix: "somnus/sessions"},
	}
}

// LoadSomnusConfig reads path and overlays it on the defaults. A missing
// file returns the defaults and no error; a file that exists but cannot
// be parsed is an error so typos never silently fall back.
func LoadSomnusConfig(path string) (SomnusConfig, error) {
	cfg := DefaultSomnusConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Re-fill fields an explicit empty value would otherwise blank.
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "products.json"
	}
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = "sessions"
	}
	return cfg, nil
}
