// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package main: advisor bootstrap shared by chat, ask, and serve.
//
// newAdvisorRuntime assembles the full pipeline (embedder → catalog →
// gate → expander → retriever → scorer → loop) from the configuration
// and command flags, degrading to offline mode when no API key is
// available instead of refusing to start.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/Somnus/pkg/logging"
	"github.com/AleutianAI/Somnus/services/advisor/agent"
	"github.com/AleutianAI/Somnus/services/advisor/catalog"
	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
	"github.com/AleutianAI/Somnus/services/advisor/embedding"
	"github.com/AleutianAI/Somnus/services/advisor/expansion"
	"github.com/AleutianAI/Somnus/services/advisor/llm"
	"github.com/AleutianAI/Somnus/services/advisor/personalize"
	"github.com/AleutianAI/Somnus/services/advisor/relevance"
	"github.com/AleutianAI/Somnus/services/advisor/retrieval"
	"github.com/AleutianAI/Somnus/services/advisor/storage/badger"
)

// embedCacheTTL keeps cached vectors for a month; the catalog is
// re-embedded on model change anyway because the model is in the key.
const embedCacheTTL = 30 * 24 * time.Hour

// runtimeOptions are the per-command knobs for newAdvisorRuntime.
type runtimeOptions struct {
	CatalogPath string
	ProfilePath string
	Offline     bool
	UseWeaviate bool

	// Quiet suppresses stderr logging; the interactive chat UI owns the
	// terminal.
	Quiet bool

	// Service tags log lines, e.g. "cli" or "serve".
	Service string
}

// advisorRuntime is the assembled pipeline plus everything that needs
// closing when the command ends.
type advisorRuntime struct {
	Loop     *agent.Loop
	Store    catalog.Store
	Memory   *catalog.MemoryStore
	Loader   *catalog.Loader
	Records  []*catalog.ProductRecord
	Embedder embedding.Embedder
	Model    string
	Offline  bool

	logger  *logging.Logger
	closers []func() error
}

// Slog returns the runtime's structured logger.
func (rt *advisorRuntime) Slog() *slog.Logger {
	return rt.logger.Slog()
}

// Close releases caches, the key vault, and the logger, in reverse
// acquisition order. The first error wins; later closers still run.
func (rt *advisorRuntime) Close() error {
	var first error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	if err := rt.logger.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// newAdvisorRuntime builds the advisor pipeline.
//
// # Description
//
// Opens the badger caches, the key vault, and the catalog, then wires
// the loop. Missing API key degrades to offline mode with a warning
// rather than failing: the advisor still gates, retrieves, and answers
// with field templates. A missing or malformed catalog file is fatal.
func newAdvisorRuntime(ctx context.Context, cfg SomnusConfig, opts runtimeOptions) (*advisorRuntime, error) {
	level := logging.LevelInfo
	if cfg.Logging.Debug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: opts.Service,
		Quiet:   opts.Quiet,
	})
	log := logger.Slog()

	rt := &advisorRuntime{logger: logger, Offline: opts.Offline}

	fail := func(err error) (*advisorRuntime, error) {
		_ = rt.Close()
		return nil, err
	}

	// Caches. An empty cache dir runs them in memory, which is still a
	// win within one process.
	embedCache, err := openCache(cfg.Cache.Dir, "embeddings")
	if err != nil {
		return fail(fmt.Errorf("open embedding cache: %w", err))
	}
	rt.closers = append(rt.closers, embedCache.Close)

	expandCache, err := openCache(cfg.Cache.Dir, "expansion")
	if err != nil {
		return fail(fmt.Errorf("open expansion cache: %w", err))
	}
	rt.closers = append(rt.closers, expandCache.Close)

	// LLM backend. No key degrades to offline instead of failing.
	var generate llm.GenerateFunc
	var embedder embedding.Embedder
	embedCfg := embedding.DefaultConfig()

	if !rt.Offline {
		vault, err := llm.OpenKeyVault()
		if errors.Is(err, llm.ErrNoAPIKey) {
			log.Warn("No API key found, running offline",
				slog.String("hint", "set OPENAI_API_KEY or pass --offline to silence this"))
			rt.Offline = true
		} else if err != nil {
			return fail(fmt.Errorf("open key vault: %w", err))
		} else {
			rt.closers = append(rt.closers, func() error { vault.Destroy(); return nil })

			clientCfg := llm.DefaultClientConfig()
			if cfg.LLM.Model != "" {
				clientCfg.Model = cfg.LLM.Model
			}
			client, err := llm.NewOpenAIClient(vault, clientCfg)
			if err != nil {
				return fail(fmt.Errorf("create llm client: %w", err))
			}
			generate = llm.BindGenerate(client, cfg.LLM.Temperature)
			rt.Model = clientCfg.Model

			oe, err := embedding.NewOpenAIEmbedder(vault, embedCfg)
			if err != nil {
				return fail(fmt.Errorf("create embedder: %w", err))
			}
			embedder = oe
		}
	}
	if rt.Offline {
		embedder = embedding.NewLocalEmbedder(embedCfg.Dimension)
		embedCfg.Model = "local-hash"
	}
	embedder = embedding.NewCachedEmbedder(embedder, embedCache, embedCfg.Model, embedCacheTTL, log)
	rt.Embedder = embedder

	// Catalog.
	rt.Loader = catalog.NewLoader(embedder, log)
	records, err := rt.Loader.LoadFile(ctx, opts.CatalogPath)
	if err != nil {
		return fail(fmt.Errorf("load catalog: %w", err))
	}
	rt.Records = records

	if opts.UseWeaviate {
		ws, err := catalog.NewWeaviateStore(catalog.DefaultWeaviateConfig(), log)
		if err != nil {
			return fail(fmt.Errorf("connect weaviate: %w", err))
		}
		if err := ws.EnsureSchema(ctx); err != nil {
			return fail(fmt.Errorf("ensure weaviate schema: %w", err))
		}
		if _, err := ws.Ingest(ctx, records); err != nil {
			return fail(fmt.Errorf("ingest into weaviate: %w", err))
		}
		rt.Store = ws
	} else {
		ms, err := catalog.NewMemoryStore(records, log)
		if err != nil {
			return fail(fmt.Errorf("build catalog store: %w", err))
		}
		rt.Memory = ms
		rt.Store = ms
	}

	// Standing profile constraints.
	var profile datatypes.Constraints
	if opts.ProfilePath != "" {
		p, err := loadProfile(opts.ProfilePath)
		if err != nil {
			return fail(fmt.Errorf("load profile: %w", err))
		}
		profile = p.Constraints()
		log.Info("Sleeper profile loaded",
			slog.String("path", opts.ProfilePath),
			slog.Bool("has_budget", profile.BudgetCeiling != nil))
	}

	// Pipeline.
	gate := relevance.NewGate(generate, relevance.DefaultConfig(), log)
	expander := expansion.NewLLMQueryExpander(generate, expansion.DefaultConfig(), expandCache, log)
	retriever := retrieval.NewHybridRetriever(rt.Store, embedder, retrieval.DefaultConfig(), log)
	scorer := personalize.NewScorer(personalize.DefaultConfig(), log)

	loop, err := agent.NewLoop(agent.Deps{
		Gate:      gate,
		Expander:  expander,
		Retriever: retriever,
		Scorer:    scorer,
		Generate:  generate,
		Profile:   profile,
	}, agent.DefaultConfig(), log)
	if err != nil {
		return fail(fmt.Errorf("wire reasoning loop: %w", err))
	}
	rt.Loop = loop

	log.Info("Advisor ready",
		slog.Int("catalog_size", len(records)),
		slog.Bool("offline", rt.Offline),
		slog.Bool("weaviate", opts.UseWeaviate))
	return rt, nil
}

// openCache opens one named badger cache under root, or in memory when
// root is empty.
func openCache(root, name string) (*badger.DB, error) {
	if root == "" {
		return badger.OpenInMemory()
	}
	return badger.Open(badger.DefaultConfig(filepath.Join(root, name)))
}

// loadProfile reads a sleeper profile YAML.
func loadProfile(path string) (datatypes.SleeperProfile, error) {
	var p datatypes.SleeperProfile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

// effectiveCatalogPath resolves the --catalog/--file flag against config.
func effectiveCatalogPath() string {
	if catalogPath != "" {
		return catalogPath
	}
	return config.Catalog.Path
}

// effectiveSessionsDir resolves the --dir flag against config.
func effectiveSessionsDir() string {
	if sessionsDir != "" {
		return sessionsDir
	}
	return config.Sessions.Dir
}
