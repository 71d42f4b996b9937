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
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Somnus/pkg/ux"
	"github.com/AleutianAI/Somnus/services/advisor/catalog"
)

// runCatalogIngest loads, embeds, and (optionally) pushes the catalog
// into Weaviate. Without --weaviate it is a dry run of the full
// ingestion path, embeddings included, which warms the embedding cache.
func runCatalogIngest(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	rt, err := newAdvisorRuntime(ctx, config, runtimeOptions{
		CatalogPath: effectiveCatalogPath(),
		Offline:     offlineMode,
		UseWeaviate: false, // ingest handles Weaviate itself, with progress
		Quiet:       true,
		Service:     "ingest",
	})
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}
	defer rt.Close()

	if !useWeaviate && !config.Catalog.UseWeaviate {
		ux.IngestSummary(len(rt.Records), 0, len(rt.Records))
		ux.Info("Catalog embedded and cached. Pass --weaviate to push into Weaviate.")
		return
	}

	var count int
	err = ux.WithSpinner("Pushing catalog into Weaviate...", func() error {
		ws, err := catalog.NewWeaviateStore(catalog.DefaultWeaviateConfig(), rt.Slog())
		if err != nil {
			return err
		}
		if err := ws.EnsureSchema(ctx); err != nil {
			return err
		}
		count, err = ws.Ingest(ctx, rt.Records)
		return err
	})
	if err != nil {
		log.Fatalf("Weaviate ingest failed: %v", err)
	}
	ux.IngestSummary(count, len(rt.Records)-count, len(rt.Records))
}

// runCatalogStats prints catalog-wide aggregates. Uses the local
// embedder so it never needs an API key.
func runCatalogStats(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	rt, err := newAdvisorRuntime(ctx, config, runtimeOptions{
		CatalogPath: effectiveCatalogPath(),
		Offline:     true,
		Quiet:       true,
		Service:     "stats",
	})
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}
	defer rt.Close()

	stats := catalog.ComputeStats(rt.Records)

	ux.Title("Catalog")
	ux.Info(fmt.Sprintf("Products:     %d", stats.Count))
	ux.Info(fmt.Sprintf("Price range:  %s ~ %s", ux.FormatKRW(stats.PriceMin), ux.FormatKRW(stats.PriceMax)))
	ux.Info(fmt.Sprintf("Price avg:    %s", ux.FormatKRW(stats.PriceAvg)))
	ux.Info(fmt.Sprintf("Rating avg:   %.1f / 5.0", stats.RatingAvg))
	if brands := stats.TopBrands(5); len(brands) > 0 {
		ux.Info(fmt.Sprintf("Top brands:   %s", strings.Join(brands, ", ")))
	}

	if len(stats.ByType) > 0 {
		types := make([]string, 0, len(stats.ByType))
		for t := range stats.ByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		ux.Info("By type:")
		for _, t := range types {
			ux.Info(fmt.Sprintf("  %-16s %d", t, stats.ByType[catalog.ProductType(t)]))
		}
	}
}

// runCatalogValidate parses and normalizes the catalog file without
// embedding anything, reporting what loads and what gets dropped.
func runCatalogValidate(cmd *cobra.Command, args []string) {
	path := effectiveCatalogPath()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}

	loader := catalog.NewLoader(nil, nil)
	records, err := loader.Normalize(data)
	if err != nil {
		log.Fatalf("Catalog invalid: %v", err)
	}

	for _, rec := range records {
		switch {
		case len(rec.ReviewSnippets) == 0:
			ux.IngestStatus(rec.ID, ux.IconWarning, "no reviews")
		case rec.Rating == 0:
			ux.IngestStatus(rec.ID, ux.IconWarning, "no rating")
		default:
			ux.IngestStatus(rec.ID, ux.IconSuccess, "")
		}
	}

	// Normalize logs and skips bad rows; the difference is the skip count.
	total := countRawRows(data)
	ux.IngestSummary(len(records), total-len(records), total)
}

// countRawRows counts rows before validation for the summary line.
// Accepts both catalog shapes: a bare array or {"products": [...]}.
func countRawRows(data []byte) int {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		return len(arr)
	}
	var file struct {
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(data, &file); err == nil {
		return len(file.Products)
	}
	return 0
}
