// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"sort"
)

// SearchHit is one ranked result from a store query. Score is always
// normalized to [0,1] by the store backend so strategies can be merged
// without rescaling at the call site.
type SearchHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Filter is the metadata predicate for filtered nearest-neighbor search.
// Zero-value fields do not constrain.
type Filter struct {
	Types       []ProductType
	Brands      []string
	MaxPrice    int
	FeaturesAny []string
	HealthAny   []string
}

// IsZero reports whether the filter constrains nothing.
func (f Filter) IsZero() bool {
	return len(f.Types) == 0 && len(f.Brands) == 0 && f.MaxPrice == 0 &&
		len(f.FeaturesAny) == 0 && len(f.HealthAny) == 0
}

// Matches applies the predicate to one record.
func (f Filter) Matches(r *ProductRecord) bool {
	if f.MaxPrice > 0 && r.Price > f.MaxPrice {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, r.Type) {
		return false
	}
	if len(f.Brands) > 0 && !containsTag(f.Brands, r.Brand) {
		return false
	}
	if len(f.FeaturesAny) > 0 && !intersectsTags(r.Features, f.FeaturesAny) {
		return false
	}
	if len(f.HealthAny) > 0 && !intersectsTags(r.HealthSuitability, f.HealthAny) {
		return false
	}
	return true
}

func containsType(types []ProductType, t ProductType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func intersectsTags(have, want []string) bool {
	for _, w := range want {
		if containsTag(have, w) {
			return true
		}
	}
	return false
}

// Store serves read-only queries over the live catalog snapshot.
//
// # Description
//
// Implementations must return scores normalized to [0,1] and must resolve
// Get for every id they return from a search (no dangling hits). Backends:
// MemoryStore (local snapshot) and WeaviateStore (external vector DB).
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Store interface {
	// Search runs unfiltered nearest-neighbor search.
	Search(ctx context.Context, vector []float32, topK int) ([]SearchHit, error)

	// SearchFiltered runs nearest-neighbor search restricted to records
	// matching the filter.
	SearchFiltered(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchHit, error)

	// SearchKeyword runs the lexical/metadata strategy over the catalog.
	SearchKeyword(ctx context.Context, terms []string, topK int) ([]SearchHit, error)

	// Get resolves an id to its live record. Returns ErrNotFound (possibly
	// wrapped in a StoreError) when the id does not resolve.
	Get(ctx context.Context, id string) (*ProductRecord, error)

	// Count returns the number of live records.
	Count(ctx context.Context) (int, error)

	// Stats aggregates catalog-wide statistics for the status surfaces.
	Stats(ctx context.Context) (Stats, error)
}

// Stats summarizes the live catalog.
type Stats struct {
	Count     int                 `json:"count"`
	PriceMin  int                 `json:"price_min"`
	PriceMax  int                 `json:"price_max"`
	PriceAvg  int                 `json:"price_avg"`
	RatingAvg float64             `json:"rating_avg"`
	ByBrand   map[string]int      `json:"by_brand"`
	ByType    map[ProductType]int `json:"by_type"`
}

// ComputeStats aggregates stats over a record set.
func ComputeStats(records []*ProductRecord) Stats {
	s := Stats{
		ByBrand: make(map[string]int),
		ByType:  make(map[ProductType]int),
	}
	if len(records) == 0 {
		return s
	}
	s.Count = len(records)
	s.PriceMin = records[0].Price
	var priceSum, ratingSum float64
	for _, r := range records {
		if r.Price < s.PriceMin {
			s.PriceMin = r.Price
		}
		if r.Price > s.PriceMax {
			s.PriceMax = r.Price
		}
		priceSum += float64(r.Price)
		ratingSum += r.Rating
		s.ByBrand[r.Brand]++
		s.ByType[r.Type]++
	}
	s.PriceAvg = int(priceSum / float64(len(records)))
	s.RatingAvg = ratingSum / float64(len(records))
	return s
}

// TopBrands returns up to n brands by record count, descending, ties by
// name for determinism.
func (s Stats) TopBrands(n int) []string {
	type kv struct {
		brand string
		count int
	}
	items := make([]kv, 0, len(s.ByBrand))
	for b, c := range s.ByBrand {
		items = append(items, kv{b, c})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].count != items[j].count {
			return items[i].count > items[j].count
		}
		return items[i].brand < items[j].brand
	})
	if n > len(items) {
		n = len(items)
	}
	out := make([]string, 0, n)
	for _, it := range items[:n] {
		out = append(out, it.brand)
	}
	return out
}
