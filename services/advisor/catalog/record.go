// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog owns the product records and the stores that serve
// nearest-neighbor, keyword, and metadata-filtered queries over them.
//
// Records are immutable after ingestion. Stores never mutate a served
// record; catalog reloads swap a whole new snapshot atomically so in-flight
// readers keep a consistent view.
package catalog

import (
	"fmt"
	"strings"
)

// ProductType is the construction category of a sleep product.
type ProductType string

const (
	TypeSpring ProductType = "spring"
	TypeFoam   ProductType = "foam"
	TypeLatex  ProductType = "latex"
	TypeHybrid ProductType = "hybrid"
)

// ParseProductType normalizes free-form type labels, including the Korean
// catalog vocabulary, into the enum. Unknown labels are an error so bad
// catalog rows fail ingestion instead of polluting retrieval.
func ParseProductType(s string) (ProductType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spring", "스프링", "본넬", "포켓스프링", "포켓 스프링":
		return TypeSpring, nil
	case "foam", "폼", "메모리폼", "메모리 폼":
		return TypeFoam, nil
	case "latex", "라텍스", "천연라텍스", "천연 라텍스":
		return TypeLatex, nil
	case "hybrid", "하이브리드":
		return TypeHybrid, nil
	}
	return "", fmt.Errorf("unknown product type %q", s)
}

// Korean returns the catalog display label for the type.
func (t ProductType) Korean() string {
	switch t {
	case TypeSpring:
		return "스프링"
	case TypeFoam:
		return "메모리폼"
	case TypeLatex:
		return "라텍스"
	case TypeHybrid:
		return "하이브리드"
	}
	return string(t)
}

// Firmness bounds for the ordinal scale (1 = softest, 5 = firmest).
const (
	FirmnessMin = 1
	FirmnessMax = 5
)

// ProductRecord is one normalized catalog entry.
//
// # Description
//
// Records are created by the Loader at ingestion time and never mutated.
// Price is an integer in KRW. Firmness is the 1–5 ordinal scale. Embedding
// is the vector computed over SearchText by the configured embedder; its
// length must match the store's index dimension.
//
// # Thread Safety
//
// A record is safe to share between goroutines because nothing writes to
// it after ingestion.
type ProductRecord struct {
	ID                string      `json:"id" validate:"required"`
	Name              string      `json:"name" validate:"required"`
	Brand             string      `json:"brand" validate:"required"`
	Price             int         `json:"price" validate:"gte=0"`
	Type              ProductType `json:"type" validate:"required,oneof=spring foam latex hybrid"`
	Firmness          int         `json:"firmness" validate:"gte=1,lte=5"`
	Features          []string    `json:"features,omitempty"`
	HealthSuitability []string    `json:"health_suitability,omitempty"`
	Rating            float64     `json:"rating" validate:"gte=0,lte=5"`
	RepurchaseRate    float64     `json:"repurchase_rate" validate:"gte=0,lte=1"`
	ReviewSnippets    []string    `json:"review_snippets,omitempty"`

	// Description is the catalog's free-text blurb, folded into SearchText.
	Description string `json:"description,omitempty"`

	// SearchText is the labeled document the embedding was computed over.
	// Kept for the lexical strategy and for re-embedding on model change.
	SearchText string `json:"search_text,omitempty"`

	// Embedding is excluded from API payloads; it is served only through
	// vector search.
	Embedding []float32 `json:"-"`
}

// TopReview returns the first review snippet, or empty when none exist.
func (r *ProductRecord) TopReview() string {
	if len(r.ReviewSnippets) == 0 {
		return ""
	}
	return r.ReviewSnippets[0]
}

// HasFeature reports whether tag appears in Features (exact match after
// trimming).
func (r *ProductRecord) HasFeature(tag string) bool {
	return containsTag(r.Features, tag)
}

// SuitsHealth reports whether tag appears in HealthSuitability.
func (r *ProductRecord) SuitsHealth(tag string) bool {
	return containsTag(r.HealthSuitability, tag)
}

func containsTag(tags []string, tag string) bool {
	tag = strings.TrimSpace(tag)
	for _, t := range tags {
		if strings.TrimSpace(t) == tag {
			return true
		}
	}
	return false
}

// PriceManwon returns the price in 만원 units (10,000 KRW) for display and
// prompt building, rounding down.
func (r *ProductRecord) PriceManwon() int {
	return r.Price / 10000
}
