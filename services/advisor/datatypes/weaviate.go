// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from the Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if response is nil or parsing fails.
//
// # Limitations
//
//   - Type mismatches produce zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Product Class Response Types
// =============================================================================

// ProductQueryResponse represents the response from querying the Product class.
type ProductQueryResponse struct {
	Get struct {
		Product []ProductResult `json:"Product"`
	} `json:"Get"`
}

// ProductResult is a single product hit from a Get query. Certainty is set on
// nearVector queries; Score (a stringified float) is set on bm25 queries.
type ProductResult struct {
	ProductID         string   `json:"product_id"`
	Name              string   `json:"name"`
	Brand             string   `json:"brand"`
	ProductType       string   `json:"product_type"`
	Price             int      `json:"price"`
	Firmness          int      `json:"firmness"`
	Rating            float64  `json:"rating"`
	RepurchaseRate    float64  `json:"repurchase_rate"`
	Features          []string `json:"features"`
	HealthSuitability []string `json:"health_suitability"`
	ReviewSnippets    []string `json:"review_snippets"`
	SearchText        string   `json:"search_text"`
	Description       string   `json:"description"`
	Additional        struct {
		ID        string   `json:"id"`
		Certainty *float32 `json:"certainty"`
		Score     string   `json:"score"`
	} `json:"_additional"`
}

// ProductAggregateResponse represents Aggregate queries over the Product
// class, both plain (meta/price/rating) and grouped (groupedBy populated).
type ProductAggregateResponse struct {
	Aggregate struct {
		Product []ProductAggregateGroup `json:"Product"`
	} `json:"Aggregate"`
}

type ProductAggregateGroup struct {
	Meta struct {
		Count float64 `json:"count"`
	} `json:"meta"`
	Price *struct {
		Minimum float64 `json:"minimum"`
		Maximum float64 `json:"maximum"`
		Mean    float64 `json:"mean"`
	} `json:"price"`
	Rating *struct {
		Mean float64 `json:"mean"`
	} `json:"rating"`
	GroupedBy *struct {
		Value interface{} `json:"value"`
	} `json:"groupedBy"`
}

// GroupValue returns the grouped-by value as a string, or empty when the
// group key is absent or not textual.
func (g *ProductAggregateGroup) GroupValue() string {
	if g.GroupedBy == nil {
		return ""
	}
	s, _ := g.GroupedBy.Value.(string)
	return s
}

// ProductProperties is the property payload for creating a Product object.
type ProductProperties struct {
	ProductID         string   `json:"product_id"`
	Name              string   `json:"name"`
	Brand             string   `json:"brand"`
	ProductType       string   `json:"product_type"`
	Price             int      `json:"price"`
	Firmness          int      `json:"firmness"`
	Rating            float64  `json:"rating"`
	RepurchaseRate    float64  `json:"repurchase_rate"`
	Features          []string `json:"features"`
	HealthSuitability []string `json:"health_suitability"`
	ReviewSnippets    []string `json:"review_snippets"`
	SearchText        string   `json:"search_text"`
	Description       string   `json:"description"`
	IngestedAt        int64    `json:"ingested_at"`
}

// ToMap converts ProductProperties to the map format required by the
// Weaviate client's WithProperties method.
func (p *ProductProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"product_id":         p.ProductID,
		"name":               p.Name,
		"brand":              p.Brand,
		"product_type":       p.ProductType,
		"price":              p.Price,
		"firmness":           p.Firmness,
		"rating":             p.Rating,
		"repurchase_rate":    p.RepurchaseRate,
		"features":           p.Features,
		"health_suitability": p.HealthSuitability,
		"review_snippets":    p.ReviewSnippets,
		"search_text":        p.SearchText,
		"description":        p.Description,
		"ingested_at":        p.IngestedAt,
	}
}

// =============================================================================
// Product Schema
// =============================================================================

// GetProductSchema returns the class definition for catalog products.
// Vectorizer is "none" because embeddings are computed locally and supplied
// with each object.
func GetProductSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "Product",
		Description: "A sleep product from the advisor catalog.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "product_id",
				DataType:        []string{"text"},
				Description:     "Stable catalog identifier.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "name",
				DataType:     []string{"text"},
				Description:  "Display name.",
				Tokenization: "word",
			},
			{
				Name:            "brand",
				DataType:        []string{"text"},
				Description:     "Manufacturer brand.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "product_type",
				DataType:        []string{"text"},
				Description:     "Construction category: spring, foam, latex, hybrid.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "price",
				DataType:        []string{"int"},
				Description:     "Price in KRW.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "firmness",
				DataType:        []string{"int"},
				Description:     "Firmness on the 1-5 ordinal scale.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "rating",
				DataType:        []string{"number"},
				Description:     "Average review rating, 0-5.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "repurchase_rate",
				DataType:        []string{"number"},
				Description:     "Fraction of buyers who repurchased, 0-1.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "features",
				DataType:        []string{"text[]"},
				Description:     "Feature tags.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "health_suitability",
				DataType:        []string{"text[]"},
				Description:     "Canonical health tags this product suits.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:        "review_snippets",
				DataType:    []string{"text[]"},
				Description: "Short review excerpts for display and answers.",
			},
			{
				Name:         "search_text",
				DataType:     []string{"text"},
				Description:  "Labeled document the embedding was computed over.",
				Tokenization: "word",
			},
			{
				Name:         "description",
				DataType:     []string{"text"},
				Description:  "Long-form product description.",
				Tokenization: "word",
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Unix ms timestamp of ingestion.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureProductSchema creates the Product class if it does not exist yet.
func EnsureProductSchema(ctx context.Context, client *weaviate.Client) error {
	class := GetProductSchema()
	slog.Info("Checking schema", "class", class.Class)

	// ClassGetter errors when the class is missing; that is the create path.
	_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
	if err == nil {
		slog.Info("Schema already exists", "class", class.Class)
		return nil
	}

	slog.Info("Schema not found, creating it...", "class", class.Class)
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create schema for class %s: %w", class.Class, err)
	}
	slog.Info("Successfully created schema", "class", class.Class)
	return nil
}
