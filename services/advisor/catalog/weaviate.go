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
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/Somnus/pkg/validation"
	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
)

const productClassName = "Product"

// WeaviateConfig configures the remote vector store backend.
type WeaviateConfig struct {
	// URL is the full base URL, e.g. http://localhost:8080.
	URL string
	// MinCertainty drops weak vector hits at the source. Zero keeps all.
	MinCertainty float32
}

// DefaultWeaviateConfig loads settings from the environment.
func DefaultWeaviateConfig() WeaviateConfig {
	cfg := WeaviateConfig{
		URL:          "http://localhost:8080",
		MinCertainty: 0,
	}
	if v := strings.Trim(os.Getenv("SOMNUS_WEAVIATE_URL"), "\"' "); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("SOMNUS_WEAVIATE_MIN_CERTAINTY"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil && f >= 0 && f <= 1 {
			cfg.MinCertainty = float32(f)
		} else {
			slog.Warn("Invalid SOMNUS_WEAVIATE_MIN_CERTAINTY, using default", "value", v)
		}
	}
	return cfg
}

// WeaviateStore serves catalog queries from a Weaviate instance.
//
// # Description
//
// The store speaks GraphQL to a provisioned Product class. Vector hits are
// scored by certainty, which is already on the [0,1] scale MemoryStore
// produces, so the two backends are interchangeable behind the Store
// interface. Keyword hits come from bm25 and are normalized by the best
// score in the result set.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying client is.
type WeaviateStore struct {
	client *weaviate.Client
	config WeaviateConfig
	logger *slog.Logger
}

var _ Store = (*WeaviateStore)(nil)

// NewWeaviateStore parses the configured URL and builds the client. It does
// not touch the network; call EnsureSchema or any query for that.
func NewWeaviateStore(cfg WeaviateConfig, logger *slog.Logger) (*WeaviateStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &StoreError{Op: "connect", Message: fmt.Sprintf("invalid weaviate URL %q", cfg.URL), Err: err}
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, &StoreError{Op: "connect", Message: "create weaviate client", Err: err}
	}
	return &WeaviateStore{
		client: client,
		config: cfg,
		logger: logger.With(slog.String("component", "weaviate_store")),
	}, nil
}

// EnsureSchema creates the Product class if the instance does not have it.
func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	if err := datatypes.EnsureProductSchema(ctx, s.client); err != nil {
		return &StoreError{Op: "connect", Message: "ensure product schema", Retryable: true, Err: err}
	}
	return nil
}

// Search runs an unfiltered nearest-neighbor query.
func (s *WeaviateStore) Search(ctx context.Context, vector []float32, topK int) ([]SearchHit, error) {
	return s.SearchFiltered(ctx, vector, topK, Filter{})
}

// SearchFiltered runs a nearest-neighbor query constrained by the filter.
func (s *WeaviateStore) SearchFiltered(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchHit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)
	if s.config.MinCertainty > 0 {
		nearVector = nearVector.WithCertainty(s.config.MinCertainty)
	}

	// Certainty is requested instead of distance because it is always [0,1]
	// regardless of the distance metric.
	fields := []graphql.Field{
		{Name: "product_id"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	builder := s.client.GraphQL().Get().
		WithClassName(productClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK)
	if where := buildWhere(filter); where != nil {
		builder = builder.WithWhere(where)
	}

	result, err := builder.Do(ctx)
	if err != nil {
		return nil, &StoreError{Op: "search", Message: "weaviate vector search", Retryable: true, Err: err}
	}
	if len(result.Errors) > 0 {
		return nil, &StoreError{Op: "search", Message: fmt.Sprintf("weaviate vector search: %s", result.Errors[0].Message)}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ProductQueryResponse](result)
	if err != nil {
		return nil, &StoreError{Op: "search", Message: "parse vector search results", Err: err}
	}

	hits := make([]SearchHit, 0, len(parsed.Get.Product))
	for _, res := range parsed.Get.Product {
		if res.ProductID == "" || res.Additional.Certainty == nil {
			continue
		}
		hits = append(hits, SearchHit{ID: res.ProductID, Score: float64(*res.Additional.Certainty)})
	}
	sortHits(hits)
	return hits, nil
}

// SearchKeyword runs a bm25 query over the lexical fields. Scores are
// normalized by the top score so the best hit is 1.0.
func (s *WeaviateStore) SearchKeyword(ctx context.Context, terms []string, topK int) ([]SearchHit, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	bm25 := s.client.GraphQL().Bm25ArgBuilder().
		WithQuery(strings.Join(terms, " ")).
		WithProperties("search_text", "name", "brand")

	fields := []graphql.Field{
		{Name: "product_id"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "score"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(productClassName).
		WithFields(fields...).
		WithBM25(bm25).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, &StoreError{Op: "search", Message: "weaviate bm25 search", Retryable: true, Err: err}
	}
	if len(result.Errors) > 0 {
		return nil, &StoreError{Op: "search", Message: fmt.Sprintf("weaviate bm25 search: %s", result.Errors[0].Message)}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ProductQueryResponse](result)
	if err != nil {
		return nil, &StoreError{Op: "search", Message: "parse bm25 results", Err: err}
	}

	type rawHit struct {
		id    string
		score float64
	}
	raw := make([]rawHit, 0, len(parsed.Get.Product))
	var maxScore float64
	for _, res := range parsed.Get.Product {
		if res.ProductID == "" {
			continue
		}
		// bm25 score arrives as a stringified float in _additional.
		score, err := strconv.ParseFloat(res.Additional.Score, 64)
		if err != nil || score <= 0 {
			continue
		}
		if score > maxScore {
			maxScore = score
		}
		raw = append(raw, rawHit{id: res.ProductID, score: score})
	}
	if maxScore <= 0 {
		return nil, nil
	}

	hits := make([]SearchHit, 0, len(raw))
	for _, r := range raw {
		hits = append(hits, SearchHit{ID: r.id, Score: r.score / maxScore})
	}
	sortHits(hits)
	return hits, nil
}

// Get fetches one product by catalog ID.
func (s *WeaviateStore) Get(ctx context.Context, id string) (*ProductRecord, error) {
	if err := validation.ValidateProductID(id); err != nil {
		return nil, &StoreError{Op: "get", Message: err.Error()}
	}
	where := filters.Where().
		WithPath([]string{"product_id"}).
		WithOperator(filters.Equal).
		WithValueText(id)

	result, err := s.client.GraphQL().Get().
		WithClassName(productClassName).
		WithFields(recordFields()...).
		WithWhere(where).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, &StoreError{Op: "get", Message: fmt.Sprintf("weaviate get %s", id), Retryable: true, Err: err}
	}
	if len(result.Errors) > 0 {
		return nil, &StoreError{Op: "get", Message: fmt.Sprintf("weaviate get %s: %s", id, result.Errors[0].Message)}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ProductQueryResponse](result)
	if err != nil {
		return nil, &StoreError{Op: "get", Message: "parse get results", Err: err}
	}
	if len(parsed.Get.Product) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return toRecord(parsed.Get.Product[0])
}

// Count returns the number of products in the class.
func (s *WeaviateStore) Count(ctx context.Context) (int, error) {
	agg, err := s.client.GraphQL().Aggregate().
		WithClassName(productClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, &StoreError{Op: "stats", Message: "weaviate count", Retryable: true, Err: err}
	}
	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ProductAggregateResponse](agg)
	if err != nil {
		return 0, &StoreError{Op: "stats", Message: "parse count results", Err: err}
	}
	if len(parsed.Aggregate.Product) == 0 {
		return 0, nil
	}
	return int(parsed.Aggregate.Product[0].Meta.Count), nil
}

// Stats aggregates catalog-wide figures: count, price range, mean rating,
// and per-brand / per-type counts.
func (s *WeaviateStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByBrand: make(map[string]int),
		ByType:  make(map[ProductType]int),
	}

	agg, err := s.client.GraphQL().Aggregate().
		WithClassName(productClassName).
		WithFields(
			graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}},
			graphql.Field{Name: "price", Fields: []graphql.Field{
				{Name: "minimum"}, {Name: "maximum"}, {Name: "mean"},
			}},
			graphql.Field{Name: "rating", Fields: []graphql.Field{{Name: "mean"}}},
		).
		Do(ctx)
	if err != nil {
		return stats, &StoreError{Op: "stats", Message: "weaviate aggregate", Retryable: true, Err: err}
	}
	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ProductAggregateResponse](agg)
	if err != nil {
		return stats, &StoreError{Op: "stats", Message: "parse aggregate results", Err: err}
	}
	if len(parsed.Aggregate.Product) > 0 {
		group := parsed.Aggregate.Product[0]
		stats.Count = int(group.Meta.Count)
		if group.Price != nil {
			stats.PriceMin = int(group.Price.Minimum)
			stats.PriceMax = int(group.Price.Maximum)
			stats.PriceAvg = int(group.Price.Mean)
		}
		if group.Rating != nil {
			stats.RatingAvg = group.Rating.Mean
		}
	}

	brandGroups, err := s.aggregateGroups(ctx, "brand")
	if err != nil {
		return stats, err
	}
	for _, g := range brandGroups {
		if name := g.GroupValue(); name != "" {
			stats.ByBrand[name] = int(g.Meta.Count)
		}
	}

	typeGroups, err := s.aggregateGroups(ctx, "product_type")
	if err != nil {
		return stats, err
	}
	for _, g := range typeGroups {
		if name := g.GroupValue(); name != "" {
			stats.ByType[ProductType(name)] = int(g.Meta.Count)
		}
	}
	return stats, nil
}

func (s *WeaviateStore) aggregateGroups(ctx context.Context, property string) ([]datatypes.ProductAggregateGroup, error) {
	agg, err := s.client.GraphQL().Aggregate().
		WithClassName(productClassName).
		WithGroupBy(property).
		WithFields(
			graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}},
			graphql.Field{Name: "groupedBy", Fields: []graphql.Field{{Name: "value"}}},
		).
		Do(ctx)
	if err != nil {
		return nil, &StoreError{Op: "stats", Message: fmt.Sprintf("weaviate aggregate by %s", property), Retryable: true, Err: err}
	}
	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ProductAggregateResponse](agg)
	if err != nil {
		return nil, &StoreError{Op: "stats", Message: fmt.Sprintf("parse aggregate by %s", property), Err: err}
	}
	return parsed.Aggregate.Product, nil
}

// Ingest batch-imports embedded records. Object IDs derive from the catalog
// ID hash so re-ingesting a product overwrites instead of duplicating.
// Returns how many objects the batch accepted.
func (s *WeaviateStore) Ingest(ctx context.Context, records []*ProductRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UnixMilli()
	objects := make([]*models.Object, len(records))
	for i, rec := range records {
		if len(rec.Embedding) == 0 {
			return 0, &StoreError{Op: "ingest", Message: fmt.Sprintf("record %s has no embedding", rec.ID)}
		}
		hash := sha256.Sum256([]byte(rec.ID))
		objectUUID, _ := uuid.FromBytes(hash[:16])

		props := datatypes.ProductProperties{
			ProductID:         rec.ID,
			Name:              rec.Name,
			Brand:             rec.Brand,
			ProductType:       string(rec.Type),
			Price:             rec.Price,
			Firmness:          rec.Firmness,
			Rating:            rec.Rating,
			RepurchaseRate:    rec.RepurchaseRate,
			Features:          rec.Features,
			HealthSuitability: rec.HealthSuitability,
			ReviewSnippets:    rec.ReviewSnippets,
			SearchText:        rec.SearchText,
			Description:       rec.Description,
			IngestedAt:        now,
		}
		objects[i] = &models.Object{
			Class:      productClassName,
			ID:         strfmt.UUID(objectUUID.String()),
			Vector:     rec.Embedding,
			Properties: props.ToMap(),
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, &StoreError{Op: "ingest", Message: "weaviate batch import", Retryable: true, Err: err}
	}

	created := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			created++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, errItem := range item.Result.Errors.Error {
				s.logger.Warn("Error in batch item", "error", errItem.Message)
			}
		} else {
			s.logger.Warn("Failed batch item, no error provided")
		}
	}
	if created < len(records) {
		s.logger.Warn("Batch import partially failed",
			"submitted", len(records), "created", created)
	}
	if created == 0 {
		return 0, &StoreError{Op: "ingest", Message: "weaviate batch import accepted no objects"}
	}
	s.logger.Info("Catalog batch imported", "products", created)
	return created, nil
}

// recordFields lists every property needed to rebuild a ProductRecord.
func recordFields() []graphql.Field {
	return []graphql.Field{
		{Name: "product_id"},
		{Name: "name"},
		{Name: "brand"},
		{Name: "product_type"},
		{Name: "price"},
		{Name: "firmness"},
		{Name: "rating"},
		{Name: "repurchase_rate"},
		{Name: "features"},
		{Name: "health_suitability"},
		{Name: "review_snippets"},
		{Name: "search_text"},
		{Name: "description"},
	}
}

func toRecord(res datatypes.ProductResult) (*ProductRecord, error) {
	ptype, err := ParseProductType(res.ProductType)
	if err != nil {
		return nil, &StoreError{Op: "get", Message: fmt.Sprintf("stored product %s: %v", res.ProductID, err)}
	}
	return &ProductRecord{
		ID:                res.ProductID,
		Name:              res.Name,
		Brand:             res.Brand,
		Type:              ptype,
		Price:             res.Price,
		Firmness:          res.Firmness,
		Rating:            res.Rating,
		RepurchaseRate:    res.RepurchaseRate,
		Features:          res.Features,
		HealthSuitability: res.HealthSuitability,
		ReviewSnippets:    res.ReviewSnippets,
		SearchText:        res.SearchText,
		Description:       res.Description,
	}, nil
}

// buildWhere translates a Filter into a where clause. Nil means no filter.
func buildWhere(filter Filter) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder

	if filter.MaxPrice > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"price"}).
			WithOperator(filters.LessThanEqual).
			WithValueInt(int64(filter.MaxPrice)))
	}
	if len(filter.Types) > 0 {
		values := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			values[i] = string(t)
		}
		operands = append(operands, filters.Where().
			WithPath([]string{"product_type"}).
			WithOperator(filters.ContainsAny).
			WithValueText(values...))
	}
	if len(filter.Brands) > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"brand"}).
			WithOperator(filters.ContainsAny).
			WithValueText(filter.Brands...))
	}
	if len(filter.FeaturesAny) > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"features"}).
			WithOperator(filters.ContainsAny).
			WithValueText(filter.FeaturesAny...))
	}
	if len(filter.HealthAny) > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"health_suitability"}).
			WithOperator(filters.ContainsAny).
			WithValueText(filter.HealthAny...))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	}
	return filters.Where().
		WithOperator(filters.And).
		WithOperands(operands)
}
