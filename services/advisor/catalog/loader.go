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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
	"github.com/AleutianAI/Somnus/services/advisor/embedding"
)

const (
	// embedBatchSize is how many records one embedding request carries.
	embedBatchSize = 32
	// embedConcurrency bounds parallel embedding requests during ingestion.
	embedConcurrency = 4
	// maxIDLength caps generated product IDs; longer slugs get a hash suffix.
	maxIDLength = 48
	// snippetChunkSize is the target size for review snippets, in characters.
	snippetChunkSize = 160
	// maxSnippetsPerProduct bounds how many review snippets a record keeps.
	maxSnippetsPerProduct = 6
)

// rawProduct is the wire shape of one catalog row. Price is RawMessage
// because source files carry it as a bare number, "1,950,000원", or "195만원".
type rawProduct struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Brand             string          `json:"brand"`
	Type              string          `json:"type"`
	Price             json.RawMessage `json:"price"`
	Firmness          int             `json:"firmness"`
	Rating            float64         `json:"rating"`
	RepurchaseRate    float64         `json:"repurchase_rate"`
	Features          []string        `json:"features"`
	HealthSuitability []string        `json:"health_suitability"`
	Reviews           []string        `json:"reviews"`
	Description       string          `json:"description"`
}

// catalogFile accepts either a top-level array of products or an object
// wrapping one under "products".
type catalogFile struct {
	Products []rawProduct `json:"products"`
}

// Loader normalizes raw catalog rows into validated, embedded ProductRecords.
//
// # Description
//
// Loader owns the full ingestion path: parse, normalize (IDs, prices, tags),
// validate, chunk long review text into snippets, and embed every record's
// search document in bounded-concurrency batches. The output is ready to hand
// to MemoryStore.Replace or WeaviateStore.Ingest.
//
// # Inputs
//
//   - JSON catalog files (array form or {"products": [...]})
//   - an embedding.Embedder for the search documents
//
// # Outputs
//
//   - []*ProductRecord with Embedding populated, IDs unique
//
// # Limitations
//
//   - Rows that fail validation are dropped with a warning, not fatal; an
//     entirely invalid file returns an error.
type Loader struct {
	embedder embedding.Embedder
	validate *validator.Validate
	splitter textsplitter.TextSplitter
	logger   *slog.Logger
}

// NewLoader builds a Loader. A nil logger falls back to slog.Default.
func NewLoader(embedder embedding.Embedder, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(snippetChunkSize),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", "다.", "요.", " "}),
	)
	return &Loader{
		embedder: embedder,
		validate: validator.New(),
		splitter: splitter,
		logger:   logger.With(slog.String("component", "catalog_loader")),
	}
}

// LoadFile reads, normalizes, and embeds one catalog file.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]*ProductRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &StoreError{Op: "load", Message: fmt.Sprintf("read catalog file %s", path), Err: err}
	}
	records, err := l.Normalize(data)
	if err != nil {
		return nil, err
	}
	if err := l.EmbedRecords(ctx, records); err != nil {
		return nil, err
	}
	l.logger.Info("catalog file loaded",
		slog.String("path", path),
		slog.Int("products", len(records)))
	return records, nil
}

// Normalize parses raw JSON and returns validated records without embeddings.
// Rows that cannot be normalized are logged and skipped; zero usable rows is
// an error.
func (l *Loader) Normalize(data []byte) ([]*ProductRecord, error) {
	rows, err := parseRows(data)
	if err != nil {
		return nil, &StoreError{Op: "load", Message: "parse catalog JSON", Err: err}
	}
	if len(rows) == 0 {
		return nil, &StoreError{Op: "load", Message: "catalog contains no products"}
	}

	seen := make(map[string]int, len(rows))
	records := make([]*ProductRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := l.normalizeRow(row)
		if err != nil {
			l.logger.Warn("skipping catalog row",
				slog.Int("row", i),
				slog.String("name", row.Name),
				slog.String("error", err.Error()))
			continue
		}
		// Duplicate IDs get a numeric suffix so later rows stay addressable.
		if n := seen[rec.ID]; n > 0 {
			seen[rec.ID] = n + 1
			rec.ID = fmt.Sprintf("%s_%d", rec.ID, n+1)
		}
		seen[rec.ID]++
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, &StoreError{Op: "load", Message: "no catalog rows survived validation"}
	}
	return records, nil
}

// EmbedRecords fills Embedding for every record, batching requests and
// running at most embedConcurrency batches in flight.
func (l *Loader) EmbedRecords(ctx context.Context, records []*ProductRecord) error {
	if l.embedder == nil {
		return &StoreError{Op: "embed", Message: "no embedder configured"}
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(records); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, rec := range batch {
				texts[i] = rec.SearchText
			}
			vectors, err := l.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return &StoreError{Op: "embed", Message: "embed catalog batch", Retryable: true, Err: err}
			}
			if len(vectors) != len(batch) {
				return &StoreError{Op: "embed", Message: fmt.Sprintf("embedder returned %d vectors for %d texts", len(vectors), len(batch))}
			}
			for i, rec := range batch {
				rec.Embedding = vectors[i]
			}
			return nil
		})
	}
	return g.Wait()
}

func parseRows(data []byte) ([]rawProduct, error) {
	trimmed := strings.TrimLeftFunc(string(data), unicode.IsSpace)
	if strings.HasPrefix(trimmed, "[") {
		var rows []rawProduct
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Products, nil
}

func (l *Loader) normalizeRow(row rawProduct) (*ProductRecord, error) {
	price, err := parsePrice(row.Price)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	ptype, err := ParseProductType(row.Type)
	if err != nil {
		return nil, err
	}

	rec := &ProductRecord{
		ID:                row.ID,
		Name:              strings.TrimSpace(row.Name),
		Brand:             strings.TrimSpace(row.Brand),
		Type:              ptype,
		Price:             price,
		Firmness:          row.Firmness,
		Rating:            row.Rating,
		RepurchaseRate:    row.RepurchaseRate,
		Features:          cleanTags(row.Features),
		HealthSuitability: cleanTags(row.HealthSuitability),
		Description:       strings.TrimSpace(row.Description),
	}
	if rec.ID == "" {
		rec.ID = makeProductID(rec.Brand, rec.Name)
	}
	rec.ReviewSnippets = l.snippets(row.Reviews)
	rec.SearchText = buildSearchText(rec)

	if err := l.validate.Struct(rec); err != nil {
		return nil, fmt.Errorf("validate %s: %w", rec.ID, err)
	}
	return rec, nil
}

// snippets chunks raw review text into display-sized snippets, preserving
// review order, capped at maxSnippetsPerProduct.
func (l *Loader) snippets(reviews []string) []string {
	var out []string
	for _, review := range reviews {
		review = strings.TrimSpace(review)
		if review == "" {
			continue
		}
		if len(review) <= snippetChunkSize {
			out = append(out, review)
		} else {
			chunks, err := l.splitter.SplitText(review)
			if err != nil || len(chunks) == 0 {
				out = append(out, review)
			} else {
				out = append(out, chunks...)
			}
		}
		if len(out) >= maxSnippetsPerProduct {
			return out[:maxSnippetsPerProduct]
		}
	}
	return out
}

// priceManwonPattern matches prices quoted in 만원 units (1 만원 = 10,000 KRW).
var priceManwonPattern = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*만\s*원?$`)

// parsePrice normalizes a price field to integer KRW. Accepted shapes:
// bare numbers (KRW, or 만원 units when small), "1,950,000원", "195만원".
func parsePrice(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing")
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return normalizeNumericPrice(num)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, fmt.Errorf("unsupported price value %s", string(raw))
	}
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if text == "" {
		return 0, fmt.Errorf("empty")
	}

	if m := priceManwonPattern.FindStringSubmatch(text); m != nil {
		manwon, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", text, err)
		}
		return int(manwon * 10_000), nil
	}

	digits := strings.TrimSuffix(text, "원")
	num, err := strconv.ParseFloat(strings.TrimSpace(digits), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", text, err)
	}
	// An explicit 원 suffix means the number is already KRW.
	if strings.HasSuffix(text, "원") {
		if num <= 0 {
			return 0, fmt.Errorf("non-positive price %q", text)
		}
		return int(num), nil
	}
	return normalizeNumericPrice(num)
}

// normalizeNumericPrice treats small bare numbers as 만원 units. Catalog rows
// from spreadsheet exports quote "195" meaning 1,950,000 KRW.
func normalizeNumericPrice(num float64) (int, error) {
	if num <= 0 {
		return 0, fmt.Errorf("non-positive price %v", num)
	}
	if num < 10_000 {
		return int(num * 10_000), nil
	}
	return int(num), nil
}

var idSanitizePattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// makeProductID derives a stable slug ID from brand and name. Overlong slugs
// keep a readable prefix plus a short hash so IDs stay unique and bounded.
func makeProductID(brand, name string) string {
	slug := idSanitizePattern.ReplaceAllString(strings.ToLower(brand+" "+name), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "unnamed"
	}
	id := "product_" + slug
	runes := []rune(id)
	if len(runes) <= maxIDLength {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return string(runes[:maxIDLength-9]) + "_" + hex.EncodeToString(sum[:4])
}

// cleanTags trims, canonicalizes, and dedupes. Feature and health tags both
// normalize to the canonical vocabulary so constraint matching against
// extracted tags is exact; unknown tags stay as lowercased text.
func cleanTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = datatypes.NormalizeTag(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// buildSearchText composes the labeled Korean document every retrieval
// strategy sees. Keeping the label format fixed keeps embeddings comparable
// across reloads.
func buildSearchText(rec *ProductRecord) string {
	var b strings.Builder
	b.WriteString("매트리스 이름: ")
	b.WriteString(rec.Name)
	b.WriteString(" 브랜드: ")
	b.WriteString(rec.Brand)
	b.WriteString(" 타입: ")
	b.WriteString(rec.Type.Korean())
	fmt.Fprintf(&b, " 가격: %d만원", rec.PriceManwon())
	if len(rec.Features) > 0 {
		b.WriteString(" 특징: ")
		b.WriteString(joinTagsKorean(rec.Features))
	}
	if len(rec.HealthSuitability) > 0 {
		b.WriteString(" 추천 대상: ")
		b.WriteString(joinTagsKorean(rec.HealthSuitability))
	}
	if rec.Description != "" {
		b.WriteString(" 설명: ")
		b.WriteString(rec.Description)
	}
	return b.String()
}

// joinTagsKorean renders canonical tags back to Korean search terms so the
// embedding document stays in the catalog's language.
func joinTagsKorean(tags []string) string {
	terms := make([]string, len(tags))
	for i, tag := range tags {
		terms[i] = datatypes.KoreanForTag(tag)
	}
	return strings.Join(terms, ", ")
}
