// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Somnus/services/advisor/agent"
	"github.com/AleutianAI/Somnus/services/advisor/catalog"
	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
	"github.com/AleutianAI/Somnus/services/advisor/llm"
	"github.com/AleutianAI/Somnus/services/advisor/observability"
	"github.com/AleutianAI/Somnus/services/advisor/relevance"
	"github.com/AleutianAI/Somnus/services/advisor/retrieval"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// passGate admits every query.
type passGate struct{}

func (passGate) Check(_ context.Context, _ string) relevance.Decision {
	return relevance.Decision{Verdict: relevance.VerdictInDomain, Method: relevance.MethodAllowList}
}

// blockGate redirects every query as weather chatter.
type blockGate struct{}

func (blockGate) Check(_ context.Context, _ string) relevance.Decision {
	return relevance.Decision{
		Verdict:  relevance.VerdictOutOfDomain,
		Method:   relevance.MethodBlockList,
		Category: relevance.CategoryWeather,
		Redirect: "저는 수면 제품 전문 상담사입니다. 매트리스나 침구 관련 질문을 해주세요.",
	}
}

// stubRetriever serves a fixed candidate set.
type stubRetriever struct {
	candidates []retrieval.RankedCandidate
	err        error
}

func (s stubRetriever) Retrieve(_ context.Context, _ datatypes.Query, _ int) ([]retrieval.RankedCandidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]retrieval.RankedCandidate, len(s.candidates))
	copy(out, s.candidates)
	return out, nil
}

func confidentGenerate(_ context.Context, _ string, _ int) (string, error) {
	return "조건에 맞는 제품을 추천드립니다. [CONFIDENT]", nil
}

func testRecord(id string, price int) *catalog.ProductRecord {
	return &catalog.ProductRecord{
		ID:        id,
		Name:      id,
		Brand:     "테스트",
		Price:     price,
		Type:      catalog.TypeFoam,
		Firmness:  3,
		Rating:    4.3,
		Embedding: []float32{0.1, 0.2, 0.3},
	}
}

func testCandidate(id string, price int, score float64) retrieval.RankedCandidate {
	return retrieval.RankedCandidate{
		ProductID: id,
		Product:   testRecord(id, price),
		Score:     score,
		Strategy:  datatypes.StrategyRaw,
	}
}

func newTestLoop(t *testing.T, gate agent.DomainChecker, retr agent.Retriever, gen llm.GenerateFunc) *agent.Loop {
	t.Helper()
	loop, err := agent.NewLoop(agent.Deps{
		Gate:      gate,
		Retriever: retr,
		Generate:  gen,
	}, agent.Config{
		MaxRounds:      3,
		RetrieveTopK:   8,
		ShowTopK:       3,
		GenMaxTokens:   500,
		GenTimeoutMs:   2000,
		RetryBackoffMs: 1,
	}, slog.Default())
	require.NoError(t, err)
	return loop
}

func newTestMetrics() *observability.AdvisorMetrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

// createTestRouter creates a Gin router with the specified handler for testing.
func createTestRouter(method, path string, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	switch method {
	case "POST":
		router.POST(path, handler)
	case "GET":
		router.GET(path, handler)
	}
	return router
}

// performRequest executes an HTTP request against the test router.
func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck_ReturnsOK(t *testing.T) {
	router := createTestRouter("GET", "/healthz", HealthCheck)

	w := performRequest(router, "GET", "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

// =============================================================================
// HandleAsk Tests
// =============================================================================

func TestHandleAsk_Success(t *testing.T) {
	retr := stubRetriever{candidates: []retrieval.RankedCandidate{
		testCandidate("somnus-a", 550000, 0.92),
		testCandidate("somnus-b", 780000, 0.81),
	}}
	loop := newTestLoop(t, passGate{}, retr, confidentGenerate)
	metrics := newTestMetrics()

	router := createTestRouter("POST", "/v1/ask", HandleAsk(loop, metrics))

	w := performRequest(router, "POST", "/v1/ask", AskRequest{Query: "매트리스 추천해주세요"})

	require.Equal(t, http.StatusOK, w.Code)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "조건에 맞는 제품을 추천드립니다.", resp.Answer)
	assert.Equal(t, 1, resp.Rounds)
	assert.False(t, resp.Redirected)
	assert.InDelta(t, 0.865, resp.AvgSimilarity, 1e-9)
	require.Len(t, resp.Products, 2)
	assert.Equal(t, "somnus-a", resp.Products[0].ID)
	assert.Equal(t, 55, resp.Products[0].PriceManwon)
	assert.Equal(t, "메모리폼", resp.Products[0].Type)

	answered := testutil.ToFloat64(metrics.TurnsTotal.WithLabelValues("http", "answered"))
	assert.Equal(t, float64(1), answered)
}

func TestHandleAsk_EmptyQuery(t *testing.T) {
	loop := newTestLoop(t, passGate{}, stubRetriever{}, confidentGenerate)

	router := createTestRouter("POST", "/v1/ask", HandleAsk(loop, newTestMetrics()))

	w := performRequest(router, "POST", "/v1/ask", AskRequest{Query: "   "})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no query provided")
}

func TestHandleAsk_InvalidBody(t *testing.T) {
	loop := newTestLoop(t, passGate{}, stubRetriever{}, confidentGenerate)

	router := createTestRouter("POST", "/v1/ask", HandleAsk(loop, newTestMetrics()))

	req, _ := http.NewRequest("POST", "/v1/ask", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestHandleAsk_Redirected(t *testing.T) {
	loop := newTestLoop(t, blockGate{}, stubRetriever{}, confidentGenerate)
	metrics := newTestMetrics()

	router := createTestRouter("POST", "/v1/ask", HandleAsk(loop, metrics))

	w := performRequest(router, "POST", "/v1/ask", AskRequest{Query: "오늘 날씨 어때?"})

	require.Equal(t, http.StatusOK, w.Code)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Redirected)
	assert.Equal(t, 0, resp.Rounds)
	assert.Contains(t, resp.Answer, "수면 제품 전문 상담사")
	assert.Empty(t, resp.Products)

	redirected := testutil.ToFloat64(metrics.TurnsTotal.WithLabelValues("http", "redirected"))
	assert.Equal(t, float64(1), redirected)
	weather := testutil.ToFloat64(metrics.RedirectsTotal.WithLabelValues("weather"))
	assert.Equal(t, float64(1), weather)
}

func TestHandleAsk_NoMatch(t *testing.T) {
	// Catalog only has an expensive model; the query budget excludes it.
	retr := stubRetriever{candidates: []retrieval.RankedCandidate{
		testCandidate("somnus-premium", 1900000, 0.88),
	}}
	loop := newTestLoop(t, passGate{}, retr, confidentGenerate)
	metrics := newTestMetrics()

	router := createTestRouter("POST", "/v1/ask", HandleAsk(loop, metrics))

	w := performRequest(router, "POST", "/v1/ask", AskRequest{Query: "30만원 이하 매트리스 추천해주세요"})

	require.Equal(t, http.StatusOK, w.Code)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Answer, "죄송합니다")
	assert.Empty(t, resp.Products)

	noMatch := testutil.ToFloat64(metrics.TurnsTotal.WithLabelValues("http", "no_match"))
	assert.Equal(t, float64(1), noMatch)
}

func TestHandleAsk_RetrievalFailure(t *testing.T) {
	retr := stubRetriever{err: errors.New("store offline")}
	loop := newTestLoop(t, passGate{}, retr, confidentGenerate)
	metrics := newTestMetrics()

	router := createTestRouter("POST", "/v1/ask", HandleAsk(loop, metrics))

	w := performRequest(router, "POST", "/v1/ask", AskRequest{Query: "매트리스 추천해주세요"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	errored := testutil.ToFloat64(metrics.TurnsTotal.WithLabelValues("http", "error"))
	assert.Equal(t, float64(1), errored)
}

// =============================================================================
// HandleGetProduct Tests
// =============================================================================

func TestHandleGetProduct_Found(t *testing.T) {
	store, err := catalog.NewMemoryStore([]*catalog.ProductRecord{
		testRecord("somnus-a", 550000),
	}, slog.Default())
	require.NoError(t, err)

	router := createTestRouter("GET", "/v1/products/:id", HandleGetProduct(store))

	w := performRequest(router, "GET", "/v1/products/somnus-a", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var record catalog.ProductRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, "somnus-a", record.ID)
	assert.Equal(t, 550000, record.Price)
	// Embeddings never leave the service
	assert.NotContains(t, w.Body.String(), "embedding")
}

func TestHandleGetProduct_NotFound(t *testing.T) {
	store, err := catalog.NewMemoryStore([]*catalog.ProductRecord{
		testRecord("somnus-a", 550000),
	}, slog.Default())
	require.NoError(t, err)

	router := createTestRouter("GET", "/v1/products/:id", HandleGetProduct(store))

	w := performRequest(router, "GET", "/v1/products/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "product not found")
}

func TestHandleGetProduct_InvalidID(t *testing.T) {
	store, err := catalog.NewMemoryStore([]*catalog.ProductRecord{
		testRecord("somnus-a", 550000),
	}, slog.Default())
	require.NoError(t, err)

	router := createTestRouter("GET", "/v1/products/:id", HandleGetProduct(store))

	// Injection-shaped IDs never reach the store.
	w := performRequest(router, "GET", "/v1/products/"+url.PathEscape(`a" OR path:["brand"]`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid product id")
}

// =============================================================================
// HandleCatalogStats Tests
// =============================================================================

func TestHandleCatalogStats(t *testing.T) {
	store, err := catalog.NewMemoryStore([]*catalog.ProductRecord{
		testRecord("somnus-a", 400000),
		testRecord("somnus-b", 800000),
	}, slog.Default())
	require.NoError(t, err)
	metrics := newTestMetrics()

	router := createTestRouter("GET", "/v1/catalog/stats", HandleCatalogStats(store, metrics))

	w := performRequest(router, "GET", "/v1/catalog/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var stats catalog.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 400000, stats.PriceMin)
	assert.Equal(t, 800000, stats.PriceMax)

	gauge := testutil.ToFloat64(metrics.CatalogProducts)
	assert.Equal(t, float64(2), gauge)
}

// =============================================================================
// Outcome Classification Tests
// =============================================================================

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		name   string
		result *agent.Result
		want   observability.Outcome
	}{
		{
			name:   "redirected",
			result: &agent.Result{Redirected: true},
			want:   observability.OutcomeRedirected,
		},
		{
			name: "degraded",
			result: &agent.Result{
				Candidates:   []retrieval.RankedCandidate{testCandidate("a", 500000, 0.8)},
				Enhancements: []string{"degraded-generation", "hybrid-retrieval"},
			},
			want: observability.OutcomeDegraded,
		},
		{
			name:   "no match",
			result: &agent.Result{Answer: "죄송합니다."},
			want:   observability.OutcomeNoMatch,
		},
		{
			name: "answered",
			result: &agent.Result{
				Candidates: []retrieval.RankedCandidate{testCandidate("a", 500000, 0.8)},
			},
			want: observability.OutcomeAnswered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outcomeOf(tt.result))
		})
	}
}
