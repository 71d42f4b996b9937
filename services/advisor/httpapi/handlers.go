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
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/Somnus/pkg/validation"
	"github.com/AleutianAI/Somnus/services/advisor/agent"
	"github.com/AleutianAI/Somnus/services/advisor/catalog"
	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
	"github.com/AleutianAI/Somnus/services/advisor/observability"
	"github.com/AleutianAI/Somnus/services/advisor/retrieval"
)

var askTracer = otel.Tracer("somnus.advisor.httpapi")

// AskRequest is one stateless consultation turn.
type AskRequest struct {
	Query string `json:"query"`
}

// ProductSummary is the wire shape of a shown candidate.
type ProductSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Brand       string  `json:"brand"`
	PriceManwon int     `json:"price_manwon"`
	Type        string  `json:"type"`
	Rating      float64 `json:"rating"`
	Score       float64 `json:"score"`
}

// AskResponse carries the answer plus the turn's grounding.
type AskResponse struct {
	Answer           string           `json:"answer"`
	Rounds           int              `json:"rounds"`
	AvgSimilarity    float64          `json:"avg_similarity"`
	EnhancementsUsed []string         `json:"enhancements_used"`
	Redirected       bool             `json:"redirected"`
	Products         []ProductSummary `json:"products,omitempty"`
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleAsk runs one turn with no session history.
func HandleAsk(loop *agent.Loop, metrics *observability.AdvisorMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := askTracer.Start(c.Request.Context(), "HandleAsk")
		defer span.End()

		var req AskRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the ask request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no query provided"})
			return
		}

		start := time.Now()
		result, err := loop.Run(ctx, req.Query, nil)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Turn failed", "error", err)
			recordTurn(metrics, observability.TransportHTTP, observability.OutcomeError, elapsed, 0, 0)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		recordResult(metrics, observability.TransportHTTP, result, elapsed)
		c.JSON(http.StatusOK, askResponse(result))
	}
}

// HandleGetProduct resolves one catalog record by id.
func HandleGetProduct(store catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := validation.SanitizeProductID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		record, err := store.Get(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
				return
			}
			slog.Error("Catalog lookup failed", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog lookup failed"})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

// HandleCatalogStats aggregates the live snapshot.
func HandleCatalogStats(store catalog.Store, metrics *observability.AdvisorMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := store.Stats(c.Request.Context())
		if err != nil {
			slog.Error("Catalog stats failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog stats failed"})
			return
		}
		if metrics != nil {
			metrics.SetCatalogSize(stats.Count)
		}
		c.JSON(http.StatusOK, stats)
	}
}

// askResponse converts a turn result to the wire shape.
func askResponse(result *agent.Result) AskResponse {
	return AskResponse{
		Answer:           result.Answer,
		Rounds:           result.Rounds(),
		AvgSimilarity:    result.AvgSimilarity,
		EnhancementsUsed: result.Enhancements,
		Redirected:       result.Redirected,
		Products:         productSummaries(result.Candidates),
	}
}

func productSummaries(candidates []retrieval.RankedCandidate) []ProductSummary {
	if len(candidates) == 0 {
		return nil
	}
	out := make([]ProductSummary, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Product == nil {
			continue
		}
		out = append(out, ProductSummary{
			ID:          cand.Product.ID,
			Name:        cand.Product.Name,
			Brand:       cand.Product.Brand,
			PriceManwon: cand.Product.PriceManwon(),
			Type:        cand.Product.Type.Korean(),
			Rating:      cand.Product.Rating,
			Score:       cand.Score,
		})
	}
	return out
}

// outcomeOf classifies a finished turn for metrics.
func outcomeOf(result *agent.Result) observability.Outcome {
	switch {
	case result.Redirected:
		return observability.OutcomeRedirected
	case slices.Contains(result.Enhancements, string(datatypes.EnhancementDegradedGeneration)):
		return observability.OutcomeDegraded
	case len(result.Candidates) == 0:
		return observability.OutcomeNoMatch
	default:
		return observability.OutcomeAnswered
	}
}

func recordTurn(metrics *observability.AdvisorMetrics, transport observability.Transport,
	outcome observability.Outcome, seconds float64, rounds int, avgSimilarity float64) {

	if metrics == nil {
		return
	}
	metrics.RecordTurn(transport, outcome, seconds, rounds, avgSimilarity)
}

// recordResult records the turn outcome plus its enhancement and redirect
// counters.
func recordResult(metrics *observability.AdvisorMetrics, transport observability.Transport,
	result *agent.Result, seconds float64) {

	if metrics == nil {
		return
	}
	metrics.RecordTurn(transport, outcomeOf(result), seconds, result.Rounds(), result.AvgSimilarity)
	metrics.RecordEnhancements(result.Enhancements)
	if result.Redirected {
		metrics.RecordRedirect(string(result.RedirectCategory))
	}
}
