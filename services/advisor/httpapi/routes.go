// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package httpapi exposes the advisor over HTTP: a single-turn ask
// endpoint, catalog lookups, a websocket chat loop, health, and metrics.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/Somnus/services/advisor/agent"
	"github.com/AleutianAI/Somnus/services/advisor/catalog"
	"github.com/AleutianAI/Somnus/services/advisor/observability"
)

// SetupRoutes registers all advisor endpoints on the router.
//
// # Inputs
//
//   - router: Gin engine, middleware already applied by the caller.
//   - loop: Turn state machine. Must not be nil.
//   - store: Live catalog. Must not be nil.
//   - metrics: Turn metrics. Nil disables recording.
func SetupRoutes(router *gin.Engine, loop *agent.Loop, store catalog.Store,
	metrics *observability.AdvisorMetrics) {

	router.GET("/healthz", HealthCheck)
	router.GET("/metrics", gin.WrapH(metricsHandler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/ask", HandleAsk(loop, metrics))
		v1.GET("/products/:id", HandleGetProduct(store))
		v1.GET("/catalog/stats", HandleCatalogStats(store, metrics))
		v1.GET("/chat", HandleChatWebSocket(loop, metrics))
	}
}

// metricsHandler prefers the OTel-bridged handler installed by
// observability.Init and falls back to the default registry.
func metricsHandler() http.Handler {
	if h := observability.MetricsHandler(); h != nil {
		return h
	}
	return promhttp.Handler()
}
