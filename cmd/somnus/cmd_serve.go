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
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/Somnus/services/advisor/catalog"
	"github.com/AleutianAI/Somnus/services/advisor/httpapi"
	"github.com/AleutianAI/Somnus/services/advisor/observability"
)

// runServeCommand exposes the advisor over HTTP: /v1/ask, /v1/chat
// (websocket), catalog lookups, health, and Prometheus metrics.
func runServeCommand(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	rt, err := newAdvisorRuntime(ctx, config, runtimeOptions{
		CatalogPath: effectiveCatalogPath(),
		Offline:     offlineMode,
		UseWeaviate: useWeaviate || config.Catalog.UseWeaviate,
		Service:     "serve",
	})
	if err != nil {
		log.Fatalf("Failed to start advisor: %v", err)
	}
	defer rt.Close()
	logger := rt.Slog()

	// Telemetry first so everything below is traced.
	shutdownTelemetry, err := observability.Init(ctx, observability.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	metrics := observability.InitMetrics()
	metrics.SetCatalogSize(len(rt.Records))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("somnus-advisor"))
	httpapi.SetupRoutes(router, rt.Loop, rt.Store, metrics)

	// Hot-reload the in-process store when the catalog file changes.
	// Weaviate-backed serving re-ingests via `catalog ingest` instead.
	if rt.Memory != nil {
		watcher, err := catalog.NewWatcher(effectiveCatalogPath(),
			func(ctx context.Context, path string) {
				records, err := rt.Loader.LoadFile(ctx, path)
				if err != nil {
					logger.Error("catalog reload failed, keeping previous snapshot",
						slog.String("path", path), slog.Any("error", err))
					return
				}
				if err := rt.Memory.Replace(records); err != nil {
					logger.Error("catalog snapshot swap failed",
						slog.Any("error", err))
					return
				}
				metrics.SetCatalogSize(len(records))
				logger.Info("catalog reloaded", slog.Int("products", len(records)))
			}, nil, logger)
		if err != nil {
			logger.Warn("catalog watcher unavailable, hot reload disabled",
				slog.Any("error", err))
		} else {
			watchCtx, stopWatch := context.WithCancel(ctx)
			defer stopWatch()
			if err := watcher.Start(watchCtx); err != nil {
				logger.Warn("catalog watcher failed to start", slog.Any("error", err))
			} else {
				defer watcher.Stop()
			}
		}
	}

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("advisor listening",
			slog.String("addr", serveAddr),
			slog.Int("catalog_size", len(rt.Records)))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", slog.Any("error", err))
		}
	}
}
