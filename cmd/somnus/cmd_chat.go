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
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Somnus/pkg/ux"
	"github.com/AleutianAI/Somnus/services/advisor/session"
)

func runChatCommand(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	rt, err := newAdvisorRuntime(ctx, config, runtimeOptions{
		CatalogPath: effectiveCatalogPath(),
		ProfilePath: profilePath,
		Offline:     offlineMode,
		UseWeaviate: config.Catalog.UseWeaviate,
		Quiet:       true, // the chat UI owns the terminal
		Service:     "cli",
	})
	if err != nil {
		log.Fatalf("Failed to start advisor: %v", err)
	}

	runner, err := NewAdvisorChatRunner(rt, AdvisorChatRunnerConfig{
		SessionPath: sessionPath,
		SessionsDir: config.Sessions.Dir,
	})
	if err != nil {
		_ = rt.Close()
		log.Fatalf("Failed to start chat: %v", err)
	}
	defer runner.Close()

	// Set up graceful shutdown with signal handling
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := runner.Run(runCtx); err != nil && err != context.Canceled {
		log.Fatalf("Chat error: %v", err)
	}
}

func runAskCommand(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	question := strings.Join(args, " ")

	rt, err := newAdvisorRuntime(ctx, config, runtimeOptions{
		CatalogPath: effectiveCatalogPath(),
		ProfilePath: profilePath,
		Offline:     offlineMode,
		UseWeaviate: config.Catalog.UseWeaviate,
		Quiet:       true,
		Service:     "cli",
	})
	if err != nil {
		log.Fatalf("Failed to start advisor: %v", err)
	}
	defer rt.Close()

	ui := ux.NewChatUI()

	var result, runErr = rt.Loop.Run(ctx, question, session.New())
	if runErr != nil {
		log.Fatalf("Ask failed: %v", runErr)
	}

	if result.Redirected {
		ui.Redirect(string(result.RedirectCategory), result.Answer)
		return
	}
	ui.Answer(result.Answer)
	ui.Recommendations(citations(result.Candidates))
	ui.Enhancements(result.Enhancements)
}
