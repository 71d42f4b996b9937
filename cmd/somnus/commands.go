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
	"log"

	"github.com/AleutianAI/Somnus/pkg/ux"
	"github.com/spf13/cobra"
)

const somnusVersion = "0.3.0"

// --- Global Command Variables ---
var (
	configPath       string
	sessionPath      string
	catalogPath      string
	profilePath      string
	offlineMode      bool
	serveAddr        string
	useWeaviate      bool
	sessionsDir      string
	profileOut       string
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "somnus",
		Short: "A domain-restricted conversational advisor for sleep products",
		Long: `Somnus is a Korean-language shopping advisor for mattresses,
				pillows, and other sleep products. It answers only within its
				domain, retrieves from a product catalog, and grounds every
				recommendation in real catalog entries.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}

			cfg, err := LoadSomnusConfig(configPath)
			if err != nil {
				log.Fatalf("Error loading configuration: %v", err)
			}
			config = cfg
		},
	}

	// --- Chat / Ask ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Starts an interactive advisor session",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Asks a single question and prints the answer with its product citations",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_chat.go
	}

	// --- HTTP server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the advisor over HTTP (REST ask endpoint plus websocket chat)",
		Run:   runServeCommand, // Defined in cmd_serve.go
	}

	// --- Catalog ---
	catalogCmd = &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and ingest the product catalog",
	}
	catalogIngestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Normalize, embed, and load the catalog (optionally into Weaviate)",
		Run:   runCatalogIngest, // Defined in cmd_catalog.go
	}
	catalogStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print catalog statistics (counts, price range, top brands)",
		Run:   runCatalogStats, // Defined in cmd_catalog.go
	}
	catalogValidateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Validate catalog rows without embedding or loading them",
		Run:   runCatalogValidate, // Defined in cmd_catalog.go
	}

	// --- Sessions ---
	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved conversation sessions",
	}
	sessionsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List saved session files",
		Run:   runSessionsList, // Defined in cmd_sessions.go
	}
	sessionsShowCmd = &cobra.Command{
		Use:   "show [file]",
		Short: "Show the turns of one saved session",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionsShow, // Defined in cmd_sessions.go
	}
	sessionsBackupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Upload saved sessions to Google Cloud Storage",
		Run:   runSessionsBackup, // Defined in cmd_sessions.go
	}
	sessionsMetricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "Export per-turn metrics of saved sessions to InfluxDB",
		Run:   runSessionsMetrics, // Defined in cmd_sessions.go
	}

	// --- Profile ---
	profileCmd = &cobra.Command{
		Use:   "profile",
		Short: "Interactively build a sleeper profile and save it as YAML",
		Run:   runProfileCommand, // Defined in cmd_profile.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the somnus version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("somnus %s\n", somnusVersion)
		},
	}
)

// init runs when the Go program starts
func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default, rich nocturnal), standard, minimal, or machine (scripting)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "somnus.yaml",
		"Path to the configuration file")

	// chat / ask
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&sessionPath, "session", "", "Resume and save the session at this JSON file")
	chatCmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog JSON file (overrides config)")
	chatCmd.Flags().StringVar(&profilePath, "profile", "", "Sleeper profile YAML to fold into every turn")
	chatCmd.Flags().BoolVar(&offlineMode, "offline", false, "Run without an LLM: local embeddings, static expansion")

	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog JSON file (overrides config)")
	askCmd.Flags().StringVar(&profilePath, "profile", "", "Sleeper profile YAML to fold into the turn")
	askCmd.Flags().BoolVar(&offlineMode, "offline", false, "Run without an LLM: local embeddings, static expansion")

	// serve
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog JSON file (overrides config)")
	serveCmd.Flags().BoolVar(&useWeaviate, "weaviate", false, "Serve retrieval from Weaviate instead of the in-process store")
	serveCmd.Flags().BoolVar(&offlineMode, "offline", false, "Run without an LLM: local embeddings, static expansion")

	// catalog
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogIngestCmd)
	catalogCmd.AddCommand(catalogStatsCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.PersistentFlags().StringVar(&catalogPath, "file", "", "Catalog JSON file (overrides config)")
	catalogIngestCmd.Flags().BoolVar(&useWeaviate, "weaviate", false, "Ingest into Weaviate after embedding")
	catalogIngestCmd.Flags().BoolVar(&offlineMode, "offline", false, "Embed with the local hash embedder")

	// sessions
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsBackupCmd)
	sessionsCmd.AddCommand(sessionsMetricsCmd)
	sessionsCmd.PersistentFlags().StringVar(&sessionsDir, "dir", "", "Session directory (overrides config)")

	// profile
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().StringVar(&profileOut, "out", "profile.yaml", "Where to write the profile")

	rootCmd.AddCommand(versionCmd)
}
