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
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/Somnus/cmd/somnus/gcs"
	"github.com/AleutianAI/Somnus/pkg/ux"
	"github.com/AleutianAI/Somnus/services/advisor/session"
)

// listSessionFiles returns saved session paths in the directory, oldest
// first.
func listSessionFiles(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "somnus_session_*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func runSessionsList(cmd *cobra.Command, args []string) {
	dir := effectiveSessionsDir()
	paths, err := listSessionFiles(dir)
	if err != nil {
		log.Fatalf("Failed to list sessions: %v", err)
	}
	if len(paths) == 0 {
		ux.Info(fmt.Sprintf("No saved sessions in %s", dir))
		return
	}

	ux.Title(fmt.Sprintf("Saved sessions (%d)", len(paths)))
	for _, path := range paths {
		sess, err := session.Load(path)
		if err != nil {
			ux.Warning(fmt.Sprintf("%s: unreadable (%v)", filepath.Base(path), err))
			continue
		}
		sum := sess.Summarize()
		ux.Info(fmt.Sprintf("%-44s %3d turns  %s",
			filepath.Base(path),
			sum.TotalTurns,
			sum.SessionStart.Local().Format("2006-01-02 15:04")))
	}
}

func runSessionsShow(cmd *cobra.Command, args []string) {
	path := args[0]
	// Bare filenames resolve against the sessions directory.
	if _, err := os.Stat(path); err != nil && filepath.Base(path) == path {
		path = filepath.Join(effectiveSessionsDir(), path)
	}

	sess, err := session.Load(path)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", path, err)
	}
	turns := sess.Turns()
	if len(turns) == 0 {
		ux.Info("Session is empty.")
		return
	}

	ui := ux.NewChatUI()
	for i, t := range turns {
		ui.HistoryEntry(i+1, t.Timestamp, t.UserQuery, t.AIResponse)
	}

	sum := sess.Summarize()
	ui.Status(ux.SessionStats{
		Turns:                sum.TotalTurns,
		EnhancedTurns:        sum.EnhancedTurns,
		AvgProcessingSeconds: sum.AvgProcessingSeconds,
		Started:              sum.SessionStart,
	})
}

// runSessionsBackup pushes every saved session file into the configured
// GCS bucket.
func runSessionsBackup(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	if config.Backup.Bucket == "" {
		log.Fatalf("No backup bucket configured. Set backup.bucket in %s.", configPath)
	}

	client, err := gcs.NewClient(ctx, config.Backup.ProjectID, config.Backup.Bucket, config.Backup.CredentialsFile)
	if err != nil {
		log.Fatalf("Failed to connect to GCS: %v", err)
	}
	defer client.Close()

	dir := effectiveSessionsDir()
	var uploaded int
	err = ux.WithSpinner(fmt.Sprintf("Backing up %s to gs://%s...", dir, config.Backup.Bucket), func() error {
		n, err := client.UploadDir(ctx, dir, config.Backup.Prefix)
		uploaded = n
		return err
	})
	if err != nil {
		log.Fatalf("Backup failed after %d uploads: %v", uploaded, err)
	}
	ux.Success(fmt.Sprintf("Backed up %d session file(s) to gs://%s/%s", uploaded, config.Backup.Bucket, config.Backup.Prefix))
}

// runSessionsMetrics exports per-turn timings into InfluxDB so session
// quality can be graphed over time.
func runSessionsMetrics(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	token := os.Getenv("INFLUXDB_TOKEN")
	if token == "" {
		ux.Error("INFLUXDB_TOKEN not set.")
		os.Exit(1)
	}

	client := influxdb2.NewClient(config.Metrics.InfluxURL, token)
	defer client.Close()
	writeAPI := client.WriteAPIBlocking(config.Metrics.InfluxOrg, config.Metrics.InfluxBucket)

	dir := effectiveSessionsDir()
	paths, err := listSessionFiles(dir)
	if err != nil {
		log.Fatalf("Failed to list sessions: %v", err)
	}
	if len(paths) == 0 {
		ux.Info(fmt.Sprintf("No saved sessions in %s", dir))
		return
	}

	points := 0
	for _, path := range paths {
		sess, err := session.Load(path)
		if err != nil {
			ux.Warning(fmt.Sprintf("%s: skipped (%v)", filepath.Base(path), err))
			continue
		}
		name := filepath.Base(path)
		for _, t := range sess.Turns() {
			point := influxdb2.NewPoint("advisor_turn",
				map[string]string{
					"session": name,
				},
				map[string]interface{}{
					"processing_time": t.ProcessingTime,
					"avg_similarity":  t.AvgSimilarity,
					"enhancements":    len(t.EnhancementsUsed),
				},
				t.Timestamp)
			if err := writeAPI.WritePoint(ctx, point); err != nil {
				log.Fatalf("InfluxDB write failed: %v", err)
			}
			points++
		}
	}

	ux.Success(fmt.Sprintf("Exported %d turn(s) from %d session(s) to %s", points, len(paths), config.Metrics.InfluxBucket))
}
