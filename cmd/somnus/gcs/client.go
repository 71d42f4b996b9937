// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs uploads session archives to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Client wraps a GCS bucket for session backups.
type Client struct {
	storageClient *storage.Client
	ProjectID     string
	BucketName    string
}

// NewClient builds a client authenticated with a service account key
// file. The key path is checked up front so a typo fails immediately
// instead of on the first upload.
func NewClient(ctx context.Context, projectID, bucketName, saKeyPath string) (*Client, error) {
	if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("service account key not found at %s", saKeyPath)
	}

	storageClient, err := storage.NewClient(ctx, option.WithCredentialsFile(saKeyPath))
	if err != nil {
		return nil, fmt.Errorf("create GCS storage client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		ProjectID:     projectID,
		BucketName:    bucketName,
	}, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	return c.storageClient.Close()
}

// UploadFile copies one local file to the given object path.
func (c *Client) UploadFile(ctx context.Context, localPath, objectPath string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer localFile.Close()

	obj := c.storageClient.Bucket(c.BucketName).Object(objectPath)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, localFile); err != nil {
		return fmt.Errorf("copy %s to gs://%s/%s: %w", localPath, c.BucketName, objectPath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", c.BucketName, objectPath, err)
	}
	return nil
}

// UploadDir uploads every JSON file directly under localDir beneath
// prefix, returning how many objects were written. Non-JSON files are
// skipped so stray editor droppings never end up in the bucket.
func (c *Client) UploadDir(ctx context.Context, localDir, prefix string) (int, error) {
	uploaded := 0
	err := filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}
		objectPath := filepath.Join(prefix, info.Name())
		if err := c.UploadFile(ctx, path, objectPath); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	return uploaded, err
}
