// Package gcs provides a page store backed by Google Cloud Storage. Pages
// are transient fetch artifacts; the bucket is expected to carry a lifecycle
// rule that expires objects after a short retention window.
package gcs

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/revloop/revloop/internal/taxonomy"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket      string
	ContentType string
}

// Store writes raw pages to a configured GCS bucket.
type Store struct {
	client      *storage.Client
	bucket      string
	contentType string
}

// New creates a GCS-backed page store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	return &Store{client: client, bucket: cfg.Bucket, contentType: contentType}, nil
}

// PutPage uploads the page body and returns a gs:// URI.
func (s *Store) PutPage(ctx context.Context, url string, body []byte) (string, error) {
	key := taxonomy.PageKey(url)
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = s.contentType
	if _, err := writer.Write(body); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

// GetPage downloads the stored body for a URL.
func (s *Store) GetPage(ctx context.Context, url string) ([]byte, error) {
	key := taxonomy.PageKey(url)
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer func() { _ = reader.Close() }()
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return body, nil
}
