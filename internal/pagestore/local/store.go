// Package local implements a filesystem-backed page store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/revloop/revloop/internal/taxonomy"
)

// Config captures the parameters for the local page store.
type Config struct {
	// BaseDir is the root directory where pages are stored.
	BaseDir string `mapstructure:"base_dir"`
}

// Store writes raw pages to the local filesystem.
type Store struct {
	baseDir string
}

// New creates a filesystem-backed page store, creating the base directory
// when missing and verifying it is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	return &Store{baseDir: cfg.BaseDir}, nil
}

func (s *Store) pathFor(url string) string {
	// PageKey query-escapes the URL, so the key never contains a separator.
	return filepath.Join(s.baseDir, taxonomy.PageKey(url))
}

// PutPage writes the page body to a file and returns a file:// URI.
func (s *Store) PutPage(_ context.Context, url string, body []byte) (string, error) {
	fullPath := s.pathFor(url)
	if err := os.WriteFile(fullPath, body, 0o600); err != nil {
		return "", fmt.Errorf("write page file: %w", err)
	}
	return fmt.Sprintf("file://%s", fullPath), nil
}

// GetPage reads the stored body for a URL.
func (s *Store) GetPage(_ context.Context, url string) ([]byte, error) {
	body, err := os.ReadFile(s.pathFor(url))
	if err != nil {
		return nil, fmt.Errorf("read page file: %w", err)
	}
	return body, nil
}
