// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/genai"
)

// Cache wraps a Backend with an on-disk response cache keyed by model and
// prompt. Calls run at temperature zero, so a cached response stands in for
// a fresh one. Per prd005-enhancement R5.3.
type Cache struct {
	backend Backend
	dir     string
}

// NewCache returns a caching wrapper around backend storing responses
// under dir.
func NewCache(backend Backend, dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating oracle cache directory: %w", err)
	}
	return &Cache{backend: backend, dir: dir}, nil
}

// Model implements Backend.
func (c *Cache) Model() string { return c.backend.Model() }

// Generate implements Backend. Hits short-circuit the wrapped backend;
// misses call through and store the raw response. A failed cache write is
// not fatal, the response is still returned.
func (c *Cache) Generate(ctx context.Context, prompt string, schema *genai.Schema) ([]byte, error) {
	path := c.entryPath(prompt)

	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}

	data, err := c.backend.Generate(ctx, prompt, schema)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "warning: writing oracle cache entry: %v\n", err)
	}
	return data, nil
}

// entryPath derives the cache file for one call from the model and prompt.
func (c *Cache) entryPath(prompt string) string {
	h := sha256.New()
	h.Write([]byte(c.backend.Model()))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return filepath.Join(c.dir, fmt.Sprintf("%x.json", h.Sum(nil)))
}
