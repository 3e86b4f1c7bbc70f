// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

// Manifest kinds.
const (
	KindDiscover = "discover"
	KindBackfill = "backfill"
)

// Manifest is the on-disk record of one discovery run: the query, where the
// cursor landed, and a snapshot of the queue after the run. A saved manifest
// can be fed back to ingest to process exactly that batch without
// re-querying the arXiv API.
type Manifest struct {
	Query     string          `yaml:"query"`
	Kind      string          `yaml:"kind"`
	Target    int             `yaml:"target"`
	Added     int             `yaml:"added"`
	Cursor    ManifestCursor  `yaml:"cursor"`
	Queue     []ManifestPaper `yaml:"queue,omitempty"`
	Timestamp time.Time       `yaml:"timestamp"`
}

// ManifestCursor mirrors the persisted discovery cursor at save time.
type ManifestCursor struct {
	OldestPublished string `yaml:"oldest_published,omitempty"`
	Year            int    `yaml:"year,omitempty"`
	Month           int    `yaml:"month,omitempty"`
}

// ManifestPaper is one queued paper in serializable form.
type ManifestPaper struct {
	ArxivID   string `yaml:"arxiv_id"`
	Title     string `yaml:"title"`
	Published string `yaml:"published,omitempty"`
}

// SnapshotManifest captures the queue and the cursor for query after a
// discovery run that enqueued added papers.
func (r *Runner) SnapshotManifest(ctx context.Context, query, kind string, target, added int) (*Manifest, error) {
	m := &Manifest{
		Query:     query,
		Kind:      kind,
		Target:    target,
		Added:     added,
		Timestamp: time.Now().UTC(),
	}

	cursor, found, err := r.store.LoadDiscoveryCursor(ctx, query)
	if err != nil {
		return nil, err
	}
	if found {
		if !cursor.OldestPublished.IsZero() {
			m.Cursor.OldestPublished = cursor.OldestPublished.UTC().Format(time.RFC3339)
		}
		m.Cursor.Year = cursor.Year
		m.Cursor.Month = cursor.Month
	}

	queue, err := r.store.QueueSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	for _, meta := range queue {
		p := ManifestPaper{ArxivID: meta.ID, Title: meta.Title}
		if !meta.Published.IsZero() {
			p.Published = meta.Published.UTC().Format(time.RFC3339)
		}
		m.Queue = append(m.Queue, p)
	}
	return m, nil
}

// WriteManifest saves a manifest as YAML.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadManifest loads a previously saved manifest from disk.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// IDs returns the queued arXiv ids in manifest order.
func (m *Manifest) IDs() []string {
	ids := make([]string, 0, len(m.Queue))
	for _, p := range m.Queue {
		ids = append(ids, p.ArxivID)
	}
	return ids
}
