// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/pdiddy/arxitex/internal/store"
)

func TestSnapshotManifestCapturesQueueAndCursor(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	pubA := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	pubB := time.Date(2024, 3, 9, 8, 30, 0, 0, time.UTC)
	mustEnqueue(t, st,
		sampleMeta("2403.00001", pubA),
		sampleMeta("2403.00002", pubB),
	)

	cursor := store.DiscoveryCursor{
		Query:           "cat:math.CO",
		Year:            2024,
		Month:           3,
		OldestPublished: pubB,
	}
	if err := st.SaveDiscoveryCursor(ctx, cursor); err != nil {
		t.Fatalf("SaveDiscoveryCursor: %v", err)
	}

	r := New(st, &stubSearcher{}, nil, http.DefaultClient, testConfig(t))
	m, err := r.SnapshotManifest(ctx, "cat:math.CO", KindBackfill, 50, 2)
	if err != nil {
		t.Fatalf("SnapshotManifest: %v", err)
	}

	if m.Query != "cat:math.CO" || m.Kind != KindBackfill {
		t.Errorf("query/kind = %q/%q", m.Query, m.Kind)
	}
	if m.Target != 50 || m.Added != 2 {
		t.Errorf("target/added = %d/%d, want 50/2", m.Target, m.Added)
	}
	if m.Cursor.Year != 2024 || m.Cursor.Month != 3 {
		t.Errorf("cursor year/month = %d/%d, want 2024/3", m.Cursor.Year, m.Cursor.Month)
	}
	if m.Cursor.OldestPublished != pubB.Format(time.RFC3339) {
		t.Errorf("cursor oldest = %q, want %q", m.Cursor.OldestPublished, pubB.Format(time.RFC3339))
	}

	wantIDs := []string{"2403.00001", "2403.00002"}
	gotIDs := m.IDs()
	if len(gotIDs) != len(wantIDs) {
		t.Fatalf("queue ids = %v, want %v", gotIDs, wantIDs)
	}
	for i := range wantIDs {
		if gotIDs[i] != wantIDs[i] {
			t.Errorf("queue[%d] = %q, want %q", i, gotIDs[i], wantIDs[i])
		}
	}
	if m.Queue[0].Title == "" || m.Queue[0].Published == "" {
		t.Errorf("queue entry missing title or published: %+v", m.Queue[0])
	}
	if m.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestManifestFileRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	pub := time.Date(2023, 1, 17, 0, 0, 0, 0, time.UTC)
	mustEnqueue(t, st, sampleMeta("2301.07041", pub))

	r := New(st, &stubSearcher{}, nil, http.DefaultClient, testConfig(t))
	m, err := r.SnapshotManifest(ctx, "union closed", KindDiscover, 10, 1)
	if err != nil {
		t.Fatalf("SnapshotManifest: %v", err)
	}

	path := filepath.Join(t.TempDir(), "discovery.yaml")
	if err := WriteManifest(path, m); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	loaded, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if loaded.Query != "union closed" || loaded.Kind != KindDiscover {
		t.Errorf("query/kind = %q/%q", loaded.Query, loaded.Kind)
	}
	ids := loaded.IDs()
	if len(ids) != 1 || ids[0] != "2301.07041" {
		t.Errorf("ids = %v, want [2301.07041]", ids)
	}
}

func TestReadManifestMissingFile(t *testing.T) {
	if _, err := ReadManifest(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}
