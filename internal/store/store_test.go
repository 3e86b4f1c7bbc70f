// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/arxitex/internal/defbank"
	"github.com/pdiddy/arxitex/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(types.StoreConfig{DBPath: filepath.Join(t.TempDir(), "arxitex.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMeta(id string) types.PaperMeta {
	return types.PaperMeta{
		ID:              id,
		Title:           "On Union Closed Families",
		Abstract:        "We study union closed families of sets.",
		Comment:         "12 pages, 2 figures",
		PrimaryCategory: "math.CO",
		Categories:      []string{"math.CO", "math.PR"},
		Authors:         []string{"J. Doe", "A. Smith"},
		Published:       time.Date(2023, 7, 14, 9, 30, 0, 0, time.UTC),
	}
}

const (
	thmID = "theorem-1-a1b2c3"
	lemID = "lemma-1-d4e5f6"
	extID = "external_Rou01"
)

func sampleGraph(t *testing.T, paperID string) *types.DocumentGraph {
	t.Helper()
	g := types.NewDocumentGraph(paperID, types.ModeFull)

	thm := &types.Artifact{
		ID: thmID, Type: types.ArtifactTheorem, Env: "thm",
		Label: "thm:main", Title: "Main",
		Content: "Every union closed family has a good element.",
		Proof:   "Apply Lemma \\ref{lem:helper}.",
		Span:    types.Span{StartLine: 3, StartCol: 1, EndLine: 5, EndCol: 10},
		Prerequisites: []types.TermDefinition{
			{Term: "union closed family", Definition: "A family closed under unions."},
			{Term: "group", Definition: "A set with an associative invertible operation."},
		},
	}
	lem := &types.Artifact{
		ID: lemID, Type: types.ArtifactLemma, Env: "lem",
		Label:   "lem:helper",
		Content: "The helper bound holds for every group.",
		Span:    types.Span{StartLine: 10, StartCol: 1, EndLine: 12, EndCol: 8},
		Prerequisites: []types.TermDefinition{
			{Term: "group", Definition: "A set with an associative invertible operation."},
		},
	}
	ext := &types.Artifact{
		ID: extID, Type: types.ArtifactExternalReference,
		Label:   "Rou01",
		Content: "M. Roussel, Union closed sets, 2001.",
	}
	for _, a := range []*types.Artifact{thm, lem, ext} {
		if err := g.AddNode(a); err != nil {
			t.Fatal(err)
		}
	}

	edges := []types.Edge{
		{SourceID: thmID, TargetID: lemID, Kind: types.EdgeReference,
			RefType: types.RefInternal, Context: "Apply Lemma ref lem:helper"},
		{SourceID: thmID, TargetID: extID, Kind: types.EdgeReference,
			RefType: types.RefExternal, Context: "see [Rou01]"},
		{SourceID: thmID, TargetID: lemID, Kind: types.EdgeDependency,
			DepType: types.DepUsesResult, Justification: "the proof applies the helper bound"},
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func sampleBank() *defbank.Bank {
	bank := defbank.New()
	bank.Register(types.Definition{
		Term:             "union closed family",
		Text:             "A family closed under unions.",
		SourceArtifactID: thmID,
		Aliases:          []string{"uc family"},
	})
	bank.Register(types.Definition{
		Term:         "group",
		Text:         "A set with an associative invertible operation.",
		Synthesized:  true,
		Dependencies: []string{"union closed family"},
	})
	return bank
}

func sampleTerms() map[string][]string {
	return map[string][]string{
		thmID: {"union closed family", "group"},
		lemID: {"group"},
	}
}

func sampleMacros() map[string]string {
	return map[string]string{
		`\R`:   `\mathbb{R}`,
		`\Hom`: `\operatorname{Hom}`,
	}
}

// --- schema tests ---

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)

	tables := []string{
		"papers", "paper_ingestion_state", "artifacts", "artifact_edges",
		"definitions", "definition_aliases", "definition_dependencies",
		"artifact_terms", "artifact_definition_requirements", "paper_macros",
		"paper_citations", "external_reference_arxiv_matches",
		"external_reference_arxiv_search_cache",
		"discovery_queue", "skipped_papers", "discovery_state",
		"arxitex_schema_version",
	}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count == 0 {
			t.Errorf("table %s does not exist", table)
		}
	}

	var version int
	if err := s.db.QueryRow(`SELECT version FROM arxitex_schema_version`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion {
		t.Errorf("version = %d, want %d", version, schemaVersion)
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT count(*) FROM arxitex_schema_version`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("version rows = %d, want 1", count)
	}
}

func TestMigrateDropsLegacyCitationColumn(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "arxitex.db")

	legacy, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	stmts := []string{
		`CREATE TABLE paper_citations (
			paper_id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			source_work_id TEXT,
			citation_count INTEGER,
			last_fetched_at_utc TEXT NOT NULL,
			is_stale INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE arxitex_schema_version (version INTEGER NOT NULL)`,
		`INSERT INTO arxitex_schema_version (version) VALUES (1)`,
		`INSERT INTO paper_citations VALUES ('2301.00001', 'openalex', 'W123', 42, '2026-01-02T03:04:05Z', 1)`,
	}
	for _, stmt := range stmts {
		if _, err := legacy.Exec(stmt); err != nil {
			t.Fatal(err)
		}
	}
	if err := legacy.Close(); err != nil {
		t.Fatal(err)
	}

	s, err := Open(types.StoreConfig{DBPath: dbPath})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var hasColumn int
	err = s.db.QueryRow(
		`SELECT count(*) FROM pragma_table_info('paper_citations') WHERE name = 'is_stale'`,
	).Scan(&hasColumn)
	if err != nil {
		t.Fatal(err)
	}
	if hasColumn != 0 {
		t.Error("is_stale column survived the migration")
	}

	rec, found, err := s.PaperCitationRecord(context.Background(), "2301.00001")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("citation row lost during migration")
	}
	if rec.CitationCount != 42 || rec.SourceWorkID != "W123" {
		t.Errorf("migrated row = %+v", rec)
	}

	var version int
	if err := s.db.QueryRow(`SELECT version FROM arxitex_schema_version`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion {
		t.Errorf("version = %d, want %d", version, schemaVersion)
	}
}

// --- persistence tests ---

func TestPersistAndLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	meta := sampleMeta("2301.07041")
	graph := sampleGraph(t, meta.ID)

	err := s.PersistExtractionResult(ctx, meta, graph, types.ModeFull, sampleBank(), sampleTerms(), sampleMacros())
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadDocumentGraph(ctx, meta.ID, true)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.PaperID != meta.ID || loaded.Mode != types.ModeFull {
		t.Errorf("loaded header = %s/%s", loaded.PaperID, loaded.Mode)
	}
	if len(loaded.Nodes) != len(graph.Nodes) {
		t.Fatalf("loaded %d nodes, want %d", len(loaded.Nodes), len(graph.Nodes))
	}
	for i, want := range graph.Nodes {
		if !reflect.DeepEqual(*loaded.Nodes[i], *want) {
			t.Errorf("node %d:\n got %+v\nwant %+v", i, *loaded.Nodes[i], *want)
		}
	}
	if !reflect.DeepEqual(loaded.Edges, graph.Edges) {
		t.Errorf("edges:\n got %+v\nwant %+v", loaded.Edges, graph.Edges)
	}

	st, found, err := s.State(ctx, meta.ID, types.ModeFull)
	if err != nil {
		t.Fatal(err)
	}
	if !found || st.Stage != types.StageComplete || st.Attempts != 1 {
		t.Errorf("state = %+v, found=%v", st, found)
	}
	if st.LastError != "" {
		t.Errorf("last error = %q, want empty", st.LastError)
	}
}

func TestPersistReplacesPreviousRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	meta := sampleMeta("2301.07041")

	err := s.PersistExtractionResult(ctx, meta, sampleGraph(t, meta.ID), types.ModeFull, sampleBank(), sampleTerms(), sampleMacros())
	if err != nil {
		t.Fatal(err)
	}

	second := types.NewDocumentGraph(meta.ID, types.ModeFull)
	if err := second.AddNode(&types.Artifact{
		ID: thmID, Type: types.ArtifactTheorem, Env: "thm",
		Content: "Revised statement.",
		Span:    types.Span{StartLine: 4, EndLine: 6},
	}); err != nil {
		t.Fatal(err)
	}
	err = s.PersistExtractionResult(ctx, meta, second, types.ModeFull, defbank.New(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadDocumentGraph(ctx, meta.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Nodes) != 1 {
		t.Fatalf("stale artifacts survived: %d nodes", len(loaded.Nodes))
	}
	if loaded.Nodes[0].Content != "Revised statement." {
		t.Errorf("content = %q", loaded.Nodes[0].Content)
	}
	if len(loaded.Edges) != 0 {
		t.Errorf("stale edges survived: %d", len(loaded.Edges))
	}

	payload, err := s.ExportPaper(ctx, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if payload.DefinitionBank != nil {
		t.Error("stale definitions survived")
	}

	st, _, err := s.State(ctx, meta.ID, types.ModeFull)
	if err != nil {
		t.Fatal(err)
	}
	if st.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", st.Attempts)
	}
}

func TestMarkProcessingCountsAttemptsOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	meta := sampleMeta("2301.07041")

	if err := s.MarkProcessing(ctx, meta, types.ModeDefs); err != nil {
		t.Fatal(err)
	}
	st, _, err := s.State(ctx, meta.ID, types.ModeDefs)
	if err != nil {
		t.Fatal(err)
	}
	if st.Stage != types.StageProcessing || st.Attempts != 1 {
		t.Fatalf("after first mark: %+v", st)
	}

	// Re-asserting processing mid-run must not count a new attempt.
	if err := s.MarkProcessing(ctx, meta, types.ModeDefs); err != nil {
		t.Fatal(err)
	}
	st, _, _ = s.State(ctx, meta.ID, types.ModeDefs)
	if st.Attempts != 1 {
		t.Errorf("attempts after re-mark = %d, want 1", st.Attempts)
	}

	graph := sampleGraph(t, meta.ID)
	if err := s.PersistExtractionResult(ctx, meta, graph, types.ModeDefs, sampleBank(), sampleTerms(), nil); err != nil {
		t.Fatal(err)
	}
	st, _, _ = s.State(ctx, meta.ID, types.ModeDefs)
	if st.Stage != types.StageComplete || st.Attempts != 1 {
		t.Errorf("after persist: %+v", st)
	}

	// A fresh run transitions complete -> processing and counts again.
	if err := s.PersistExtractionResult(ctx, meta, graph, types.ModeDefs, sampleBank(), sampleTerms(), nil); err != nil {
		t.Fatal(err)
	}
	st, _, _ = s.State(ctx, meta.ID, types.ModeDefs)
	if st.Attempts != 2 {
		t.Errorf("attempts after rerun = %d, want 2", st.Attempts)
	}
}

func TestPersistFailureMarksFailed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	meta := sampleMeta("2301.07041")

	// Duplicate artifact IDs violate the primary key inside the
	// transaction.
	graph := &types.DocumentGraph{
		PaperID: meta.ID,
		Mode:    types.ModeRegex,
		Nodes: []*types.Artifact{
			{ID: thmID, Type: types.ArtifactTheorem, Content: "a"},
			{ID: thmID, Type: types.ArtifactTheorem, Content: "b"},
		},
	}

	err := s.PersistExtractionResult(ctx, meta, graph, types.ModeRegex, nil, nil, nil)
	if err == nil {
		t.Fatal("expected persist error")
	}

	st, found, stateErr := s.State(ctx, meta.ID, types.ModeRegex)
	if stateErr != nil {
		t.Fatal(stateErr)
	}
	if !found || st.Stage != types.StageFailed {
		t.Fatalf("state = %+v, found=%v", st, found)
	}
	if st.LastError == "" {
		t.Error("last error not recorded")
	}

	// The transaction rolled back, so no partial artifact rows remain.
	if _, err := s.LoadDocumentGraph(ctx, meta.ID, false); err == nil {
		t.Error("expected load error after rollback")
	}
}

func TestPaperRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.Paper(ctx, "2301.99999")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("found unknown paper")
	}

	first := sampleMeta("2301.07041")
	second := sampleMeta("math/0211159")
	if err := s.MarkProcessing(ctx, first, types.ModeFull); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkProcessing(ctx, second, types.ModeRegex); err != nil {
		t.Fatal(err)
	}

	got, found, err := s.Paper(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("paper not found")
	}
	if got.Title != first.Title || got.Comment != first.Comment {
		t.Errorf("paper = %+v", got)
	}
	if !reflect.DeepEqual(got.Authors, first.Authors) || !reflect.DeepEqual(got.Categories, first.Categories) {
		t.Errorf("lists = %v / %v", got.Authors, got.Categories)
	}

	ids, err := s.PaperIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"2301.07041", "math/0211159"}) {
		t.Errorf("ids = %v", ids)
	}
}

func TestStateMissing(t *testing.T) {
	s := openTestStore(t)
	_, found, err := s.State(context.Background(), "2301.99999", types.ModeFull)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("found state for unknown paper")
	}
}

func TestLoadDocumentGraphMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.LoadDocumentGraph(context.Background(), "2301.99999", false); err == nil {
		t.Error("expected error for unknown paper")
	}
}

// --- queue tests ---

func TestQueueRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := sampleMeta("2301.07041")
	second := sampleMeta("math/0211159")
	second.Title = "A Legacy Identifier Paper"

	added, err := s.EnqueueDiscovered(ctx, []types.PaperMeta{first, second})
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	added, err = s.EnqueueDiscovered(ctx, []types.PaperMeta{first})
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Errorf("duplicate enqueue added %d", added)
	}

	metas, err := s.DequeueBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Fatalf("dequeued %d, want 2", len(metas))
	}
	got := metas[0]
	if got.ID != first.ID || got.Title != first.Title || got.Comment != first.Comment {
		t.Errorf("meta = %+v", got)
	}
	if !reflect.DeepEqual(got.Categories, first.Categories) || !reflect.DeepEqual(got.Authors, first.Authors) {
		t.Errorf("lists = %v / %v", got.Categories, got.Authors)
	}
	if !got.Published.Equal(first.Published) {
		t.Errorf("published = %v, want %v", got.Published, first.Published)
	}

	if err := s.MarkSkipped(ctx, first.ID, "comment reports 88 pages"); err != nil {
		t.Fatal(err)
	}
	reason, found, err := s.SkippedReason(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !found || !strings.Contains(reason, "88 pages") {
		t.Errorf("reason = %q, found=%v", reason, found)
	}

	if err := s.RemoveFromQueue(ctx, second.ID); err != nil {
		t.Fatal(err)
	}
	metas, err = s.DequeueBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 0 {
		t.Errorf("queue still holds %d papers", len(metas))
	}
}

func TestDiscoveryCursorRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	const query = "cat:math.CO AND abs:union"

	_, found, err := s.LoadDiscoveryCursor(ctx, query)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("cursor found before save")
	}

	cursor := DiscoveryCursor{
		Query:           query,
		Year:            2023,
		Month:           7,
		OldestPublished: time.Date(2023, 7, 2, 12, 0, 0, 0, time.UTC),
	}
	if err := s.SaveDiscoveryCursor(ctx, cursor); err != nil {
		t.Fatal(err)
	}

	got, found, err := s.LoadDiscoveryCursor(ctx, query)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("cursor not found after save")
	}
	if got.Year != 2023 || got.Month != 7 || !got.OldestPublished.Equal(cursor.OldestPublished) {
		t.Errorf("cursor = %+v", got)
	}

	// Backfill advances one month into the past.
	cursor.Month = 6
	if err := s.SaveDiscoveryCursor(ctx, cursor); err != nil {
		t.Fatal(err)
	}
	got, _, _ = s.LoadDiscoveryCursor(ctx, query)
	if got.Month != 6 {
		t.Errorf("month = %d, want 6", got.Month)
	}
}

// --- citation row tests ---

func TestPaperCitationRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.PaperCitationRecord(ctx, "2301.07041")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("row found before upsert")
	}

	rec := PaperCitation{
		PaperID:       "2301.07041v2",
		Source:        "openalex",
		SourceWorkID:  "W2058372281",
		CitationCount: 17,
		FetchedAt:     time.Now().Add(-time.Hour),
	}
	if err := s.UpsertPaperCitation(ctx, rec); err != nil {
		t.Fatal(err)
	}

	// Rows are keyed by base ID, so any version resolves to the same row.
	got, found, err := s.PaperCitationRecord(ctx, "2301.07041v5")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("row not found by versioned id")
	}
	if got.PaperID != "2301.07041" || got.CitationCount != 17 || got.SourceWorkID != "W2058372281" {
		t.Errorf("row = %+v", got)
	}
	if !got.Fresh(30) {
		t.Error("hour-old row reported stale")
	}

	stale := rec
	stale.FetchedAt = time.Now().Add(-40 * 24 * time.Hour)
	if err := s.UpsertPaperCitation(ctx, stale); err != nil {
		t.Fatal(err)
	}
	got, _, _ = s.PaperCitationRecord(ctx, "2301.07041")
	if got.Fresh(30) {
		t.Error("40-day-old row reported fresh")
	}
}

func TestExternalMatchRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	hit := ExternalMatch{
		PaperID:          "2301.07041",
		ArtifactID:       extID,
		MatchedArxivID:   "1111.2222",
		Method:           "search",
		ExtractedTitle:   "A Great Paper",
		ExtractedAuthors: []string{"Doe"},
		MatchedTitle:     "A Great Paper",
		MatchedAuthors:   []string{"John Doe"},
		TitleScore:       0.97,
		AuthorOverlap:    1.0,
		Query:            `ti:"A Great Paper" AND au:Doe`,
		MatchedAt:        time.Now(),
	}
	if err := s.UpsertExternalMatch(ctx, hit); err != nil {
		t.Fatal(err)
	}

	got, found, err := s.ExternalMatchRecord(ctx, hit.PaperID, hit.ArtifactID)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("match not found")
	}
	if got.MatchedArxivID != "1111.2222" || got.Method != "search" || got.TitleScore != 0.97 {
		t.Errorf("match = %+v", got)
	}
	if !reflect.DeepEqual(got.MatchedAuthors, hit.MatchedAuthors) {
		t.Errorf("authors = %v", got.MatchedAuthors)
	}
	if !got.Fresh(14) {
		t.Error("fresh match reported stale")
	}

	// Misses are persisted too, so they are not retried until the TTL
	// lapses.
	miss := ExternalMatch{
		PaperID:    "2301.07041",
		ArtifactID: "external_Unknown99",
		Method:     "none",
		Query:      `ti:"Some Unfindable Title"`,
		MatchedAt:  time.Now(),
	}
	if err := s.UpsertExternalMatch(ctx, miss); err != nil {
		t.Fatal(err)
	}
	got, found, err = s.ExternalMatchRecord(ctx, miss.PaperID, miss.ArtifactID)
	if err != nil {
		t.Fatal(err)
	}
	if !found || got.Method != "none" || got.MatchedArxivID != "" {
		t.Errorf("miss = %+v, found=%v", got, found)
	}
}

func TestSearchCacheRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.SearchCacheLookup(ctx, "deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("cache hit before put")
	}

	entry := SearchCacheEntry{
		Key:            "deadbeef",
		MatchedArxivID: "1234.5678",
		MatchedTitle:   "Cached Title",
		MatchedAuthors: []string{"A. Author"},
		TitleScore:     0.99,
		AuthorOverlap:  0.5,
		Query:          `ti:"Cached Title"`,
		FetchedAt:      time.Now(),
	}
	if err := s.UpsertSearchCache(ctx, entry); err != nil {
		t.Fatal(err)
	}

	got, found, err := s.SearchCacheLookup(ctx, "deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("cache miss after put")
	}
	if got.MatchedArxivID != entry.MatchedArxivID || got.TitleScore != entry.TitleScore {
		t.Errorf("entry = %+v", got)
	}
	if !got.Fresh(14) {
		t.Error("fresh entry reported stale")
	}
}

// --- export tests ---

func TestExportPaperFull(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	meta := sampleMeta("2301.07041")
	graph := sampleGraph(t, meta.ID)

	err := s.PersistExtractionResult(ctx, meta, graph, types.ModeFull, sampleBank(), sampleTerms(), sampleMacros())
	if err != nil {
		t.Fatal(err)
	}

	payload, err := s.ExportPaper(ctx, meta.ID)
	if err != nil {
		t.Fatal(err)
	}

	if payload.Graph.ArxivID != meta.ID || payload.Graph.ExtractorMode != types.ModeFull {
		t.Errorf("graph header = %+v", payload.Graph)
	}
	if payload.Graph.Stats.Nodes != 3 || payload.Graph.Stats.Edges != 3 {
		t.Errorf("stats = %+v", payload.Graph.Stats)
	}

	if payload.DefinitionBank == nil {
		t.Fatal("definition bank missing")
	}
	defs := payload.DefinitionBank.Definitions
	if len(defs) != 2 {
		t.Fatalf("definitions = %d, want 2", len(defs))
	}
	// Sorted by canonical term.
	if defs[0].Term != "group" || defs[1].Term != "union closed family" {
		t.Errorf("terms = %q, %q", defs[0].Term, defs[1].Term)
	}
	if !defs[0].Synthesized {
		t.Error("synthesized flag lost")
	}
	if !reflect.DeepEqual(defs[0].Dependencies, []string{"union closed family"}) {
		t.Errorf("dependencies = %v", defs[0].Dependencies)
	}
	if payload.DefinitionBank.Aliases["uc family"] != "union closed family" {
		t.Errorf("aliases = %v", payload.DefinitionBank.Aliases)
	}

	wantTerms := sampleTerms()
	if !reflect.DeepEqual(payload.ArtifactTerms[thmID], wantTerms[thmID]) {
		t.Errorf("terms for theorem = %v", payload.ArtifactTerms[thmID])
	}
	if !reflect.DeepEqual(payload.LatexMacros, sampleMacros()) {
		t.Errorf("macros = %v", payload.LatexMacros)
	}
}

func TestExportPaperRegexHasNullBank(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	meta := sampleMeta("math/0211159")

	graph := types.NewDocumentGraph(meta.ID, types.ModeRegex)
	if err := graph.AddNode(&types.Artifact{
		ID: thmID, Type: types.ArtifactTheorem, Content: "Statement.",
		Span: types.Span{StartLine: 1, EndLine: 2},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.PersistExtractionResult(ctx, meta, graph, types.ModeRegex, nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	payload, err := s.ExportPaper(ctx, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if payload.DefinitionBank != nil {
		t.Error("regex export carries a definition bank")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"definition_bank":null`) {
		t.Error("definition_bank did not serialize as null")
	}
	if types.ExportFilename(meta.ID) != "arxiv_math_0211159.json" {
		t.Errorf("filename = %s", types.ExportFilename(meta.ID))
	}
}
