// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists papers, document graphs, definition banks, and
// workflow state in a single SQLite database.
// Implements: prd007-store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/arxitex/internal/defbank"
	"github.com/pdiddy/arxitex/pkg/types"
)

// dsnOptions enables WAL journaling, foreign keys, normal synchronous mode,
// and a busy timeout for concurrent writers.
const dsnOptions = "?_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL&_busy_timeout=5000"

// schemaVersion is bumped whenever EnsureSchema gains a migration.
const schemaVersion = 2

// Store manages the arxitex SQLite database. Each transactional call
// acquires its own connection from the pool.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at cfg.DBPath and ensures the schema
// is current.
func Open(cfg types.StoreConfig) (*Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("store: db path is required")
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates any missing tables and applies structural
// migrations. It is idempotent and safe to call at every boot.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			paper_id TEXT PRIMARY KEY,
			title TEXT,
			abstract TEXT,
			comment TEXT,
			primary_category TEXT,
			all_categories_json TEXT,
			authors_json TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS paper_ingestion_state (
			paper_id TEXT NOT NULL REFERENCES papers(paper_id),
			mode TEXT NOT NULL,
			stage TEXT NOT NULL,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			updated_at_utc TEXT NOT NULL,
			PRIMARY KEY (paper_id, mode)
		)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			paper_id TEXT NOT NULL REFERENCES papers(paper_id) ON DELETE CASCADE,
			artifact_id TEXT NOT NULL,
			artifact_type TEXT NOT NULL,
			env_name TEXT,
			label TEXT,
			title TEXT,
			content_tex TEXT,
			proof_tex TEXT,
			line_start INTEGER,
			line_end INTEGER,
			col_start INTEGER,
			col_end INTEGER,
			PRIMARY KEY (paper_id, artifact_id)
		)`,
		`CREATE TABLE IF NOT EXISTS artifact_edges (
			paper_id TEXT NOT NULL,
			edge_kind TEXT NOT NULL,
			source_artifact_id TEXT NOT NULL,
			target_artifact_id TEXT NOT NULL,
			reference_type TEXT,
			dependency_type TEXT,
			context TEXT,
			justification TEXT,
			PRIMARY KEY (paper_id, edge_kind, source_artifact_id, target_artifact_id)
		)`,
		`CREATE TABLE IF NOT EXISTS definitions (
			paper_id TEXT NOT NULL,
			term_canonical TEXT NOT NULL,
			term_original TEXT,
			definition_text TEXT NOT NULL,
			is_synthesized INTEGER NOT NULL DEFAULT 0,
			source_artifact_id TEXT,
			PRIMARY KEY (paper_id, term_canonical)
		)`,
		`CREATE TABLE IF NOT EXISTS definition_aliases (
			paper_id TEXT NOT NULL,
			term_canonical TEXT NOT NULL,
			alias TEXT NOT NULL,
			PRIMARY KEY (paper_id, term_canonical, alias)
		)`,
		`CREATE TABLE IF NOT EXISTS definition_dependencies (
			paper_id TEXT NOT NULL,
			term_canonical TEXT NOT NULL,
			depends_on_term_canonical TEXT NOT NULL,
			PRIMARY KEY (paper_id, term_canonical, depends_on_term_canonical)
		)`,
		`CREATE TABLE IF NOT EXISTS artifact_terms (
			paper_id TEXT NOT NULL,
			artifact_id TEXT NOT NULL,
			term_canonical TEXT NOT NULL,
			term_raw TEXT,
			ord INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (paper_id, artifact_id, term_canonical)
		)`,
		`CREATE TABLE IF NOT EXISTS artifact_definition_requirements (
			paper_id TEXT NOT NULL,
			artifact_id TEXT NOT NULL,
			term_canonical TEXT NOT NULL,
			ord INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (paper_id, artifact_id, term_canonical)
		)`,
		`CREATE TABLE IF NOT EXISTS paper_macros (
			paper_id TEXT NOT NULL,
			name TEXT NOT NULL,
			replacement TEXT NOT NULL,
			PRIMARY KEY (paper_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS paper_citations (
			paper_id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			source_work_id TEXT,
			citation_count INTEGER,
			last_fetched_at_utc TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS external_reference_arxiv_matches (
			paper_id TEXT NOT NULL,
			external_artifact_id TEXT NOT NULL,
			matched_arxiv_id TEXT,
			match_method TEXT NOT NULL,
			extracted_title TEXT,
			extracted_authors_json TEXT,
			matched_title TEXT,
			matched_authors_json TEXT,
			title_score REAL,
			author_overlap REAL,
			arxiv_query TEXT,
			last_matched_at_utc TEXT NOT NULL,
			PRIMARY KEY (paper_id, external_artifact_id)
		)`,
		`CREATE TABLE IF NOT EXISTS external_reference_arxiv_search_cache (
			cache_key TEXT PRIMARY KEY,
			matched_arxiv_id TEXT,
			matched_title TEXT,
			matched_authors_json TEXT,
			title_score REAL,
			author_overlap REAL,
			arxiv_query TEXT,
			last_fetched_at_utc TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS discovery_queue (
			paper_id TEXT PRIMARY KEY,
			title TEXT,
			abstract TEXT,
			comment TEXT,
			primary_category TEXT,
			all_categories_json TEXT,
			authors_json TEXT,
			published_utc TEXT,
			enqueued_at_utc TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS skipped_papers (
			paper_id TEXT PRIMARY KEY,
			reason TEXT NOT NULL,
			skipped_at_utc TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS discovery_state (
			query TEXT PRIMARY KEY,
			backfill_year INTEGER,
			backfill_month INTEGER,
			oldest_published_utc TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_paper ON artifacts(paper_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_paper ON artifact_edges(paper_id)`,
		`CREATE TABLE IF NOT EXISTS arxitex_schema_version (
			version INTEGER NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	return s.migrate(ctx)
}

// migrate brings older databases up to the current schema version.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM arxitex_schema_version`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		// Fresh database, or one predating the version table. The column
		// check below is a no-op on a fresh schema.
		if err := s.dropCitationStaleColumn(ctx); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO arxitex_schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("recording schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("reading schema version: %w", err)
	case version >= schemaVersion:
		return nil
	}

	if version < 2 {
		if err := s.dropCitationStaleColumn(ctx); err != nil {
			return err
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE arxitex_schema_version SET version = ?`, schemaVersion); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	return nil
}

// dropCitationStaleColumn removes the version-1 is_stale flag from
// paper_citations. SQLite drops a column by rename, copy, and swap.
func (s *Store) dropCitationStaleColumn(ctx context.Context) error {
	var hasColumn int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM pragma_table_info('paper_citations') WHERE name = 'is_stale'`,
	).Scan(&hasColumn)
	if err != nil {
		return fmt.Errorf("inspecting paper_citations: %w", err)
	}
	if hasColumn == 0 {
		return nil
	}

	statements := []string{
		`ALTER TABLE paper_citations RENAME TO paper_citations_legacy`,
		`CREATE TABLE paper_citations (
			paper_id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			source_work_id TEXT,
			citation_count INTEGER,
			last_fetched_at_utc TEXT NOT NULL
		)`,
		`INSERT INTO paper_citations (paper_id, source, source_work_id, citation_count, last_fetched_at_utc)
			SELECT paper_id, source, source_work_id, citation_count, last_fetched_at_utc
			FROM paper_citations_legacy`,
		`DROP TABLE paper_citations_legacy`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating paper_citations: %w", err)
		}
	}
	return nil
}

// IngestionState is one row of the per-paper, per-mode state machine.
type IngestionState struct {
	PaperID   string
	Mode      types.Mode
	Stage     types.IngestionStage
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

// State returns the ingestion state for a paper and mode, with found=false
// when the paper has never been processed in that mode.
func (s *Store) State(ctx context.Context, paperID string, mode types.Mode) (IngestionState, bool, error) {
	var (
		st        = IngestionState{PaperID: paperID, Mode: mode}
		stage     string
		lastError sql.NullString
		updated   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT stage, attempt_count, last_error, updated_at_utc
			FROM paper_ingestion_state WHERE paper_id = ? AND mode = ?`,
		paperID, string(mode),
	).Scan(&stage, &st.Attempts, &lastError, &updated)
	if err == sql.ErrNoRows {
		return IngestionState{}, false, nil
	}
	if err != nil {
		return IngestionState{}, false, fmt.Errorf("reading ingestion state: %w", err)
	}
	st.Stage = types.IngestionStage(stage)
	st.LastError = lastError.String
	st.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return st, true, nil
}

// Paper returns the stored metadata for a paper. Published is not kept on
// the papers table, so it is zero here; the discovery queue carries it.
func (s *Store) Paper(ctx context.Context, paperID string) (types.PaperMeta, bool, error) {
	var (
		meta                              = types.PaperMeta{ID: paperID}
		title, abstract, comment, primary sql.NullString
		categoriesJSON, authorsJSON       sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT title, abstract, comment, primary_category, all_categories_json, authors_json
			FROM papers WHERE paper_id = ?`, paperID,
	).Scan(&title, &abstract, &comment, &primary, &categoriesJSON, &authorsJSON)
	if err == sql.ErrNoRows {
		return types.PaperMeta{}, false, nil
	}
	if err != nil {
		return types.PaperMeta{}, false, fmt.Errorf("reading paper: %w", err)
	}
	meta.Title = title.String
	meta.Abstract = abstract.String
	meta.Comment = comment.String
	meta.PrimaryCategory = primary.String
	if categoriesJSON.Valid && categoriesJSON.String != "" {
		_ = json.Unmarshal([]byte(categoriesJSON.String), &meta.Categories)
	}
	if authorsJSON.Valid && authorsJSON.String != "" {
		_ = json.Unmarshal([]byte(authorsJSON.String), &meta.Authors)
	}
	return meta, true, nil
}

// PaperIDs lists every stored paper identifier in sorted order.
func (s *Store) PaperIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT paper_id FROM papers ORDER BY paper_id`)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning paper row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkProcessing records that a paper's pipeline has started, so an
// interrupted run is visible as stage=processing. The attempt counter
// increments only on the transition into processing; re-asserting the
// stage mid-run keeps the count.
func (s *Store) MarkProcessing(ctx context.Context, meta types.PaperMeta, mode types.Mode) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertPaper(ctx, tx, meta); err != nil {
		return err
	}
	if err := setProcessing(ctx, tx, meta.ID, mode); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkFailed records a classified failure for a paper and mode in a
// best-effort transaction of its own. The attempt count is untouched.
func (s *Store) MarkFailed(ctx context.Context, paperID string, mode types.Mode, cause error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO papers (paper_id) VALUES (?)`, paperID); err != nil {
		return fmt.Errorf("inserting paper stub: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO paper_ingestion_state (paper_id, mode, stage, attempt_count, last_error, updated_at_utc)
			VALUES (?, ?, ?, 1, ?, ?)
			ON CONFLICT(paper_id, mode) DO UPDATE SET
				stage = excluded.stage,
				last_error = excluded.last_error,
				updated_at_utc = excluded.updated_at_utc`,
		paperID, string(mode), string(types.StageFailed), cause.Error(), nowUTC())
	if err != nil {
		return fmt.Errorf("marking paper failed: %w", err)
	}
	return tx.Commit()
}

// PersistExtractionResult writes one paper's processing output atomically:
// paper metadata, ingestion state, artifacts, edges, macros, and, for defs
// and full runs, the definition bank tables. Artifact, edge, and definition
// rows are replaced wholesale so stale rows from an interrupted earlier run
// cannot survive. On failure a second best-effort transaction marks the
// state failed with the raw error message.
func (s *Store) PersistExtractionResult(ctx context.Context, meta types.PaperMeta, graph *types.DocumentGraph, mode types.Mode, bank *defbank.Bank, artifactTerms map[string][]string, macros map[string]string) error {
	if err := s.persistTx(ctx, meta, graph, mode, bank, artifactTerms, macros); err != nil {
		// Best effort: the persist error is the one worth reporting.
		_ = s.MarkFailed(ctx, meta.ID, mode, err)
		return err
	}
	return nil
}

func (s *Store) persistTx(ctx context.Context, meta types.PaperMeta, graph *types.DocumentGraph, mode types.Mode, bank *defbank.Bank, artifactTerms map[string][]string, macros map[string]string) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertPaper(ctx, tx, meta); err != nil {
		return err
	}
	if err := setProcessing(ctx, tx, meta.ID, mode); err != nil {
		return err
	}
	if err := replaceArtifacts(ctx, tx, meta.ID, graph); err != nil {
		return err
	}
	if err := replaceEdges(ctx, tx, meta.ID, graph); err != nil {
		return err
	}
	if err := replaceMacros(ctx, tx, meta.ID, macros); err != nil {
		return err
	}

	if (mode == types.ModeDefs || mode == types.ModeFull) && bank != nil {
		if err := replaceDefinitions(ctx, tx, meta.ID, graph, bank, artifactTerms); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE paper_ingestion_state SET stage = ?, last_error = NULL, updated_at_utc = ?
			WHERE paper_id = ? AND mode = ?`,
		string(types.StageComplete), nowUTC(), meta.ID, string(mode)); err != nil {
		return fmt.Errorf("marking paper complete: %w", err)
	}
	return tx.Commit()
}

func upsertPaper(ctx context.Context, tx *sql.Tx, meta types.PaperMeta) error {
	categoriesJSON, _ := json.Marshal(meta.Categories)
	authorsJSON, _ := json.Marshal(meta.Authors)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO papers (paper_id, title, abstract, comment, primary_category, all_categories_json, authors_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(paper_id) DO UPDATE SET
				title = excluded.title,
				abstract = excluded.abstract,
				comment = excluded.comment,
				primary_category = excluded.primary_category,
				all_categories_json = excluded.all_categories_json,
				authors_json = excluded.authors_json`,
		meta.ID, meta.Title, meta.Abstract, meta.Comment, meta.PrimaryCategory,
		string(categoriesJSON), string(authorsJSON))
	if err != nil {
		return fmt.Errorf("upserting paper: %w", err)
	}
	return nil
}

func setProcessing(ctx context.Context, tx *sql.Tx, paperID string, mode types.Mode) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO paper_ingestion_state (paper_id, mode, stage, attempt_count, last_error, updated_at_utc)
			VALUES (?, ?, ?, 1, NULL, ?)
			ON CONFLICT(paper_id, mode) DO UPDATE SET
				attempt_count = CASE WHEN paper_ingestion_state.stage = ?
					THEN paper_ingestion_state.attempt_count
					ELSE paper_ingestion_state.attempt_count + 1 END,
				stage = excluded.stage,
				last_error = NULL,
				updated_at_utc = excluded.updated_at_utc`,
		paperID, string(mode), string(types.StageProcessing), nowUTC(),
		string(types.StageProcessing))
	if err != nil {
		return fmt.Errorf("marking paper processing: %w", err)
	}
	return nil
}

func replaceArtifacts(ctx context.Context, tx *sql.Tx, paperID string, graph *types.DocumentGraph) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM artifacts WHERE paper_id = ?`, paperID); err != nil {
		return fmt.Errorf("deleting old artifacts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO artifacts (paper_id, artifact_id, artifact_type, env_name, label, title,
			content_tex, proof_tex, line_start, line_end, col_start, col_end)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing artifact insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range graph.Nodes {
		_, err := stmt.ExecContext(ctx,
			paperID, a.ID, string(a.Type), a.Env, a.Label, a.Title,
			a.Content, a.Proof,
			a.Span.StartLine, a.Span.EndLine, a.Span.StartCol, a.Span.EndCol)
		if err != nil {
			return fmt.Errorf("inserting artifact %s: %w", a.ID, err)
		}
	}
	return nil
}

func replaceEdges(ctx context.Context, tx *sql.Tx, paperID string, graph *types.DocumentGraph) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM artifact_edges WHERE paper_id = ?`, paperID); err != nil {
		return fmt.Errorf("deleting old edges: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO artifact_edges (paper_id, edge_kind, source_artifact_id, target_artifact_id,
			reference_type, dependency_type, context, justification)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing edge insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range graph.Edges {
		_, err := stmt.ExecContext(ctx,
			paperID, string(e.Kind), e.SourceID, e.TargetID,
			string(e.RefType), string(e.DepType), e.Context, e.Justification)
		if err != nil {
			return fmt.Errorf("inserting edge %s->%s: %w", e.SourceID, e.TargetID, err)
		}
	}
	return nil
}

func replaceMacros(ctx context.Context, tx *sql.Tx, paperID string, macros map[string]string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM paper_macros WHERE paper_id = ?`, paperID); err != nil {
		return fmt.Errorf("deleting old macros: %w", err)
	}
	for _, name := range sortedKeys(macros) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO paper_macros (paper_id, name, replacement) VALUES (?, ?, ?)`,
			paperID, name, macros[name]); err != nil {
			return fmt.Errorf("inserting macro %s: %w", name, err)
		}
	}
	return nil
}

// replaceDefinitions rewrites the five definition-bank tables for a paper.
// Requirement rows only reference terms that resolve in the bank, so every
// requirement joins back to a definitions row.
func replaceDefinitions(ctx context.Context, tx *sql.Tx, paperID string, graph *types.DocumentGraph, bank *defbank.Bank, artifactTerms map[string][]string) error {
	for _, table := range []string{
		"definitions", "definition_aliases", "definition_dependencies",
		"artifact_terms", "artifact_definition_requirements",
	} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE paper_id = ?`, paperID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	snap := bank.Snapshot()
	for _, d := range snap.Definitions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO definitions (paper_id, term_canonical, term_original, definition_text, is_synthesized, source_artifact_id)
				VALUES (?, ?, ?, ?, ?, ?)`,
			paperID, d.Term, d.TermOriginal, d.Text, d.Synthesized, d.SourceArtifactID); err != nil {
			return fmt.Errorf("inserting definition %q: %w", d.Term, err)
		}
		for _, alias := range d.Aliases {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO definition_aliases (paper_id, term_canonical, alias) VALUES (?, ?, ?)`,
				paperID, d.Term, alias); err != nil {
				return fmt.Errorf("inserting alias %q: %w", alias, err)
			}
		}
		for _, dep := range d.Dependencies {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO definition_dependencies (paper_id, term_canonical, depends_on_term_canonical) VALUES (?, ?, ?)`,
				paperID, d.Term, dep); err != nil {
				return fmt.Errorf("inserting dependency %q: %w", dep, err)
			}
		}
	}

	for _, a := range graph.Nodes {
		terms := artifactTerms[a.ID]
		for i, raw := range terms {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO artifact_terms (paper_id, artifact_id, term_canonical, term_raw, ord)
					VALUES (?, ?, ?, ?, ?)`,
				paperID, a.ID, defbank.Canonical(raw), raw, i); err != nil {
				return fmt.Errorf("inserting artifact term %q: %w", raw, err)
			}
		}

		reqs := a.Prerequisites
		if len(reqs) == 0 && len(terms) > 0 {
			for _, d := range bank.FindMany(terms) {
				reqs = append(reqs, types.TermDefinition{Term: d.Term, Definition: d.Text})
			}
		}
		for i, r := range reqs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO artifact_definition_requirements (paper_id, artifact_id, term_canonical, ord)
					VALUES (?, ?, ?, ?)`,
				paperID, a.ID, r.Term, i); err != nil {
				return fmt.Errorf("inserting requirement %q: %w", r.Term, err)
			}
		}
	}
	return nil
}

// LoadDocumentGraph reconstructs a paper's graph from the artifacts and
// edge tables. With includePrereqs, artifact prerequisite maps are filled
// from the requirement rows joined to definitions.
func (s *Store) LoadDocumentGraph(ctx context.Context, paperID string, includePrereqs bool) (*types.DocumentGraph, error) {
	mode := types.ModeRegex
	var modeStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT mode FROM paper_ingestion_state WHERE paper_id = ?
			ORDER BY updated_at_utc DESC LIMIT 1`, paperID).Scan(&modeStr)
	if err == nil {
		mode = types.Mode(modeStr)
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("reading ingestion state: %w", err)
	}

	graph := types.NewDocumentGraph(paperID, mode)

	rows, err := s.db.QueryContext(ctx,
		`SELECT artifact_id, artifact_type, env_name, label, title, content_tex, proof_tex,
			line_start, line_end, col_start, col_end
			FROM artifacts WHERE paper_id = ?
			ORDER BY CASE WHEN artifact_type = ? THEN 1 ELSE 0 END, line_start, artifact_id`,
		paperID, string(types.ArtifactExternalReference))
	if err != nil {
		return nil, fmt.Errorf("querying artifacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a       types.Artifact
			artType string
		)
		if err := rows.Scan(&a.ID, &artType, &a.Env, &a.Label, &a.Title, &a.Content, &a.Proof,
			&a.Span.StartLine, &a.Span.EndLine, &a.Span.StartCol, &a.Span.EndCol); err != nil {
			return nil, fmt.Errorf("scanning artifact row: %w", err)
		}
		a.Type = types.ArtifactType(artType)
		if err := graph.AddNode(&a); err != nil {
			return nil, fmt.Errorf("rebuilding graph: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating artifacts: %w", err)
	}
	if len(graph.Nodes) == 0 {
		return nil, fmt.Errorf("no artifacts stored for paper %s", paperID)
	}

	edgeRows, err := s.db.QueryContext(ctx,
		`SELECT edge_kind, source_artifact_id, target_artifact_id,
			reference_type, dependency_type, context, justification
			FROM artifact_edges WHERE paper_id = ? ORDER BY rowid`, paperID)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var (
			e                      types.Edge
			kind, refType, depType string
		)
		if err := edgeRows.Scan(&kind, &e.SourceID, &e.TargetID,
			&refType, &depType, &e.Context, &e.Justification); err != nil {
			return nil, fmt.Errorf("scanning edge row: %w", err)
		}
		e.Kind = types.EdgeKind(kind)
		e.RefType = types.ReferenceType(refType)
		e.DepType = types.DependencyType(depType)
		if err := graph.AddEdge(e); err != nil {
			return nil, fmt.Errorf("rebuilding edge %s->%s: %w", e.SourceID, e.TargetID, err)
		}
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}

	if includePrereqs {
		if err := s.loadPrerequisites(ctx, paperID, graph); err != nil {
			return nil, err
		}
	}
	return graph, nil
}

func (s *Store) loadPrerequisites(ctx context.Context, paperID string, graph *types.DocumentGraph) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.artifact_id, r.term_canonical, d.definition_text
			FROM artifact_definition_requirements r
			JOIN definitions d ON d.paper_id = r.paper_id AND d.term_canonical = r.term_canonical
			WHERE r.paper_id = ?
			ORDER BY r.artifact_id, r.ord`, paperID)
	if err != nil {
		return fmt.Errorf("querying requirements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var artifactID, term, text string
		if err := rows.Scan(&artifactID, &term, &text); err != nil {
			return fmt.Errorf("scanning requirement row: %w", err)
		}
		a, ok := graph.Node(artifactID)
		if !ok {
			continue
		}
		a.Prerequisites = append(a.Prerequisites, types.TermDefinition{Term: term, Definition: text})
	}
	return rows.Err()
}

// nowUTC formats without sub-second precision so stored timestamps order
// lexicographically.
func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
