// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pdiddy/arxitex/internal/arxiv"
)

// PaperCitation is one citation-count row fetched from a scholarly index.
// Rows are keyed by version-stripped arXiv IDs.
type PaperCitation struct {
	PaperID       string
	Source        string
	SourceWorkID  string
	CitationCount int
	FetchedAt     time.Time
}

// Fresh reports whether the row was fetched within ttlDays.
func (c PaperCitation) Fresh(ttlDays int) bool {
	return time.Since(c.FetchedAt) < time.Duration(ttlDays)*24*time.Hour
}

// PaperCitationRecord returns the stored citation row for a paper, with
// found=false when the paper has never been looked up.
func (s *Store) PaperCitationRecord(ctx context.Context, paperID string) (PaperCitation, bool, error) {
	var (
		c       = PaperCitation{PaperID: arxiv.StripVersion(paperID)}
		workID  sql.NullString
		count   sql.NullInt64
		fetched string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT source, source_work_id, citation_count, last_fetched_at_utc
			FROM paper_citations WHERE paper_id = ?`, c.PaperID,
	).Scan(&c.Source, &workID, &count, &fetched)
	if err == sql.ErrNoRows {
		return PaperCitation{}, false, nil
	}
	if err != nil {
		return PaperCitation{}, false, fmt.Errorf("reading citation row: %w", err)
	}
	c.SourceWorkID = workID.String
	c.CitationCount = int(count.Int64)
	c.FetchedAt, _ = time.Parse(time.RFC3339, fetched)
	return c, true, nil
}

// UpsertPaperCitation stores a citation-count result. The paper ID is
// version-stripped so repeat fetches of different versions collapse to one
// row.
func (s *Store) UpsertPaperCitation(ctx context.Context, c PaperCitation) error {
	fetched := c.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO paper_citations (paper_id, source, source_work_id, citation_count, last_fetched_at_utc)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(paper_id) DO UPDATE SET
				source = excluded.source,
				source_work_id = excluded.source_work_id,
				citation_count = excluded.citation_count,
				last_fetched_at_utc = excluded.last_fetched_at_utc`,
		arxiv.StripVersion(c.PaperID), c.Source, c.SourceWorkID, c.CitationCount,
		fetched.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting citation row: %w", err)
	}
	return nil
}

// ExternalMatch records the arXiv-match decision for one external
// reference, including misses so they are not retried until the TTL lapses.
type ExternalMatch struct {
	PaperID          string
	ArtifactID       string
	MatchedArxivID   string
	Method           string
	ExtractedTitle   string
	ExtractedAuthors []string
	MatchedTitle     string
	MatchedAuthors   []string
	TitleScore       float64
	AuthorOverlap    float64
	Query            string
	MatchedAt        time.Time
}

// Fresh reports whether the decision was made within ttlDays.
func (m ExternalMatch) Fresh(ttlDays int) bool {
	return time.Since(m.MatchedAt) < time.Duration(ttlDays)*24*time.Hour
}

// ExternalMatchRecord returns the stored match decision for one external
// reference artifact.
func (s *Store) ExternalMatchRecord(ctx context.Context, paperID, artifactID string) (ExternalMatch, bool, error) {
	var (
		m = ExternalMatch{PaperID: paperID, ArtifactID: artifactID}

		matchedID, extractedTitle, matchedTitle sql.NullString
		extractedAuthors, matchedAuthors        sql.NullString
		titleScore, authorOverlap               sql.NullFloat64
		query                                   sql.NullString
		matchedAt                               string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT matched_arxiv_id, match_method, extracted_title, extracted_authors_json,
			matched_title, matched_authors_json, title_score, author_overlap, arxiv_query, last_matched_at_utc
			FROM external_reference_arxiv_matches
			WHERE paper_id = ? AND external_artifact_id = ?`,
		paperID, artifactID,
	).Scan(&matchedID, &m.Method, &extractedTitle, &extractedAuthors,
		&matchedTitle, &matchedAuthors, &titleScore, &authorOverlap, &query, &matchedAt)
	if err == sql.ErrNoRows {
		return ExternalMatch{}, false, nil
	}
	if err != nil {
		return ExternalMatch{}, false, fmt.Errorf("reading external match: %w", err)
	}
	m.MatchedArxivID = matchedID.String
	m.ExtractedTitle = extractedTitle.String
	m.MatchedTitle = matchedTitle.String
	m.TitleScore = titleScore.Float64
	m.AuthorOverlap = authorOverlap.Float64
	m.Query = query.String
	if extractedAuthors.Valid {
		json.Unmarshal([]byte(extractedAuthors.String), &m.ExtractedAuthors)
	}
	if matchedAuthors.Valid {
		json.Unmarshal([]byte(matchedAuthors.String), &m.MatchedAuthors)
	}
	m.MatchedAt, _ = time.Parse(time.RFC3339, matchedAt)
	return m, true, nil
}

// UpsertExternalMatch stores a match decision for an external reference.
func (s *Store) UpsertExternalMatch(ctx context.Context, m ExternalMatch) error {
	matchedAt := m.MatchedAt
	if matchedAt.IsZero() {
		matchedAt = time.Now()
	}
	extractedAuthors, _ := json.Marshal(m.ExtractedAuthors)
	matchedAuthors, _ := json.Marshal(m.MatchedAuthors)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO external_reference_arxiv_matches
			(paper_id, external_artifact_id, matched_arxiv_id, match_method,
			extracted_title, extracted_authors_json, matched_title, matched_authors_json,
			title_score, author_overlap, arxiv_query, last_matched_at_utc)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(paper_id, external_artifact_id) DO UPDATE SET
				matched_arxiv_id = excluded.matched_arxiv_id,
				match_method = excluded.match_method,
				extracted_title = excluded.extracted_title,
				extracted_authors_json = excluded.extracted_authors_json,
				matched_title = excluded.matched_title,
				matched_authors_json = excluded.matched_authors_json,
				title_score = excluded.title_score,
				author_overlap = excluded.author_overlap,
				arxiv_query = excluded.arxiv_query,
				last_matched_at_utc = excluded.last_matched_at_utc`,
		m.PaperID, m.ArtifactID, m.MatchedArxivID, m.Method,
		m.ExtractedTitle, string(extractedAuthors), m.MatchedTitle, string(matchedAuthors),
		m.TitleScore, m.AuthorOverlap, m.Query,
		matchedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting external match: %w", err)
	}
	return nil
}

// SearchCacheEntry caches one arXiv title/author search outcome, shared
// across papers so identical references are resolved once.
type SearchCacheEntry struct {
	Key            string
	MatchedArxivID string
	MatchedTitle   string
	MatchedAuthors []string
	TitleScore     float64
	AuthorOverlap  float64
	Query          string
	FetchedAt      time.Time
}

// Fresh reports whether the entry was fetched within ttlDays.
func (e SearchCacheEntry) Fresh(ttlDays int) bool {
	return time.Since(e.FetchedAt) < time.Duration(ttlDays)*24*time.Hour
}

// SearchCacheLookup returns the cached outcome for a canonical query hash.
func (s *Store) SearchCacheLookup(ctx context.Context, key string) (SearchCacheEntry, bool, error) {
	var (
		e = SearchCacheEntry{Key: key}

		matchedID, matchedTitle, authors, query sql.NullString
		titleScore, authorOverlap               sql.NullFloat64
		fetched                                 string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT matched_arxiv_id, matched_title, matched_authors_json, title_score, author_overlap, arxiv_query, last_fetched_at_utc
			FROM external_reference_arxiv_search_cache WHERE cache_key = ?`, key,
	).Scan(&matchedID, &matchedTitle, &authors, &titleScore, &authorOverlap, &query, &fetched)
	if err == sql.ErrNoRows {
		return SearchCacheEntry{}, false, nil
	}
	if err != nil {
		return SearchCacheEntry{}, false, fmt.Errorf("reading search cache: %w", err)
	}
	e.MatchedArxivID = matchedID.String
	e.MatchedTitle = matchedTitle.String
	e.TitleScore = titleScore.Float64
	e.AuthorOverlap = authorOverlap.Float64
	e.Query = query.String
	if authors.Valid {
		json.Unmarshal([]byte(authors.String), &e.MatchedAuthors)
	}
	e.FetchedAt, _ = time.Parse(time.RFC3339, fetched)
	return e, true, nil
}

// UpsertSearchCache stores a search outcome under its canonical query hash.
func (s *Store) UpsertSearchCache(ctx context.Context, e SearchCacheEntry) error {
	fetched := e.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}
	authors, _ := json.Marshal(e.MatchedAuthors)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO external_reference_arxiv_search_cache
			(cache_key, matched_arxiv_id, matched_title, matched_authors_json, title_score, author_overlap, arxiv_query, last_fetched_at_utc)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(cache_key) DO UPDATE SET
				matched_arxiv_id = excluded.matched_arxiv_id,
				matched_title = excluded.matched_title,
				matched_authors_json = excluded.matched_authors_json,
				title_score = excluded.title_score,
				author_overlap = excluded.author_overlap,
				arxiv_query = excluded.arxiv_query,
				last_fetched_at_utc = excluded.last_fetched_at_utc`,
		e.Key, e.MatchedArxivID, e.MatchedTitle, string(authors),
		e.TitleScore, e.AuthorOverlap, e.Query,
		fetched.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting search cache: %w", err)
	}
	return nil
}
