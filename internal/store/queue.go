// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pdiddy/arxitex/pkg/types"
)

// EnqueueDiscovered inserts discovered papers into the processing queue and
// returns how many were new. Re-discovering a queued or previously queued
// ID is a no-op, so discovery stays idempotent.
func (s *Store) EnqueueDiscovered(ctx context.Context, metas []types.PaperMeta) (int, error) {
	if len(metas) == 0 {
		return 0, nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO discovery_queue
			(paper_id, title, abstract, comment, primary_category, all_categories_json, authors_json, published_utc, enqueued_at_utc)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing enqueue: %w", err)
	}
	defer stmt.Close()

	added := 0
	now := nowUTC()
	for _, m := range metas {
		categoriesJSON, _ := json.Marshal(m.Categories)
		authorsJSON, _ := json.Marshal(m.Authors)
		published := ""
		if !m.Published.IsZero() {
			published = m.Published.UTC().Format(time.RFC3339)
		}
		res, err := stmt.ExecContext(ctx,
			m.ID, m.Title, m.Abstract, m.Comment, m.PrimaryCategory,
			string(categoriesJSON), string(authorsJSON), published, now)
		if err != nil {
			return 0, fmt.Errorf("enqueueing %s: %w", m.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// DequeueBatch returns up to n queued papers in enqueue order. Rows stay in
// the queue until RemoveFromQueue or MarkSkipped, so an interrupted run
// picks them up again.
func (s *Store) DequeueBatch(ctx context.Context, n int) ([]types.PaperMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT paper_id, title, abstract, comment, primary_category, all_categories_json, authors_json, published_utc
			FROM discovery_queue ORDER BY enqueued_at_utc, paper_id LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying queue: %w", err)
	}
	defer rows.Close()

	var metas []types.PaperMeta
	for rows.Next() {
		var (
			m              types.PaperMeta
			categoriesJSON sql.NullString
			authorsJSON    sql.NullString
			published      string
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Abstract, &m.Comment, &m.PrimaryCategory,
			&categoriesJSON, &authorsJSON, &published); err != nil {
			return nil, fmt.Errorf("scanning queue row: %w", err)
		}
		if categoriesJSON.Valid {
			json.Unmarshal([]byte(categoriesJSON.String), &m.Categories)
		}
		if authorsJSON.Valid {
			json.Unmarshal([]byte(authorsJSON.String), &m.Authors)
		}
		if published != "" {
			m.Published, _ = time.Parse(time.RFC3339, published)
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// QueueSnapshot returns the entire queue in enqueue order. SQLite reads a
// negative LIMIT as unlimited.
func (s *Store) QueueSnapshot(ctx context.Context) ([]types.PaperMeta, error) {
	return s.DequeueBatch(ctx, -1)
}

// RemoveFromQueue drops a paper from the discovery queue after it has been
// processed or has failed terminally.
func (s *Store) RemoveFromQueue(ctx context.Context, paperID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM discovery_queue WHERE paper_id = ?`, paperID); err != nil {
		return fmt.Errorf("removing %s from queue: %w", paperID, err)
	}
	return nil
}

// MarkSkipped records a pre-processing skip decision and removes the paper
// from the queue in the same transaction.
func (s *Store) MarkSkipped(ctx context.Context, paperID, reason string) error {
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
		`INSERT INTO skipped_papers (paper_id, reason, skipped_at_utc) VALUES (?, ?, ?)
			ON CONFLICT(paper_id) DO UPDATE SET reason = excluded.reason, skipped_at_utc = excluded.skipped_at_utc`,
		paperID, reason, nowUTC()); err != nil {
		return fmt.Errorf("recording skip: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM discovery_queue WHERE paper_id = ?`, paperID); err != nil {
		return fmt.Errorf("removing %s from queue: %w", paperID, err)
	}
	return tx.Commit()
}

// SkippedReason returns the recorded skip reason for a paper, if any.
func (s *Store) SkippedReason(ctx context.Context, paperID string) (string, bool, error) {
	var reason string
	err := s.db.QueryRowContext(ctx,
		`SELECT reason FROM skipped_papers WHERE paper_id = ?`, paperID).Scan(&reason)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading skip reason: %w", err)
	}
	return reason, true, nil
}

// DiscoveryCursor tracks backfill progress for one search query: the month
// bucket currently being drained and the oldest published timestamp seen.
type DiscoveryCursor struct {
	Query           string
	Year            int
	Month           int
	OldestPublished time.Time
}

// LoadDiscoveryCursor returns the persisted cursor for a query, with
// found=false when the query has never been run.
func (s *Store) LoadDiscoveryCursor(ctx context.Context, query string) (DiscoveryCursor, bool, error) {
	var (
		c      = DiscoveryCursor{Query: query}
		oldest sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT backfill_year, backfill_month, oldest_published_utc
			FROM discovery_state WHERE query = ?`, query,
	).Scan(&c.Year, &c.Month, &oldest)
	if err == sql.ErrNoRows {
		return DiscoveryCursor{}, false, nil
	}
	if err != nil {
		return DiscoveryCursor{}, false, fmt.Errorf("reading discovery cursor: %w", err)
	}
	if oldest.Valid && oldest.String != "" {
		c.OldestPublished, _ = time.Parse(time.RFC3339, oldest.String)
	}
	return c, true, nil
}

// SaveDiscoveryCursor upserts the backfill cursor for a query.
func (s *Store) SaveDiscoveryCursor(ctx context.Context, c DiscoveryCursor) error {
	oldest := ""
	if !c.OldestPublished.IsZero() {
		oldest = c.OldestPublished.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO discovery_state (query, backfill_year, backfill_month, oldest_published_utc)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(query) DO UPDATE SET
				backfill_year = excluded.backfill_year,
				backfill_month = excluded.backfill_month,
				oldest_published_utc = excluded.oldest_published_utc`,
		c.Query, c.Year, c.Month, oldest)
	if err != nil {
		return fmt.Errorf("saving discovery cursor: %w", err)
	}
	return nil
}
