// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pdiddy/arxitex/internal/arxiv"
	"github.com/pdiddy/arxitex/internal/store"
)

const (
	// discoveryPageSize is the arXiv page size used while paginating.
	discoveryPageSize = 100

	// backfillFloorYear stops the month walk before arXiv existed.
	backfillFloorYear = 1991
)

// Discover searches newest-first and enqueues papers until target new ones
// are added or the query is exhausted. The oldest published timestamp seen is
// persisted per query, and later runs bound the search to
// submittedDate:[000001010000 TO <cursor>] so pages already walked are not
// fetched again. Per prd008-workflow R1.
func (r *Runner) Discover(ctx context.Context, query string, target int, w io.Writer) (int, error) {
	if target <= 0 {
		target = discoveryPageSize
	}

	cur, found, err := r.store.LoadDiscoveryCursor(ctx, query)
	if err != nil {
		return 0, err
	}
	if !found {
		cur = store.DiscoveryCursor{Query: query}
	}

	effective := query
	if !cur.OldestPublished.IsZero() {
		effective = fmt.Sprintf("(%s) AND submittedDate:[000001010000 TO %s]",
			query, cursorStamp(cur.OldestPublished))
	}

	added := 0
	oldest := cur.OldestPublished
	for start := 0; added < target; start += discoveryPageSize {
		feed, err := r.searcher.Search(ctx, arxiv.SearchParams{
			Query:      effective,
			Start:      start,
			MaxResults: discoveryPageSize,
			SortBy:     "submittedDate",
		})
		if err != nil {
			return added, fmt.Errorf("arXiv search: %w", err)
		}
		if len(feed.Papers) == 0 {
			break
		}

		n, err := r.store.EnqueueDiscovered(ctx, feed.Papers)
		if err != nil {
			return added, err
		}
		added += n
		fmt.Fprintf(w, "  %d new of %d scanned\n", n, len(feed.Papers))

		for _, p := range feed.Papers {
			if !p.Published.IsZero() && (oldest.IsZero() || p.Published.Before(oldest)) {
				oldest = p.Published
			}
		}
		if start+len(feed.Papers) >= feed.TotalResults {
			break
		}
	}

	cur.OldestPublished = oldest
	if err := r.store.SaveDiscoveryCursor(ctx, cur); err != nil {
		return added, err
	}
	fmt.Fprintf(w, "\nDiscovery summary: %d new papers enqueued\n", added)
	return added, nil
}

// Backfill walks month buckets into the past, resuming from the persisted
// (year, month) for the query or starting at the current month. A bucket is
// drained page by page; only when it is exhausted does the cursor advance one
// month back, so an interrupted run re-scans at most one month and the
// enqueue dedupe absorbs the overlap. Per prd008-workflow R1.
func (r *Runner) Backfill(ctx context.Context, query string, target int, w io.Writer) (int, error) {
	if target <= 0 {
		target = discoveryPageSize
	}

	cur, found, err := r.store.LoadDiscoveryCursor(ctx, query)
	if err != nil {
		return 0, err
	}
	if !found || cur.Year == 0 {
		now := time.Now().UTC()
		cur.Query = query
		cur.Year, cur.Month = now.Year(), int(now.Month())
	}

	added := 0
	for added < target {
		if cur.Year < backfillFloorYear {
			fmt.Fprintf(w, "backfill reached %d, stopping\n", backfillFloorYear)
			break
		}

		bucket := fmt.Sprintf("(%s) AND submittedDate:[%s TO %s]",
			query, monthStart(cur.Year, cur.Month), monthStart(nextMonth(cur.Year, cur.Month)))
		n, exhausted, err := r.drainBucket(ctx, bucket, target-added)
		added += n
		fmt.Fprintf(w, "backfill %04d-%02d: %d new\n", cur.Year, cur.Month, n)
		if err != nil {
			return added, err
		}
		if !exhausted {
			break
		}

		cur.Year, cur.Month = prevMonth(cur.Year, cur.Month)
		if err := r.store.SaveDiscoveryCursor(ctx, cur); err != nil {
			return added, err
		}
	}

	if err := r.store.SaveDiscoveryCursor(ctx, cur); err != nil {
		return added, err
	}
	fmt.Fprintf(w, "\nDiscovery summary: %d new papers enqueued\n", added)
	return added, nil
}

// drainBucket pages through one month bucket. exhausted reports whether the
// bucket ran out of results before want new papers were found.
func (r *Runner) drainBucket(ctx context.Context, bucket string, want int) (int, bool, error) {
	added := 0
	for start := 0; added < want; start += discoveryPageSize {
		feed, err := r.searcher.Search(ctx, arxiv.SearchParams{
			Query:      bucket,
			Start:      start,
			MaxResults: discoveryPageSize,
			SortBy:     "submittedDate",
		})
		if err != nil {
			return added, false, fmt.Errorf("arXiv search: %w", err)
		}
		if len(feed.Papers) == 0 {
			return added, true, nil
		}

		n, err := r.store.EnqueueDiscovered(ctx, feed.Papers)
		if err != nil {
			return added, false, err
		}
		added += n

		if start+len(feed.Papers) >= feed.TotalResults {
			return added, true, nil
		}
	}
	return added, false, nil
}

// cursorStamp formats a timestamp the way arXiv date ranges expect
// (YYYYMMDDHHMM).
func cursorStamp(t time.Time) string {
	return t.UTC().Format("200601021504")
}

// monthStart is the first instant of a month in arXiv range syntax.
func monthStart(year, month int) string {
	return fmt.Sprintf("%04d%02d010000", year, month)
}

func nextMonth(year, month int) (int, int) {
	if month == 12 {
		return year + 1, 1
	}
	return year, month + 1
}

func prevMonth(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}
