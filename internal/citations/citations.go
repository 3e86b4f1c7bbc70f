// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package citations backfills total citation counts from OpenAlex and
// resolves external-reference artifacts to arXiv identifiers.
// Implements: prd009-citations.
package citations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/pdiddy/arxitex/internal/arxiv"
	"github.com/pdiddy/arxitex/internal/httputil"
	"github.com/pdiddy/arxitex/internal/store"
	"github.com/pdiddy/arxitex/pkg/types"
)

// openAlexBase is the OpenAlex Works search endpoint. Declared as a var so
// tests can substitute an httptest server.
var openAlexBase = "https://api.openalex.org/works"

// Candidate acceptance thresholds. A candidate work qualifies when its
// title similarity clears the threshold and, when reference authors are
// known, at least a sliver of last names overlaps.
const (
	titleThresholdWithAuthors = 0.92
	titleThresholdBare        = 0.96
	minAuthorOverlap          = 0.10

	// authorBonus weights author overlap into the ranking score used to
	// pick among qualifying arXiv search results.
	authorBonus = 0.05

	defaultTTLDays = 30
)

// Match methods recorded on external_reference_arxiv_matches rows.
const (
	MethodDirectRegex = "direct_regex"
	MethodSearch      = "search"
	MethodNone        = "none"
)

// Searcher is the slice of the arXiv API client the matcher needs.
// *arxiv.Client implements it.
type Searcher interface {
	Search(ctx context.Context, p arxiv.SearchParams) (*arxiv.Feed, error)
}

// Resolver runs both citation backfills against one store. All outbound
// calls go through a single shared token bucket: OpenAlex requests wait on
// limiter directly, and the injected Searcher is expected to carry the same
// limiter internally.
type Resolver struct {
	store   *store.Store
	arxiv   Searcher
	client  *http.Client
	limiter *rate.Limiter
	cfg     types.CitationsConfig
}

// New returns a resolver. limiter may be nil to disable throttling.
func New(st *store.Store, searcher Searcher, httpClient *http.Client, limiter *rate.Limiter, cfg types.CitationsConfig) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Resolver{store: st, arxiv: searcher, client: httpClient, limiter: limiter, cfg: cfg}
}

// NewLimiter builds the process-wide token bucket from config defaults:
// 5 requests per second with a burst of 5.
func NewLimiter(cfg types.CitationsConfig) *rate.Limiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (r *Resolver) ttlDays() int {
	if r.cfg.TTLDays > 0 {
		return r.cfg.TTLDays
	}
	return defaultTTLDays
}

// BackfillStats summarizes one citation-count run.
type BackfillStats struct {
	Fetched int `json:"fetched"`
	Cached  int `json:"cached"`
	NoMatch int `json:"no_match"`
	Failed  int `json:"failed"`
}

// BackfillCounts refreshes the total citation count for each paper whose
// stored record is missing or older than the TTL. OpenAlex is queried by
// title rather than by arXiv id, which it indexes unreliably; candidates
// are filtered by title similarity and author overlap and the highest
// cited_by_count wins. Misses are persisted too so they are not re-queried
// until the TTL lapses. Per-paper failures are reported on w and skipped;
// the run only aborts on store errors or context cancellation.
func (r *Resolver) BackfillCounts(ctx context.Context, ids []string, w io.Writer) (BackfillStats, error) {
	var stats BackfillStats
	for _, id := range ids {
		base := arxiv.StripVersion(id)

		rec, found, err := r.store.PaperCitationRecord(ctx, base)
		if err != nil {
			return stats, err
		}
		if found && rec.Fresh(r.ttlDays()) {
			stats.Cached++
			fmt.Fprintf(w, "  %s: cached (%d citations)\n", base, rec.CitationCount)
			continue
		}

		meta, found, err := r.store.Paper(ctx, id)
		if err != nil {
			return stats, err
		}
		if !found {
			meta, found, err = r.store.Paper(ctx, base)
			if err != nil {
				return stats, err
			}
		}
		if !found || meta.Title == "" {
			stats.Failed++
			fmt.Fprintf(w, "warning: %s: no stored metadata to search by\n", base)
			continue
		}

		work, ok, err := r.lookupOpenAlex(ctx, meta.Title, meta.Authors)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			fmt.Fprintf(w, "warning: %s: %v\n", base, err)
			continue
		}

		row := store.PaperCitation{PaperID: base, Source: "openalex"}
		if ok {
			row.SourceWorkID = work.ID
			row.CitationCount = work.CitedByCount
		}
		if err := r.store.UpsertPaperCitation(ctx, row); err != nil {
			return stats, err
		}

		if ok {
			stats.Fetched++
			fmt.Fprintf(w, "  %s: %d citations (%s)\n", base, work.CitedByCount, work.ID)
		} else {
			stats.NoMatch++
			fmt.Fprintf(w, "  %s: no confident match\n", base)
		}
	}
	return stats, nil
}

// lookupOpenAlex searches OpenAlex by title and returns the qualifying work
// with the highest citation count, or ok=false when none qualifies.
func (r *Resolver) lookupOpenAlex(ctx context.Context, title string, authors []string) (openAlexWork, bool, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return openAlexWork{}, false, err
		}
	}

	params := url.Values{
		"search":   {title},
		"per-page": {"25"},
	}
	if r.cfg.Email != "" {
		params.Set("mailto", r.cfg.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexBase+"?"+params.Encode(), nil)
	if err != nil {
		return openAlexWork{}, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, r.client, req, 0)
	if err != nil {
		return openAlexWork{}, false, fmt.Errorf("OpenAlex request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return openAlexWork{}, false, fmt.Errorf("OpenAlex returned HTTP %d", resp.StatusCode)
	}

	var parsed openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return openAlexWork{}, false, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	threshold := titleThresholdBare
	if len(authors) > 0 {
		threshold = titleThresholdWithAuthors
	}

	best := -1
	for i, work := range parsed.Results {
		if work.Title == "" {
			continue
		}
		if TitleSimilarity(title, work.Title) < threshold {
			continue
		}
		if len(authors) > 0 && AuthorOverlap(authors, work.authors()) < minAuthorOverlap {
			continue
		}
		if best < 0 || work.CitedByCount > parsed.Results[best].CitedByCount {
			best = i
		}
	}
	if best < 0 {
		return openAlexWork{}, false, nil
	}
	return parsed.Results[best], true, nil
}

// OpenAlex API JSON structures, trimmed to the fields the backfill reads.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CitedByCount int    `json:"cited_by_count"`
	Authorships  []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
}

func (w openAlexWork) authors() []string {
	var names []string
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			names = append(names, a.Author.DisplayName)
		}
	}
	return names
}
