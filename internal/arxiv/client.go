// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/arxitex/internal/httputil"
	"github.com/pdiddy/arxitex/pkg/types"
)

// apiBase is the arXiv query endpoint. Declared as a var so tests can
// substitute an httptest server.
var apiBase = "https://export.arxiv.org/api/query"

// Client queries the arXiv Atom API.
type Client struct {
	httpClient *http.Client
	userAgent  string

	// limiter, when set, is awaited before every request. Discovery and
	// citation matching share one so the combined rate stays bounded.
	limiter *rate.Limiter
}

// NewClient returns an API client. limiter may be nil.
func NewClient(httpClient *http.Client, userAgent string, limiter *rate.Limiter) *Client {
	return &Client{httpClient: httpClient, userAgent: userAgent, limiter: limiter}
}

// SearchParams are the arXiv query parameters. Exactly one of Query or
// IDList should be set.
type SearchParams struct {
	// Query is the raw search_query expression, e.g.
	// `cat:math.CO AND submittedDate:[000001010000 TO 202401010000]`.
	Query string

	// IDList fetches metadata for specific identifiers instead.
	IDList []string

	Start      int
	MaxResults int

	// SortBy is "submittedDate", "lastUpdatedDate", or "relevance".
	SortBy string

	// SortOrder is "ascending" or "descending".
	SortOrder string
}

// Feed is a parsed API response page.
type Feed struct {
	// TotalResults is the match count reported by the API, which can be
	// far larger than the returned page.
	TotalResults int

	Papers []types.PaperMeta
}

// Search performs one API request and parses the response page.
func (c *Client) Search(ctx context.Context, p SearchParams) (*Feed, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	if p.Query != "" {
		params.Set("search_query", p.Query)
	}
	if len(p.IDList) > 0 {
		params.Set("id_list", strings.Join(p.IDList, ","))
	}
	params.Set("start", strconv.Itoa(p.Start))
	maxResults := p.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}
	params.Set("max_results", strconv.Itoa(maxResults))
	if p.SortBy != "" {
		params.Set("sortBy", p.SortBy)
		order := p.SortOrder
		if order == "" {
			order = "descending"
		}
		params.Set("sortOrder", order)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := httputil.DoWithRetry(ctx, c.httpClient, req, 0)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	out := &Feed{TotalResults: feed.TotalResults}
	for _, entry := range feed.Entries {
		id := ExtractFromURL(entry.ID)
		if id == "" {
			continue
		}
		meta := types.PaperMeta{
			ID:              id,
			Title:           collapseSpace(entry.Title),
			Abstract:        strings.TrimSpace(entry.Summary),
			Comment:         collapseSpace(entry.Comment),
			PrimaryCategory: entry.PrimaryCategory.Term,
		}
		for _, cat := range entry.Categories {
			meta.Categories = append(meta.Categories, cat.Term)
		}
		for _, a := range entry.Authors {
			meta.Authors = append(meta.Authors, strings.TrimSpace(a.Name))
		}
		if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
			meta.Published = t
		}
		out.Papers = append(out.Papers, meta)
	}
	return out, nil
}

// FetchMeta returns metadata for the given identifiers via id_list.
func (c *Client) FetchMeta(ctx context.Context, ids []string) ([]types.PaperMeta, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	feed, err := c.Search(ctx, SearchParams{IDList: ids, MaxResults: len(ids)})
	if err != nil {
		return nil, err
	}
	return feed.Papers, nil
}

// arXiv Atom feed XML structures. Namespaced elements (opensearch, arxiv)
// are matched by local name.
type atomFeed struct {
	TotalResults int         `xml:"totalResults"`
	Entries      []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID              string `xml:"id"`
	Title           string `xml:"title"`
	Summary         string `xml:"summary"`
	Published       string `xml:"published"`
	Comment         string `xml:"comment"`
	PrimaryCategory struct {
		Term string `xml:"term,attr"`
	} `xml:"primary_category"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	Authors []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

// collapseSpace trims and folds internal whitespace runs, undoing the line
// wrapping the API applies to long titles.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
