// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citations

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/pdiddy/arxitex/internal/arxiv"
	"github.com/pdiddy/arxitex/internal/store"
	"github.com/pdiddy/arxitex/pkg/types"
)

const (
	// searchMaxResults bounds the arXiv result page scored per reference.
	searchMaxResults = 10

	// maxExtractedAuthors caps how many leading name segments are kept.
	maxExtractedAuthors = 8
)

var (
	latexQuoteRe = regexp.MustCompile("``(.+?)''")
	quoteRe      = regexp.MustCompile(`"([^"]+)"|“([^”]+)”`)
	emphRe       = regexp.MustCompile(`\\emph\{([^{}]+)\}`)

	// initialNameRe matches "J. Doe", "M. K. Roussel". plainNameRe matches
	// one or two capitalized words ("Frankl", "John Doe"); longer runs are
	// treated as prose, not names.
	initialNameRe = regexp.MustCompile(`^(?:[A-Z]\.[\s~]*)+[A-Z][\p{L}'-]+$`)
	plainNameRe   = regexp.MustCompile(`^[A-Z][\p{L}'-]+(?:\s+[A-Z][\p{L}'-]+)?$`)

	andSplitRe = regexp.MustCompile(`\s+and\s+`)
	bareYearRe = regexp.MustCompile(`^(?:19|20)\d{2}$`)
	pageVolRe  = regexp.MustCompile(`(?i)\b(?:pp?|vol|no)\.|\bpages?\b|^\d`)
)

// MatchStats summarizes one external-reference matching run.
type MatchStats struct {
	Matched int `json:"matched"`
	Misses  int `json:"misses"`
	Cached  int `json:"cached"`
	Failed  int `json:"failed"`
}

// MatchExternalReferences resolves each external-reference artifact in the
// graph to an arXiv identifier and persists every decision, misses
// included, so a reference is not retried until the TTL lapses. The fast
// path is an embedded arXiv id in the reference text; otherwise the
// heuristic title and authors drive a cached arXiv title search.
func (r *Resolver) MatchExternalReferences(ctx context.Context, paperID string, graph *types.DocumentGraph, w io.Writer) (MatchStats, error) {
	var stats MatchStats
	if graph == nil {
		return stats, nil
	}

	for _, a := range graph.Nodes {
		if !a.IsExternal() {
			continue
		}

		rec, found, err := r.store.ExternalMatchRecord(ctx, paperID, a.ID)
		if err != nil {
			return stats, err
		}
		if found && rec.Fresh(r.ttlDays()) {
			stats.Cached++
			continue
		}

		match, err := r.matchReference(ctx, a)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			fmt.Fprintf(w, "warning: %s %s: %v\n", paperID, a.ID, err)
			continue
		}

		match.PaperID = paperID
		match.ArtifactID = a.ID
		if err := r.store.UpsertExternalMatch(ctx, match); err != nil {
			return stats, err
		}

		if match.MatchedArxivID == "" {
			stats.Misses++
			fmt.Fprintf(w, "  %s: no match\n", a.ID)
		} else {
			stats.Matched++
			fmt.Fprintf(w, "  %s -> %s (%s)\n", a.ID, match.MatchedArxivID, match.Method)
		}
	}
	return stats, nil
}

func (r *Resolver) matchReference(ctx context.Context, a *types.Artifact) (store.ExternalMatch, error) {
	text := a.Content
	if text == "" {
		text = a.Label
	}

	if id := arxiv.FindMention(text); id != "" {
		return store.ExternalMatch{Method: MethodDirectRegex, MatchedArxivID: id}, nil
	}

	title, authors := ExtractTitleAuthors(text)
	if title == "" {
		return store.ExternalMatch{Method: MethodNone}, nil
	}

	query := buildSearchQuery(title, authors)
	match := store.ExternalMatch{
		Method:           MethodNone,
		ExtractedTitle:   title,
		ExtractedAuthors: authors,
		Query:            query,
	}

	// Identical references across papers share one search via the cache.
	key := cacheKey(title, authors)
	if entry, found, err := r.store.SearchCacheLookup(ctx, key); err != nil {
		return store.ExternalMatch{}, err
	} else if found && entry.Fresh(r.ttlDays()) {
		if entry.MatchedArxivID != "" {
			match.Method = MethodSearch
			match.MatchedArxivID = entry.MatchedArxivID
			match.MatchedTitle = entry.MatchedTitle
			match.MatchedAuthors = entry.MatchedAuthors
			match.TitleScore = entry.TitleScore
			match.AuthorOverlap = entry.AuthorOverlap
		}
		return match, nil
	}

	feed, err := r.arxiv.Search(ctx, arxiv.SearchParams{Query: query, MaxResults: searchMaxResults})
	if err != nil {
		return store.ExternalMatch{}, fmt.Errorf("arXiv search: %w", err)
	}

	if best, ok := bestFeedMatch(feed.Papers, title, authors); ok {
		match.Method = MethodSearch
		match.MatchedArxivID = best.ID
		match.MatchedTitle = best.Title
		match.MatchedAuthors = best.Authors
		match.TitleScore = TitleSimilarity(title, best.Title)
		match.AuthorOverlap = AuthorOverlap(authors, best.Authors)
	}

	err = r.store.UpsertSearchCache(ctx, store.SearchCacheEntry{
		Key:            key,
		MatchedArxivID: match.MatchedArxivID,
		MatchedTitle:   match.MatchedTitle,
		MatchedAuthors: match.MatchedAuthors,
		TitleScore:     match.TitleScore,
		AuthorOverlap:  match.AuthorOverlap,
		Query:          query,
	})
	if err != nil {
		return store.ExternalMatch{}, err
	}
	return match, nil
}

// bestFeedMatch ranks feed papers by title similarity plus a small author
// bonus and returns the best one that clears the acceptance thresholds.
func bestFeedMatch(papers []types.PaperMeta, title string, authors []string) (types.PaperMeta, bool) {
	threshold := titleThresholdBare
	if len(authors) > 0 {
		threshold = titleThresholdWithAuthors
	}

	bestScore := -1.0
	var best types.PaperMeta
	for _, p := range papers {
		sim := TitleSimilarity(title, p.Title)
		if sim < threshold {
			continue
		}
		overlap := AuthorOverlap(authors, p.Authors)
		if len(authors) > 0 && overlap < minAuthorOverlap {
			continue
		}
		if score := sim + authorBonus*overlap; score > bestScore {
			bestScore = score
			best = p
		}
	}
	return best, bestScore >= 0
}

// ExtractTitleAuthors pulls a probable title and author list out of a free
// text bibliography entry. Titles are tried in order: LaTeX double quotes,
// plain or typographic quotes, \emph{}, then the longest comma segment
// that does not look like names, a year, or page/volume noise. Authors are
// the leading comma segments that parse as names.
func ExtractTitleAuthors(ref string) (string, []string) {
	return extractTitle(ref), extractAuthors(ref)
}

func extractTitle(text string) string {
	if m := latexQuoteRe.FindStringSubmatch(text); m != nil {
		return cleanTitle(m[1])
	}
	if m := quoteRe.FindStringSubmatch(text); m != nil {
		if m[1] != "" {
			return cleanTitle(m[1])
		}
		return cleanTitle(m[2])
	}
	if m := emphRe.FindStringSubmatch(text); m != nil {
		return cleanTitle(m[1])
	}

	best := ""
	for _, seg := range strings.Split(text, ",") {
		s := cleanTitle(seg)
		if s == "" || isNoiseSegment(s) {
			continue
		}
		if len(s) > len(best) {
			best = s
		}
	}
	return best
}

func isNoiseSegment(s string) bool {
	if len(strings.Fields(s)) < 2 {
		return true
	}
	if bareYearRe.MatchString(s) || pageVolRe.MatchString(s) {
		return true
	}
	return looksLikeName(s)
}

func extractAuthors(text string) []string {
	var authors []string
	for _, seg := range strings.Split(text, ",") {
		names := andSplitRe.Split(strings.TrimSpace(seg), -1)
		var segNames []string
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			if !looksLikeName(n) {
				return authors
			}
			segNames = append(segNames, n)
		}
		if len(segNames) == 0 {
			return authors
		}
		authors = append(authors, segNames...)
		if len(authors) >= maxExtractedAuthors {
			return authors[:maxExtractedAuthors]
		}
	}
	return authors
}

func looksLikeName(s string) bool {
	return initialNameRe.MatchString(s) || plainNameRe.MatchString(s)
}

// cleanTitle trims surrounding punctuation and folds whitespace runs.
func cleanTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, ` ,.;:"'`)
}

func buildSearchQuery(title string, authors []string) string {
	q := `ti:"` + title + `"`
	if len(authors) > 0 {
		if ln := lastName(authors[0]); ln != "" {
			q += " AND au:" + ln
		}
	}
	return q
}

// cacheKey hashes the normalized title and sorted author last names, so
// the same reference cited by different papers maps to one cache row.
func cacheKey(title string, authors []string) string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		names = append(names, strings.ToLower(lastName(a)))
	}
	sort.Strings(names)
	h := sha256.Sum256([]byte(normalizeTitle(title) + "\x00" + strings.Join(names, ",")))
	return hex.EncodeToString(h[:])
}

// TitleSimilarity is the Sørensen-Dice coefficient over normalized word
// sets: 1.0 for identical token sets, 0.0 for disjoint ones.
func TitleSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for t := range setA {
		if setB[t] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(setA)+len(setB))
}

// AuthorOverlap is the fraction of reference author last names that also
// appear among the candidate's authors.
func AuthorOverlap(ref, candidate []string) float64 {
	if len(ref) == 0 {
		return 0
	}
	candidateSet := make(map[string]bool, len(candidate))
	for _, name := range candidate {
		if ln := strings.ToLower(lastName(name)); ln != "" {
			candidateSet[ln] = true
		}
	}
	shared := 0
	for _, name := range ref {
		if candidateSet[strings.ToLower(lastName(name))] {
			shared++
		}
	}
	return float64(shared) / float64(len(ref))
}

func lastName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(normalizeTitle(s)) {
		set[t] = true
	}
	return set
}

// normalizeTitle lowercases and replaces every rune that is not a letter
// or digit with a space. Hyphenated and spaced forms of a title tokenize
// identically.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
