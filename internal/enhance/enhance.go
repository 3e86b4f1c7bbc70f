// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enhance builds a paper's definition bank and attaches ordered
// prerequisite definitions to its artifacts: explicit definition
// environments first, then term discovery, synthesis of missing
// definitions from surrounding context, and per-artifact assembly.
// Implements: prd005-enhancement.
package enhance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/arxitex/internal/defbank"
	"github.com/pdiddy/arxitex/internal/oracle"
	"github.com/pdiddy/arxitex/pkg/types"
)

// artifactSentinel separates artifact contents in the global term-discovery
// prompt. It is never parsed back; term placement is recovered by phrase
// containment on each artifact's content.
const artifactSentinel = "\n\n=====\n\n"

// SynthesizedSourcePrefix marks bank entries generated from context rather
// than extracted from a definition environment. The artifact ID of the
// term's first appearance follows the prefix.
// Per prd005-enhancement R4.4.
const SynthesizedSourcePrefix = "synthesized_from_context_for_"

// Result is what enhancement hands to persistence and export.
type Result struct {
	Bank *defbank.Bank

	// ArtifactTerms maps artifact ID to its sanitized raw terms.
	ArtifactTerms map[string][]string

	// TermFirstArtifact maps a canonical term to the ID of the artifact
	// where it first appears in document order.
	TermFirstArtifact map[string]string
}

// Enhancer runs the three enhancement phases over one paper.
type Enhancer struct {
	oracle oracle.Oracle
	cfg    types.EnhanceConfig
}

// New builds an enhancer, filling config defaults: global term strategy,
// four concurrent requests per pool.
func New(o oracle.Oracle, cfg types.EnhanceConfig) *Enhancer {
	if cfg.Strategy == "" {
		cfg.Strategy = types.TermsGlobal
	}
	if cfg.TermConcurrency <= 0 {
		cfg.TermConcurrency = 4
	}
	if cfg.SynthesisConcurrency <= 0 {
		cfg.SynthesisConcurrency = 4
	}
	return &Enhancer{oracle: o, cfg: cfg}
}

// Run executes the three phases in order. body is the comment-stripped,
// normalized combined source; it supplies the paragraph context for
// synthesized definitions. Any oracle failure aborts the stage so the
// paper is retried rather than persisted with a silently truncated bank.
func (e *Enhancer) Run(ctx context.Context, graph *types.DocumentGraph, body string) (*Result, error) {
	arts := graph.InternalArtifacts()
	bank := defbank.New()

	// Phase 1: explicit definition environments, strictly sequential so a
	// later definition can build on an earlier one.
	for _, a := range arts {
		if a.Type != types.ArtifactDefinition {
			continue
		}
		ext, err := e.oracle.ExtractDefinition(ctx, a.Content)
		if err != nil {
			return nil, fmt.Errorf("extracting definition from %s: %w", a.ID, err)
		}
		bank.Register(types.Definition{
			Term:             ext.DefinedTerm,
			Text:             ext.DefinitionText,
			Aliases:          ext.Aliases,
			SourceArtifactID: a.ID,
		})
	}

	// Phase 2: term discovery, then synthesis of terms the bank misses.
	disc, err := e.discoverTerms(ctx, arts)
	if err != nil {
		return nil, err
	}
	if err := e.synthesizeMissing(ctx, arts, disc, bank, body); err != nil {
		return nil, err
	}
	bank.MergeRedundancies()
	bank.ResolveInternalDependencies()

	// Phase 3: attach ordered prerequisite maps.
	e.assemble(arts, disc, bank)

	return &Result{
		Bank:              bank,
		ArtifactTerms:     disc.artifactTerms,
		TermFirstArtifact: disc.firstArtifact,
	}, nil
}

// discovery holds the phase-two term placement maps.
type discovery struct {
	artifactTerms map[string][]string // artifact ID -> sanitized raw terms
	firstArtifact map[string]string   // canonical term -> first artifact ID
}

func newDiscovery() *discovery {
	return &discovery{
		artifactTerms: make(map[string][]string),
		firstArtifact: make(map[string]string),
	}
}

// add records term on the artifact. Calls must arrive in document order so
// the first-appearance map is deterministic.
func (d *discovery) add(artifactID, term string) {
	d.artifactTerms[artifactID] = append(d.artifactTerms[artifactID], term)
	key := defbank.Canonical(term)
	if key == "" {
		return
	}
	if _, ok := d.firstArtifact[key]; !ok {
		d.firstArtifact[key] = artifactID
	}
}

// discoverTerms runs the configured strategy. Per prd005-enhancement R3.1.
func (e *Enhancer) discoverTerms(ctx context.Context, arts []*types.Artifact) (*discovery, error) {
	if len(arts) == 0 {
		return newDiscovery(), nil
	}
	if e.cfg.Strategy == types.TermsSingle {
		return e.discoverPerArtifact(ctx, arts)
	}
	return e.discoverGlobal(ctx, arts)
}

// discoverGlobal asks for one term list over all contents, then maps each
// term back to the artifacts whose canonicalized content contains it as a
// whitespace-delimited phrase.
func (e *Enhancer) discoverGlobal(ctx context.Context, arts []*types.Artifact) (*discovery, error) {
	contents := make([]string, len(arts))
	forms := make([]string, len(arts))
	for i, a := range arts {
		contents[i] = a.Content
		forms[i] = defbank.SearchForm(a.Content)
	}

	raw, err := e.oracle.ExtractTermsGlobal(ctx, strings.Join(contents, artifactSentinel))
	if err != nil {
		return nil, fmt.Errorf("global term discovery: %w", err)
	}

	d := newDiscovery()
	for _, term := range sanitizeTerms(raw) {
		phrase := defbank.SearchForm(term)
		for i, a := range arts {
			if defbank.ContainsPhrase(forms[i], phrase) {
				d.add(a.ID, term)
			}
		}
	}
	return d, nil
}

// discoverPerArtifact requests terms for every artifact independently,
// bounded by TermConcurrency.
func (e *Enhancer) discoverPerArtifact(ctx context.Context, arts []*types.Artifact) (*discovery, error) {
	lists := make([][]string, len(arts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.TermConcurrency)
	for i, a := range arts {
		g.Go(func() error {
			terms, err := e.oracle.ExtractTermsSingle(gctx, a.Content)
			if err != nil {
				return fmt.Errorf("term discovery for %s: %w", a.ID, err)
			}
			lists[i] = sanitizeTerms(terms)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := newDiscovery()
	for i, a := range arts {
		for _, term := range lists[i] {
			d.add(a.ID, term)
		}
	}
	return d, nil
}

// synthesizeMissing generates definitions for discovered terms the bank
// does not know, concurrently under SynthesisConcurrency. Each term is
// synthesized once, at its first-appearance artifact. A context the model
// judges insufficient skips the term without error.
func (e *Enhancer) synthesizeMissing(ctx context.Context, arts []*types.Artifact, disc *discovery, bank *defbank.Bank, body string) error {
	type task struct {
		term string
		art  *types.Artifact
	}
	var tasks []task
	seen := make(map[string]bool)
	for _, a := range arts {
		for _, term := range disc.artifactTerms[a.ID] {
			key := defbank.Canonical(term)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			if _, ok := bank.Find(term); ok {
				continue
			}
			if disc.firstArtifact[key] != a.ID {
				continue
			}
			tasks = append(tasks, task{term: term, art: a})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.SynthesisConcurrency)
	for _, tk := range tasks {
		g.Go(func() error {
			return e.synthesizeOne(gctx, tk.term, tk.art, bank, body)
		})
	}
	return g.Wait()
}

func (e *Enhancer) synthesizeOne(ctx context.Context, term string, a *types.Artifact, bank *defbank.Bank, body string) error {
	req := oracle.SynthesisRequest{
		Term:    term,
		Context: synthesisContext(body, term, a),
	}
	if base, ok := bank.FindBestBaseDefinition(term); ok {
		req.BaseTerm = base.Term
		req.BaseDefinition = base.Text
	}

	res, err := e.oracle.SynthesizeDefinition(ctx, req)
	if err != nil {
		return fmt.Errorf("synthesizing %q: %w", term, err)
	}
	if !res.ContextWasSufficient {
		return nil
	}
	if e.cfg.ValidateSynthesized && !sentencesAppearIn(res.Definition, req.Context) {
		return nil
	}

	def := types.Definition{
		Term:             term,
		Text:             res.Definition,
		Synthesized:      true,
		SourceArtifactID: SynthesizedSourcePrefix + a.ID,
	}
	if req.BaseTerm != "" {
		def.Dependencies = []string{req.BaseTerm}
	}
	bank.Register(def)
	return nil
}

// synthesisContext assembles the oracle context for a term: the first
// paragraph before the artifact that mentions the term, plus the artifact's
// own content. With no earlier mention the artifact stands alone.
func synthesisContext(body, term string, a *types.Artifact) string {
	prefix := body[:offsetOfLine(body, a.Span.StartLine)]
	phrase := defbank.SearchForm(term)
	for _, para := range strings.Split(prefix, "\n\n") {
		if defbank.ContainsPhrase(defbank.SearchForm(para), phrase) {
			return strings.TrimSpace(para) + "\n\n" + a.Content
		}
	}
	return a.Content
}

// offsetOfLine returns the byte offset where the 1-based line starts.
func offsetOfLine(body string, line int) int {
	off := 0
	for n := 1; n < line; n++ {
		i := strings.IndexByte(body[off:], '\n')
		if i < 0 {
			return len(body)
		}
		off += i + 1
	}
	return off
}

// assemble resolves each artifact's terms through the bank and attaches the
// surviving definitions ordered by where their term first appeared in the
// document. Terms without a first appearance sort to the front.
func (e *Enhancer) assemble(arts []*types.Artifact, disc *discovery, bank *defbank.Bank) {
	lineOf := make(map[string]int, len(arts))
	for _, a := range arts {
		lineOf[a.ID] = a.Span.StartLine
	}
	termLine := func(term string) int {
		if id, ok := disc.firstArtifact[term]; ok {
			return lineOf[id]
		}
		return 0
	}

	var wg sync.WaitGroup
	for _, a := range arts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defs := bank.FindMany(disc.artifactTerms[a.ID])
			sort.SliceStable(defs, func(i, j int) bool {
				li, lj := termLine(defs[i].Term), termLine(defs[j].Term)
				if li != lj {
					return li < lj
				}
				return defs[i].Term < defs[j].Term
			})
			prereqs := make([]types.TermDefinition, 0, len(defs))
			for _, d := range defs {
				prereqs = append(prereqs, types.TermDefinition{Term: d.Term, Definition: d.Text})
			}
			a.Prerequisites = prereqs
		}()
	}
	wg.Wait()
}

// sanitizeTerms cleans a raw model term list: control characters stripped,
// doubled backslashes collapsed, trailing sentence punctuation dropped,
// empties and exact duplicates removed. Order is preserved.
func sanitizeTerms(raw []string) []string {
	var out []string
	seen := make(map[string]bool, len(raw))
	for _, t := range raw {
		t = sanitizeTerm(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func sanitizeTerm(t string) string {
	var b strings.Builder
	b.Grow(len(t))
	for _, r := range t {
		if r >= 0x20 && r != 0x7f {
			b.WriteRune(r)
		}
	}
	s := strings.ReplaceAll(b.String(), `\\`, `\`)
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".,")
	return strings.TrimSpace(s)
}

// sentencesAppearIn reports whether every sentence of def occurs verbatim in
// context after whitespace normalization. Used for optional synthesis
// validation. Per prd005-enhancement R4.6.
func sentencesAppearIn(def, context string) bool {
	ctx := normalizeSpace(context)
	for _, s := range strings.FieldsFunc(def, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		s = normalizeSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(ctx, s) {
			return false
		}
	}
	return true
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
