// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pdiddy/arxitex/internal/acquire"
	"github.com/pdiddy/arxitex/internal/arxiv"
	"github.com/pdiddy/arxitex/internal/oracle"
	"github.com/pdiddy/arxitex/internal/store"
	"github.com/pdiddy/arxitex/pkg/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(types.StoreConfig{DBPath: filepath.Join(t.TempDir(), "arxitex.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// testConfig gives every run its own cache and output directories. A single
// download attempt keeps failure tests fast.
func testConfig(t *testing.T) types.PipelineConfig {
	t.Helper()
	var cfg types.PipelineConfig
	cfg.Acquisition.CacheDir = filepath.Join(t.TempDir(), "cache")
	cfg.Acquisition.MaxAttempts = 1
	cfg.Workflow.OutputDir = filepath.Join(t.TempDir(), "out")
	return cfg
}

// stubSearcher records search calls and plays back feeds in order. Once the
// prepared feeds run out it returns empty ones.
type stubSearcher struct {
	feeds []*arxiv.Feed
	err   error
	calls []arxiv.SearchParams
}

func (s *stubSearcher) Search(_ context.Context, p arxiv.SearchParams) (*arxiv.Feed, error) {
	s.calls = append(s.calls, p)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.feeds) == 0 {
		return &arxiv.Feed{}, nil
	}
	f := s.feeds[0]
	s.feeds = s.feeds[1:]
	return f, nil
}

func sampleMeta(id string, published time.Time) types.PaperMeta {
	return types.PaperMeta{
		ID:              id,
		Title:           "On sample paper " + id,
		Abstract:        "We prove a bound.",
		PrimaryCategory: "math.CO",
		Categories:      []string{"math.CO"},
		Authors:         []string{"A. Author"},
		Published:       published,
	}
}

// seedSource pre-populates the acquisition cache so the pipeline runs
// without touching the network.
func seedSource(t *testing.T, cacheDir, paperID, tex string) {
	t.Helper()
	dir := acquire.SourceDir(cacheDir, paperID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.tex"), []byte(tex), 0o644); err != nil {
		t.Fatal(err)
	}
}

// theoremPaper yields two internal artifacts, one external node, and two
// edges: theorem->lemma and theorem->external_Fra95.
const theoremPaper = `\documentclass{article}
\begin{document}
\begin{lemma}\label{lem:freq}
Some element of a union closed family lies in many member sets.
\end{lemma}
\begin{theorem}\label{thm:main}
By Lemma \ref{lem:freq} the conjecture holds for large families \cite{Fra95}.
\end{theorem}
\begin{thebibliography}{9}
\bibitem{Fra95} P. Frankl. Union-closed families. 1995.
\end{thebibliography}
\end{document}
`

// proseOnlyPaper has no statement environments, so graph extraction fails
// terminally.
const proseOnlyPaper = `\documentclass{article}
\begin{document}
Nothing here but prose.
\end{document}
`

// definitionPaper feeds the defs-mode pipeline: a definition environment
// plus a theorem that uses the defined term verbatim.
const definitionPaper = `\documentclass{article}
\begin{document}
\begin{definition}\label{def:uc}
A family of sets is union closed if the union of any two members is again a member.
\end{definition}
\begin{theorem}\label{thm:freq}
In every union closed family some element appears in half the member sets.
\end{theorem}
\end{document}
`

// failingTransport refuses every request, standing in for an unreachable
// arXiv mirror.
type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

// stubOracle implements oracle.Oracle with per-call hooks. Unset hooks
// return empty results.
type stubOracle struct {
	extractDefinition  func(tex string) (oracle.ExtractedDefinition, error)
	extractTermsGlobal func(combined string) ([]string, error)
}

func (s *stubOracle) ExtractDefinition(_ context.Context, tex string) (oracle.ExtractedDefinition, error) {
	if s.extractDefinition == nil {
		return oracle.ExtractedDefinition{}, nil
	}
	return s.extractDefinition(tex)
}

func (s *stubOracle) ExtractTermsGlobal(_ context.Context, combined string) ([]string, error) {
	if s.extractTermsGlobal == nil {
		return nil, nil
	}
	return s.extractTermsGlobal(combined)
}

func (s *stubOracle) ExtractTermsSingle(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (s *stubOracle) SynthesizeDefinition(_ context.Context, _ oracle.SynthesisRequest) (oracle.SynthesisResult, error) {
	return oracle.SynthesisResult{}, nil
}

func (s *stubOracle) PairwiseDependency(_ context.Context, _ oracle.PairRequest) (oracle.PairVerdict, error) {
	return oracle.PairVerdict{}, nil
}

func (s *stubOracle) GlobalDependency(_ context.Context, _ []oracle.ArtifactPayload) ([]oracle.EdgeProposal, error) {
	return nil, nil
}

func (s *stubOracle) GlobalDependencyProposal(_ context.Context, _ []oracle.ArtifactPayload) ([]oracle.EdgeProposal, error) {
	return nil, nil
}
