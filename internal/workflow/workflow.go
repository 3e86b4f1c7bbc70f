// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workflow drives the two batch workflows over one store: discovery,
// which fills the processing queue from arXiv searches, and processing, which
// drains the queue through the per-paper pipeline under bounded concurrency.
// Implements: prd008-workflow.
package workflow

import (
	"context"
	"net/http"

	"github.com/pdiddy/arxitex/internal/arxiv"
	"github.com/pdiddy/arxitex/internal/oracle"
	"github.com/pdiddy/arxitex/internal/store"
	"github.com/pdiddy/arxitex/pkg/types"
)

// Searcher is the slice of the arXiv client the workflows use. *arxiv.Client
// implements it.
type Searcher interface {
	Search(ctx context.Context, p arxiv.SearchParams) (*arxiv.Feed, error)
}

// Runner executes discovery and processing runs. One Runner is safe for
// sequential runs; a single run fans papers out internally.
type Runner struct {
	store    *store.Store
	searcher Searcher
	oracle   oracle.Oracle
	client   *http.Client
	cfg      types.PipelineConfig
}

// New builds a runner, filling workflow defaults: four concurrent papers,
// reports and exports under "output". The oracle may be nil as long as every
// processing run uses regex mode; a nil httpClient falls back to
// http.DefaultClient.
func New(st *store.Store, searcher Searcher, o oracle.Oracle, httpClient *http.Client, cfg types.PipelineConfig) *Runner {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Workflow.MaxConcurrentTasks <= 0 {
		cfg.Workflow.MaxConcurrentTasks = 4
	}
	if cfg.Workflow.OutputDir == "" {
		cfg.Workflow.OutputDir = "output"
	}
	return &Runner{store: st, searcher: searcher, oracle: o, client: httpClient, cfg: cfg}
}
