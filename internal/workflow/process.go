// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/arxitex/internal/acquire"
	"github.com/pdiddy/arxitex/internal/arxiv"
	"github.com/pdiddy/arxitex/internal/defbank"
	"github.com/pdiddy/arxitex/internal/enhance"
	"github.com/pdiddy/arxitex/internal/extract"
	"github.com/pdiddy/arxitex/internal/faults"
	"github.com/pdiddy/arxitex/internal/infer"
	"github.com/pdiddy/arxitex/pkg/types"
)

// Per-paper outcome statuses as they appear in run reports.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
	StatusCached  = "cached"
)

// PaperResult is one paper's line in a run report.
type PaperResult struct {
	PaperID string `json:"paper_id"`
	Status  string `json:"status"`

	// Code and Stage carry the classified fault on failure.
	Code  string `json:"code,omitempty"`
	Stage string `json:"stage,omitempty"`
	Error string `json:"error,omitempty"`

	// Reason is the heuristic skip reason.
	Reason string `json:"reason,omitempty"`

	Nodes int `json:"nodes,omitempty"`
	Edges int `json:"edges,omitempty"`
}

// Report summarizes one processing run. Cached papers count as succeeded.
type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Mode       types.Mode    `json:"mode"`
	Processed  int           `json:"processed"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Results    []PaperResult `json:"results"`
}

// pageCountRe parses the page count papers report in their comment field
// ("37 pages, 5 figures").
var pageCountRe = regexp.MustCompile(`(\d+)\s*pages?`)

// ProcessQueue dequeues up to limit papers and runs the pipeline over them.
// Queue rows survive until a paper succeeds, is skipped, or fails terminally,
// so an interrupted run resumes where it stopped.
func (r *Runner) ProcessQueue(ctx context.Context, limit int, mode types.Mode, force bool, w io.Writer) (*Report, error) {
	if limit <= 0 {
		limit = 20
	}
	started := time.Now().UTC()

	metas, err := r.store.DequeueBatch(ctx, limit)
	if err != nil {
		return nil, err
	}
	results, err := r.runPool(ctx, metas, mode, force, w)
	if err != nil {
		return nil, err
	}
	return r.report(mode, started, results, w)
}

// IngestPapers fetches metadata for explicitly named identifiers and runs the
// pipeline over them. The papers are enqueued first so an interrupted run is
// picked up by the next ProcessQueue. Identifiers that do not normalize or
// return no metadata become failure rows instead of aborting the batch.
func (r *Runner) IngestPapers(ctx context.Context, ids []string, mode types.Mode, force bool, w io.Writer) (*Report, error) {
	started := time.Now().UTC()

	var (
		pre        []PaperResult
		normalized []string
	)
	for _, id := range ids {
		nid, err := arxiv.Normalize(id)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", id, err)
			pre = append(pre, PaperResult{
				PaperID: id,
				Status:  StatusFailure,
				Code:    string(faults.CodeInvalidArxivID),
				Stage:   string(faults.StageFor(faults.CodeInvalidArxivID)),
				Error:   err.Error(),
			})
			continue
		}
		normalized = append(normalized, nid)
	}

	var metas []types.PaperMeta
	if len(normalized) > 0 {
		feed, err := r.searcher.Search(ctx, arxiv.SearchParams{IDList: normalized, MaxResults: len(normalized)})
		if err != nil {
			return nil, fmt.Errorf("fetching metadata: %w", err)
		}
		byID := make(map[string]types.PaperMeta, len(feed.Papers))
		for _, m := range feed.Papers {
			byID[m.ID] = m
		}
		for _, id := range normalized {
			m, ok := byID[arxiv.StripVersion(id)]
			if !ok {
				fmt.Fprintf(w, "failed:  %s (no metadata returned)\n", id)
				pre = append(pre, PaperResult{
					PaperID: id,
					Status:  StatusFailure,
					Code:    string(faults.CodeInvalidArxivID),
					Stage:   string(faults.StageFor(faults.CodeInvalidArxivID)),
					Error:   "no metadata returned",
				})
				continue
			}
			metas = append(metas, m)
		}
		if _, err := r.store.EnqueueDiscovered(ctx, metas); err != nil {
			return nil, err
		}
	}

	results, err := r.runPool(ctx, metas, mode, force, w)
	if err != nil {
		return nil, err
	}
	return r.report(mode, started, append(pre, results...), w)
}

// runPool fans papers out over errgroup workers gated by a weighted
// semaphore, so at most MaxConcurrentTasks pipelines are in flight.
// Per-paper pipeline failures become result rows; only store and context
// errors abort the batch.
func (r *Runner) runPool(ctx context.Context, metas []types.PaperMeta, mode types.Mode, force bool, w io.Writer) ([]PaperResult, error) {
	if len(metas) == 0 {
		return nil, nil
	}
	if mode != types.ModeRegex && r.oracle == nil {
		return nil, fmt.Errorf("mode %s requires a configured oracle", mode)
	}

	sem := semaphore.NewWeighted(int64(r.cfg.Workflow.MaxConcurrentTasks))
	g, gctx := errgroup.WithContext(ctx)

	var (
		mu      sync.Mutex
		results []PaperResult
	)
	for _, meta := range metas {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			res, err := r.processOne(gctx, meta, mode, force, w)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// processOne runs one paper through state checks, heuristics, the pipeline,
// persistence, and export. The returned error is reserved for store-level
// problems; pipeline failures are classified into the result.
func (r *Runner) processOne(ctx context.Context, meta types.PaperMeta, mode types.Mode, force bool, w io.Writer) (PaperResult, error) {
	res := PaperResult{PaperID: meta.ID, Status: StatusFailure}

	if !force {
		st, found, err := r.store.State(ctx, meta.ID, mode)
		if err != nil {
			return res, err
		}
		if found && st.Stage == types.StageComplete {
			fmt.Fprintf(w, "cached:  %s (already complete)\n", meta.ID)
			if err := r.store.RemoveFromQueue(ctx, meta.ID); err != nil {
				return res, err
			}
			res.Status = StatusCached
			return res, nil
		}
	}

	if reason := r.skipReason(meta); reason != "" {
		fmt.Fprintf(w, "skipped: %s (%s)\n", meta.ID, reason)
		if err := r.store.MarkSkipped(ctx, meta.ID, reason); err != nil {
			return res, err
		}
		res.Status = StatusSkipped
		res.Reason = reason
		return res, nil
	}

	if err := r.store.MarkProcessing(ctx, meta, mode); err != nil {
		return res, err
	}
	fmt.Fprintf(w, "processing: %s (%s)\n", meta.ID, mode)

	out, err := r.pipeline(ctx, meta, mode, w)
	if err != nil {
		fault := faults.Classify(err)
		if markErr := r.store.MarkFailed(ctx, meta.ID, mode, fault); markErr != nil {
			return res, markErr
		}
		// Terminal faults leave the queue; transient ones stay for a retry.
		if fault.Code.Terminal() {
			if rmErr := r.store.RemoveFromQueue(ctx, meta.ID); rmErr != nil {
				return res, rmErr
			}
		}
		fmt.Fprintf(w, "failed:  %s (%v)\n", meta.ID, fault)
		res.Code = string(fault.Code)
		res.Stage = string(fault.Stage())
		res.Error = fault.Error()
		return res, nil
	}

	if err := r.store.PersistExtractionResult(ctx, meta, out.graph, mode, out.bank, out.terms, out.macros); err != nil {
		// The store has already recorded the failed state.
		fault := faults.Classify(err)
		fmt.Fprintf(w, "failed:  %s (%v)\n", meta.ID, fault)
		res.Code = string(fault.Code)
		res.Stage = string(fault.Stage())
		res.Error = fault.Error()
		return res, nil
	}
	if err := r.store.RemoveFromQueue(ctx, meta.ID); err != nil {
		return res, err
	}

	if err := r.exportPaper(ctx, meta.ID); err != nil {
		// The paper is persisted; the export command can rebuild the file.
		fmt.Fprintf(w, "warning: %s: writing export: %v\n", meta.ID, err)
	}

	fmt.Fprintf(w, "done:    %s (%d nodes, %d edges)\n", meta.ID, len(out.graph.Nodes), len(out.graph.Edges))
	res.Status = StatusSuccess
	res.Nodes = len(out.graph.Nodes)
	res.Edges = len(out.graph.Edges)
	return res, nil
}

// pipelineOutput is what one paper's pipeline hands to persistence. bank and
// terms stay nil in regex mode.
type pipelineOutput struct {
	graph  *types.DocumentGraph
	macros map[string]string
	bank   *defbank.Bank
	terms  map[string][]string
}

// pipeline runs acquisition, structural extraction, and, by mode, definition
// enhancement and dependency inference. Per prd008-workflow R2.1.
func (r *Runner) pipeline(ctx context.Context, meta types.PaperMeta, mode types.Mode, w io.Writer) (*pipelineOutput, error) {
	dir, _, err := acquire.FetchSource(ctx, r.client, meta.ID, r.cfg.Acquisition, w)
	if err != nil {
		return nil, err
	}

	ext, err := extract.BuildGraph(meta.ID, dir, mode)
	if err != nil {
		return nil, err
	}
	for _, warning := range ext.Warnings {
		fmt.Fprintf(w, "warning: %s: %s\n", meta.ID, warning)
	}

	out := &pipelineOutput{graph: ext.Graph, macros: ext.Macros}
	if mode == types.ModeRegex {
		return out, nil
	}

	enh, err := enhance.New(r.oracle, r.cfg.Enhance).Run(ctx, ext.Graph, ext.Body)
	if err != nil {
		return nil, err
	}
	out.bank = enh.Bank
	out.terms = enh.ArtifactTerms

	if mode == types.ModeFull {
		if err := infer.New(r.oracle, r.cfg.Infer).Run(ctx, ext.Graph, enh); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// skipReason applies the pre-download heuristics: a comment-reported page
// count above the maximum, or a disqualifying title keyword. Empty means the
// paper proceeds.
func (r *Runner) skipReason(meta types.PaperMeta) string {
	if maxPages := r.cfg.Workflow.MaxPages; maxPages > 0 {
		if m := pageCountRe.FindStringSubmatch(meta.Comment); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > maxPages {
				return fmt.Sprintf("comment reports %d pages (max %d)", n, maxPages)
			}
		}
	}
	title := strings.ToLower(meta.Title)
	for _, kw := range r.cfg.Workflow.SkipTitleKeywords {
		if kw != "" && strings.Contains(title, strings.ToLower(kw)) {
			return fmt.Sprintf("title contains %q", kw)
		}
	}
	return ""
}

// report assembles, prints, and writes the run summary. Results are ordered
// by paper ID so reruns diff cleanly.
func (r *Runner) report(mode types.Mode, started time.Time, results []PaperResult, w io.Writer) (*Report, error) {
	sort.Slice(results, func(i, j int) bool { return results[i].PaperID < results[j].PaperID })

	rep := &Report{
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Mode:       mode,
		Processed:  len(results),
		Results:    results,
	}
	for _, res := range results {
		switch res.Status {
		case StatusSuccess, StatusCached:
			rep.Succeeded++
		case StatusFailure:
			rep.Failed++
		case StatusSkipped:
			rep.Skipped++
		}
	}

	fmt.Fprintf(w, "\nRun summary: %d succeeded, %d failed, %d skipped (total: %d)\n",
		rep.Succeeded, rep.Failed, rep.Skipped, rep.Processed)

	if err := r.writeReport(rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// writeReport writes the JSON report under the output directory with a
// timestamped name.
func (r *Runner) writeReport(rep *Report) error {
	dir := r.cfg.Workflow.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	name := fmt.Sprintf("run-report-%s.json", rep.FinishedAt.Format("20060102-150405"))
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

// exportPaper writes the downstream JSON payload for a stored paper into the
// output directory.
func (r *Runner) exportPaper(ctx context.Context, paperID string) error {
	payload, err := r.store.ExportPaper(ctx, paperID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling export: %w", err)
	}
	dir := r.cfg.Workflow.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, types.ExportFilename(paperID)), data, 0o644)
}
