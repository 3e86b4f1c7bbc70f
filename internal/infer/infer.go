// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package infer adds dependency edges between the internal artifacts of a
// document graph, using conceptual-footprint candidate selection and one of
// four oracle strategies.
// Implements: prd006-inference.
package infer

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/arxitex/internal/defbank"
	"github.com/pdiddy/arxitex/internal/enhance"
	"github.com/pdiddy/arxitex/internal/oracle"
	"github.com/pdiddy/arxitex/pkg/types"
)

// autoHybridMaxNodes is the auto-mode boundary between hybrid and global:
// small graphs gain little from a global request, so auto prefers hybrid
// up to this many internal artifacts.
const autoHybridMaxNodes = 15

// Inferencer runs dependency inference over one paper.
type Inferencer struct {
	oracle oracle.Oracle
	cfg    types.InferConfig
}

// New builds an inferencer, filling config defaults.
func New(o oracle.Oracle, cfg types.InferConfig) *Inferencer {
	if cfg.Mode == "" {
		cfg.Mode = types.InferAuto
	}
	if cfg.MaxTotalPairs <= 0 {
		cfg.MaxTotalPairs = 200
	}
	if cfg.HybridTopKPerSource <= 0 {
		cfg.HybridTopKPerSource = 3
	}
	if cfg.HybridMaxTotalCandidates <= 0 {
		cfg.HybridMaxTotalCandidates = 60
	}
	if cfg.AutoMaxNodesGlobal <= 0 {
		cfg.AutoMaxNodesGlobal = 40
	}
	if cfg.AutoMaxTokensGlobal <= 0 {
		cfg.AutoMaxTokensGlobal = 60000
	}
	if cfg.ProofCharBudget <= 0 {
		cfg.ProofCharBudget = 2000
	}
	return &Inferencer{oracle: o, cfg: cfg}
}

// Run adds dependency edges to graph in place. enh supplies the artifact
// term maps and bank from enhancement; nil falls back to cartesian
// candidate pairs. An empty candidate set leaves the graph unchanged.
func (inf *Inferencer) Run(ctx context.Context, graph *types.DocumentGraph, enh *enhance.Result) error {
	arts := graph.InternalArtifacts()
	if len(arts) < 2 {
		return nil
	}

	mode := inf.cfg.Mode
	if mode == types.InferAuto {
		mode = inf.autoMode(arts)
	}

	switch mode {
	case types.InferGlobal:
		return inf.runGlobal(ctx, graph, arts)
	case types.InferHybrid:
		return inf.runHybrid(ctx, graph, arts)
	default:
		return inf.runPairwise(ctx, graph, arts, enh)
	}
}

// autoMode sizes the graph: global for graphs that fit the request budget
// and are large enough to amortize it, hybrid for small graphs, pairwise
// for everything over budget. Per prd006-inference R3.6.
func (inf *Inferencer) autoMode(arts []*types.Artifact) types.InferMode {
	chars := 0
	for _, a := range arts {
		p := len(a.Proof)
		if p > inf.cfg.ProofCharBudget {
			p = inf.cfg.ProofCharBudget
		}
		chars += len(a.Content) + p
	}
	tokens := chars / 4

	if len(arts) <= inf.cfg.AutoMaxNodesGlobal && tokens <= inf.cfg.AutoMaxTokensGlobal {
		if len(arts) > autoHybridMaxNodes {
			return types.InferGlobal
		}
		return types.InferHybrid
	}
	return types.InferPairwise
}

// runPairwise verifies each candidate pair with one oracle call, ordered
// (later, earlier) by document position so edges point backwards.
func (inf *Inferencer) runPairwise(ctx context.Context, graph *types.DocumentGraph, arts []*types.Artifact, enh *enhance.Result) error {
	for _, pair := range inf.candidatePairs(graph, arts, enh) {
		src, dst := orderPair(arts[pair[0]], arts[pair[1]])
		if err := inf.verifyPair(ctx, graph, src, dst); err != nil {
			return err
		}
	}
	return nil
}

// runGlobal asks for the whole edge set in one request and keeps every
// well-formed edge between known internal artifacts.
func (inf *Inferencer) runGlobal(ctx context.Context, graph *types.DocumentGraph, arts []*types.Artifact) error {
	proposals, err := inf.oracle.GlobalDependency(ctx, inf.payloads(arts))
	if err != nil {
		return fmt.Errorf("global dependency inference: %w", err)
	}

	internal := internalByID(arts)
	for _, p := range proposals {
		if p.SourceID == p.TargetID {
			continue
		}
		if _, ok := internal[p.SourceID]; !ok {
			continue
		}
		if _, ok := internal[p.TargetID]; !ok {
			continue
		}
		depType, err := types.ParseDependencyType(p.DependencyType)
		if err != nil {
			continue
		}
		// AddEdge drops duplicates silently.
		_ = graph.AddEdge(types.Edge{
			SourceID:      p.SourceID,
			TargetID:      p.TargetID,
			Kind:          types.EdgeDependency,
			DepType:       depType,
			Justification: p.Justification,
		})
	}
	return nil
}

// runHybrid narrows a cheap proposal pass to the configured caps, then
// verifies each survivor pairwise in the proposed direction.
func (inf *Inferencer) runHybrid(ctx context.Context, graph *types.DocumentGraph, arts []*types.Artifact) error {
	proposals, err := inf.oracle.GlobalDependencyProposal(ctx, inf.payloads(arts))
	if err != nil {
		return fmt.Errorf("dependency proposal: %w", err)
	}

	internal := internalByID(arts)
	perSource := make(map[string]int)
	seen := make(map[string]bool)
	var kept []oracle.EdgeProposal
	for _, p := range proposals {
		if len(kept) >= inf.cfg.HybridMaxTotalCandidates {
			break
		}
		if p.SourceID == p.TargetID {
			continue
		}
		if _, ok := internal[p.SourceID]; !ok {
			continue
		}
		if _, ok := internal[p.TargetID]; !ok {
			continue
		}
		key := p.SourceID + "\x00" + p.TargetID
		if seen[key] {
			continue
		}
		seen[key] = true
		if perSource[p.SourceID] >= inf.cfg.HybridTopKPerSource {
			continue
		}
		perSource[p.SourceID]++
		kept = append(kept, p)
	}
	if len(kept) > inf.cfg.MaxTotalPairs {
		kept = kept[:inf.cfg.MaxTotalPairs]
	}

	for _, p := range kept {
		if err := inf.verifyPair(ctx, graph, internal[p.SourceID], internal[p.TargetID]); err != nil {
			return err
		}
	}
	return nil
}

// verifyPair asks the oracle whether src depends on dst and records the
// confirmed edge.
func (inf *Inferencer) verifyPair(ctx context.Context, graph *types.DocumentGraph, src, dst *types.Artifact) error {
	verdict, err := inf.oracle.PairwiseDependency(ctx, oracle.PairRequest{
		SourceID:    src.ID,
		SourceTeX:   src.Content,
		SourceProof: truncate(src.Proof, inf.cfg.ProofCharBudget),
		TargetID:    dst.ID,
		TargetTeX:   dst.Content,
		TargetProof: truncate(dst.Proof, inf.cfg.ProofCharBudget),
	})
	if err != nil {
		return fmt.Errorf("pairwise dependency %s -> %s: %w", src.ID, dst.ID, err)
	}
	if !verdict.HasDependency {
		return nil
	}
	depType, err := types.ParseDependencyType(verdict.DependencyType)
	if err != nil {
		return nil
	}
	_ = graph.AddEdge(types.Edge{
		SourceID:      src.ID,
		TargetID:      dst.ID,
		Kind:          types.EdgeDependency,
		DepType:       depType,
		Justification: verdict.Justification,
	})
	return nil
}

// candidatePairs returns index pairs (i < j) worth a verification call.
// Pairs already joined by a reference edge are skipped; with enhancement
// data, pairs must share a concept. The result is capped at MaxTotalPairs
// in document order, so reruns are reproducible.
func (inf *Inferencer) candidatePairs(graph *types.DocumentGraph, arts []*types.Artifact, enh *enhance.Result) [][2]int {
	var fp map[string]map[string]bool
	if enh != nil {
		fp = footprints(arts, enh)
	}

	var pairs [][2]int
	for i := 0; i < len(arts); i++ {
		for j := i + 1; j < len(arts); j++ {
			if graph.HasEdge(arts[i].ID, arts[j].ID, types.EdgeReference) {
				continue
			}
			if fp != nil && !conceptsOverlap(fp[arts[i].ID], fp[arts[j].ID]) {
				continue
			}
			pairs = append(pairs, [2]int{i, j})
		}
	}
	if len(pairs) > inf.cfg.MaxTotalPairs {
		pairs = pairs[:inf.cfg.MaxTotalPairs]
	}
	return pairs
}

// footprints maps each artifact to its conceptual footprint: the canonical
// forms of its direct terms plus every bank dependency of those terms.
// Per prd006-inference R2.3.
func footprints(arts []*types.Artifact, enh *enhance.Result) map[string]map[string]bool {
	fp := make(map[string]map[string]bool, len(arts))
	for _, a := range arts {
		set := make(map[string]bool)
		for _, term := range enh.ArtifactTerms[a.ID] {
			key := defbank.Canonical(term)
			if key == "" {
				continue
			}
			set[key] = true
			if d, ok := enh.Bank.Find(term); ok {
				set[d.Term] = true
				for _, dep := range d.Dependencies {
					set[dep] = true
				}
			}
		}
		fp[a.ID] = set
	}
	return fp
}

// conceptsOverlap reports whether two footprints intersect or hold terms in
// a sub-word relation.
func conceptsOverlap(a, b map[string]bool) bool {
	for t := range a {
		if b[t] {
			return true
		}
	}
	for ta := range a {
		for tb := range b {
			if subWordRelation(ta, tb) {
				return true
			}
		}
	}
	return false
}

// subWordRelation reports whether the token set of one term is a proper
// subset of the token set of the other, e.g. "union closed" against
// "union closed family".
func subWordRelation(a, b string) bool {
	ta, tb := tokenSet(a), tokenSet(b)
	return properSubset(ta, tb) || properSubset(tb, ta)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(s) {
		set[f] = true
	}
	return set
}

func properSubset(a, b map[string]bool) bool {
	if len(a) == 0 || len(a) >= len(b) {
		return false
	}
	for t := range a {
		if !b[t] {
			return false
		}
	}
	return true
}

// orderPair returns (later, earlier) by start line: dependency edges point
// backwards in the document.
func orderPair(a, b *types.Artifact) (*types.Artifact, *types.Artifact) {
	if a.Span.StartLine >= b.Span.StartLine {
		return a, b
	}
	return b, a
}

func internalByID(arts []*types.Artifact) map[string]*types.Artifact {
	m := make(map[string]*types.Artifact, len(arts))
	for _, a := range arts {
		m[a.ID] = a
	}
	return m
}

// truncate clips s to at most n bytes.
func truncate(s string, n int) string {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

func (inf *Inferencer) payloads(arts []*types.Artifact) []oracle.ArtifactPayload {
	out := make([]oracle.ArtifactPayload, len(arts))
	for i, a := range arts {
		out[i] = oracle.ArtifactPayload{
			ID:      a.ID,
			Type:    string(a.Type),
			Content: a.Content,
			Proof:   truncate(a.Proof, inf.cfg.ProofCharBudget),
		}
	}
	return out
}
