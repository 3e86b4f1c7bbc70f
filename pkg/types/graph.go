// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the arxitex pipeline.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ArtifactType classifies a mathematical statement environment.
// Per prd003-graph-extraction R2.1.
type ArtifactType string

const (
	ArtifactTheorem     ArtifactType = "theorem"
	ArtifactLemma       ArtifactType = "lemma"
	ArtifactProposition ArtifactType = "proposition"
	ArtifactCorollary   ArtifactType = "corollary"
	ArtifactDefinition  ArtifactType = "definition"
	ArtifactRemark      ArtifactType = "remark"
	ArtifactExample     ArtifactType = "example"
	ArtifactClaim       ArtifactType = "claim"
	ArtifactObservation ArtifactType = "observation"
	ArtifactFact        ArtifactType = "fact"
	ArtifactConjecture  ArtifactType = "conjecture"
	ArtifactUnknown     ArtifactType = "unknown"

	// ArtifactExternalReference marks a bibliography entry promoted to a
	// graph node so that citation edges have a target.
	ArtifactExternalReference ArtifactType = "external_reference"
)

// artifactKeywords maps a type keyword to its artifact type. Order matters:
// classification scans in this order and the first keyword contained in the
// name wins, so "Main Theorem" resolves before any later keyword could.
var artifactKeywords = []struct {
	keyword string
	typ     ArtifactType
}{
	{"theorem", ArtifactTheorem},
	{"lemma", ArtifactLemma},
	{"proposition", ArtifactProposition},
	{"corollary", ArtifactCorollary},
	{"definition", ArtifactDefinition},
	{"remark", ArtifactRemark},
	{"example", ArtifactExample},
	{"claim", ArtifactClaim},
	{"observation", ArtifactObservation},
	{"fact", ArtifactFact},
	{"conjecture", ArtifactConjecture},
}

// abbreviatedEnvs covers the short environment names common in arXiv sources
// that contain no full keyword ("thm", "lem", "prop", "cor", "defn", ...).
var abbreviatedEnvs = map[string]ArtifactType{
	"thm":  ArtifactTheorem,
	"lem":  ArtifactLemma,
	"prop": ArtifactProposition,
	"cor":  ArtifactCorollary,
	"defn": ArtifactDefinition,
	"def":  ArtifactDefinition,
	"rem":  ArtifactRemark,
	"rmk":  ArtifactRemark,
	"ex":   ArtifactExample,
	"exa":  ArtifactExample,
	"obs":  ArtifactObservation,
	"conj": ArtifactConjecture,
}

// ClassifyArtifactType maps an environment name or display title to an
// artifact type. Matching is case-insensitive; unrecognized names classify
// as unknown rather than failing.
func ClassifyArtifactType(name string) ArtifactType {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, k := range artifactKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.typ
		}
	}
	if t, ok := abbreviatedEnvs[lower]; ok {
		return t
	}
	return ArtifactUnknown
}

// EdgeKind distinguishes the two edge families of a document graph.
// Per prd003-graph-extraction R4.1.
type EdgeKind string

const (
	EdgeReference  EdgeKind = "reference"
	EdgeDependency EdgeKind = "dependency"
)

// ReferenceType qualifies a reference edge by where its target lives.
type ReferenceType string

const (
	RefInternal ReferenceType = "internal"
	RefExternal ReferenceType = "external"
)

// DependencyType qualifies an inferred dependency edge.
// Per prd006-inference R2.2.
type DependencyType string

const (
	DepUsesResult         DependencyType = "uses_result"
	DepUsesDefinition     DependencyType = "uses_definition"
	DepProves             DependencyType = "proves"
	DepProvidesExample    DependencyType = "provides_example"
	DepProvidesRemark     DependencyType = "provides_remark"
	DepIsCorollaryOf      DependencyType = "is_corollary_of"
	DepIsSpecialCaseOf    DependencyType = "is_special_case_of"
	DepIsGeneralizationOf DependencyType = "is_generalization_of"
)

var validDependencyTypes = map[DependencyType]bool{
	DepUsesResult:         true,
	DepUsesDefinition:     true,
	DepProves:             true,
	DepProvidesExample:    true,
	DepProvidesRemark:     true,
	DepIsCorollaryOf:      true,
	DepIsSpecialCaseOf:    true,
	DepIsGeneralizationOf: true,
}

// ParseDependencyType validates a dependency type received from an external
// model response.
func ParseDependencyType(s string) (DependencyType, error) {
	t := DependencyType(strings.TrimSpace(strings.ToLower(s)))
	if !validDependencyTypes[t] {
		return "", fmt.Errorf("unknown dependency type %q", s)
	}
	return t, nil
}

// Span records where an artifact sits in the combined source, 1-based.
type Span struct {
	StartLine int `json:"start_line" yaml:"start_line"`
	StartCol  int `json:"start_col" yaml:"start_col"`
	EndLine   int `json:"end_line" yaml:"end_line"`
	EndCol    int `json:"end_col" yaml:"end_col"`
}

// TermDefinition pairs a term with its definition text. Prerequisite lists
// use a slice of these rather than a map so ordering survives serialization.
type TermDefinition struct {
	Term       string `json:"term" yaml:"term"`
	Definition string `json:"definition" yaml:"definition"`
}

// Artifact is one node of a document graph: a statement environment lifted
// from the LaTeX source, or an external bibliography entry.
// Per prd003-graph-extraction R2.2-R2.5.
type Artifact struct {
	// ID is unique within a paper: "<env>-<counter>-<hash6>" for internal
	// artifacts, "external_<bibkey>" for external references.
	ID string `json:"id" yaml:"id"`

	// Type is the classified artifact type.
	Type ArtifactType `json:"type" yaml:"type"`

	// Env is the literal environment name as written in the source
	// (e.g. "thm"). Empty for external references.
	Env string `json:"env,omitempty" yaml:"env,omitempty"`

	// Label is the first \label found in the environment body, or the
	// bibliography key for external references. May be empty.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Title is the optional bracket title, e.g. \begin{theorem}[Main].
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Content is the raw TeX body of the environment, or the bibliography
	// entry text for external references.
	Content string `json:"content" yaml:"content"`

	// Proof is the body of the attached proof environment, if any.
	Proof string `json:"proof,omitempty" yaml:"proof,omitempty"`

	// Span locates the environment in the combined source. Zero for
	// external references.
	Span Span `json:"span" yaml:"span"`

	// Prerequisites lists term definitions required to read this artifact,
	// ordered by first appearance of each term in the document.
	Prerequisites []TermDefinition `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
}

// IsExternal reports whether the artifact stands in for a cited work rather
// than a statement of this paper.
func (a *Artifact) IsExternal() bool {
	return a.Type == ArtifactExternalReference
}

// Edge connects two artifacts. Reference edges come from explicit markup
// (\ref, \cite); dependency edges are inferred.
type Edge struct {
	SourceID string   `json:"source_id" yaml:"source_id"`
	TargetID string   `json:"target_id" yaml:"target_id"`
	Kind     EdgeKind `json:"kind" yaml:"kind"`

	// RefType is set exactly when Kind is reference.
	RefType ReferenceType `json:"reference_type,omitempty" yaml:"reference_type,omitempty"`

	// DepType is set exactly when Kind is dependency.
	DepType DependencyType `json:"dependency_type,omitempty" yaml:"dependency_type,omitempty"`

	// Context is a short snippet of source text around the reference site.
	Context string `json:"context,omitempty" yaml:"context,omitempty"`

	// Justification is the model-supplied reason for a dependency edge.
	Justification string `json:"justification,omitempty" yaml:"justification,omitempty"`
}

// Validate checks the kind-specific field contract.
func (e Edge) Validate() error {
	if e.SourceID == "" || e.TargetID == "" {
		return fmt.Errorf("edge endpoints must be non-empty")
	}
	if e.SourceID == e.TargetID {
		return fmt.Errorf("self edge on %s", e.SourceID)
	}
	switch e.Kind {
	case EdgeReference:
		if e.RefType != RefInternal && e.RefType != RefExternal {
			return fmt.Errorf("reference edge %s->%s: invalid reference type %q", e.SourceID, e.TargetID, e.RefType)
		}
		if e.DepType != "" {
			return fmt.Errorf("reference edge %s->%s: dependency type must be empty", e.SourceID, e.TargetID)
		}
	case EdgeDependency:
		if !validDependencyTypes[e.DepType] {
			return fmt.Errorf("dependency edge %s->%s: invalid dependency type %q", e.SourceID, e.TargetID, e.DepType)
		}
		if e.RefType != "" {
			return fmt.Errorf("dependency edge %s->%s: reference type must be empty", e.SourceID, e.TargetID)
		}
	default:
		return fmt.Errorf("edge %s->%s: unknown kind %q", e.SourceID, e.TargetID, e.Kind)
	}
	return nil
}

type edgeKey struct {
	src, dst string
	kind     EdgeKind
}

// GraphStats summarizes a document graph for reports and exports.
type GraphStats struct {
	Nodes           int            `json:"nodes" yaml:"nodes"`
	InternalNodes   int            `json:"internal_nodes" yaml:"internal_nodes"`
	ExternalNodes   int            `json:"external_nodes" yaml:"external_nodes"`
	Edges           int            `json:"edges" yaml:"edges"`
	ReferenceEdges  int            `json:"reference_edges" yaml:"reference_edges"`
	DependencyEdges int            `json:"dependency_edges" yaml:"dependency_edges"`
	NodesByType     map[string]int `json:"nodes_by_type" yaml:"nodes_by_type"`
}

// DocumentGraph is the artifact graph of a single paper.
// Per prd003-graph-extraction R1.1: nodes keep source order, and at most one
// edge exists per (source, target, kind) triple.
type DocumentGraph struct {
	PaperID string      `json:"arxiv_id" yaml:"arxiv_id"`
	Mode    Mode        `json:"extractor_mode" yaml:"extractor_mode"`
	Nodes   []*Artifact `json:"nodes" yaml:"nodes"`
	Edges   []Edge      `json:"edges" yaml:"edges"`

	index map[string]*Artifact
	seen  map[edgeKey]bool
}

// NewDocumentGraph returns an empty graph for the given paper.
func NewDocumentGraph(paperID string, mode Mode) *DocumentGraph {
	return &DocumentGraph{
		PaperID: paperID,
		Mode:    mode,
		index:   make(map[string]*Artifact),
		seen:    make(map[edgeKey]bool),
	}
}

// AddNode appends an artifact. Duplicate IDs are rejected.
func (g *DocumentGraph) AddNode(a *Artifact) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("artifact must have an id")
	}
	if g.index == nil {
		g.reindex()
	}
	if _, ok := g.index[a.ID]; ok {
		return fmt.Errorf("duplicate artifact id %s", a.ID)
	}
	g.Nodes = append(g.Nodes, a)
	g.index[a.ID] = a
	return nil
}

// Node looks up an artifact by ID.
func (g *DocumentGraph) Node(id string) (*Artifact, bool) {
	if g.index == nil {
		g.reindex()
	}
	a, ok := g.index[id]
	return a, ok
}

// AddEdge validates and appends an edge. Both endpoints must exist, self
// edges are rejected, and a duplicate (source, target, kind) is a silent
// no-op so repeated reference sites collapse to one edge.
func (g *DocumentGraph) AddEdge(e Edge) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if g.index == nil {
		g.reindex()
	}
	if _, ok := g.index[e.SourceID]; !ok {
		return fmt.Errorf("edge source %s not in graph", e.SourceID)
	}
	if _, ok := g.index[e.TargetID]; !ok {
		return fmt.Errorf("edge target %s not in graph", e.TargetID)
	}
	k := edgeKey{e.SourceID, e.TargetID, e.Kind}
	if g.seen[k] {
		return nil
	}
	g.seen[k] = true
	g.Edges = append(g.Edges, e)
	return nil
}

// HasEdge reports whether an edge of the given kind connects a and b in
// either direction.
func (g *DocumentGraph) HasEdge(a, b string, kind EdgeKind) bool {
	if g.seen == nil {
		g.reindex()
	}
	return g.seen[edgeKey{a, b, kind}] || g.seen[edgeKey{b, a, kind}]
}

// InternalArtifacts returns the nodes extracted from the paper body,
// excluding external references, in source order.
func (g *DocumentGraph) InternalArtifacts() []*Artifact {
	var out []*Artifact
	for _, a := range g.Nodes {
		if !a.IsExternal() {
			out = append(out, a)
		}
	}
	return out
}

// Stats computes summary counters over the current nodes and edges.
func (g *DocumentGraph) Stats() GraphStats {
	s := GraphStats{NodesByType: make(map[string]int)}
	for _, a := range g.Nodes {
		s.Nodes++
		if a.IsExternal() {
			s.ExternalNodes++
		} else {
			s.InternalNodes++
		}
		s.NodesByType[string(a.Type)]++
	}
	for _, e := range g.Edges {
		s.Edges++
		switch e.Kind {
		case EdgeReference:
			s.ReferenceEdges++
		case EdgeDependency:
			s.DependencyEdges++
		}
	}
	return s
}

func (g *DocumentGraph) reindex() {
	g.index = make(map[string]*Artifact, len(g.Nodes))
	for _, a := range g.Nodes {
		g.index[a.ID] = a
	}
	g.seen = make(map[edgeKey]bool, len(g.Edges))
	for _, e := range g.Edges {
		g.seen[edgeKey{e.SourceID, e.TargetID, e.Kind}] = true
	}
}

// UnmarshalJSON rebuilds the internal indexes after decoding.
func (g *DocumentGraph) UnmarshalJSON(data []byte) error {
	type plain DocumentGraph
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*g = DocumentGraph(p)
	g.reindex()
	return nil
}
