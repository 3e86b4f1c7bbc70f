// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"

	"github.com/pdiddy/arxitex/internal/faults"
	"github.com/pdiddy/arxitex/internal/texnorm"
	"github.com/pdiddy/arxitex/pkg/types"
)

// Result carries everything the structural pass produces for one paper.
type Result struct {
	Graph  *types.DocumentGraph
	Macros map[string]string

	// Body is the comment-stripped, normalized combined source. Artifact
	// spans index into it, and enhancement reads synthesis context from it.
	Body string

	Warnings []string
}

// BuildGraph runs the structural phases over an unpacked source directory:
// combine sources, strip comments, normalize the TeX dialect, discover and
// parse statement environments, attach proofs, and turn references and
// citations into edges. A paper that yields no artifacts at all is a
// classified graph_empty failure; individual malformed environments are not.
func BuildGraph(paperID, dir string, mode types.Mode) (*Result, error) {
	combined, err := CombineSources(dir)
	if err != nil {
		return nil, err
	}

	text := StripComments(combined.Text)
	text, _ = texnorm.Normalize(text)

	macros := ExtractMacros(text)
	table := DiscoverEnvironments(text)
	arts, proofs, warnings := parseEnvironments(text, table)
	attachProofs(arts, proofs, text)

	bib, bibWarnings := ParseBibliography(dir, text)
	warnings = append(warnings, bibWarnings...)

	graph := types.NewDocumentGraph(paperID, mode)
	for _, a := range arts {
		if err := graph.AddNode(a.art); err != nil {
			warnings = append(warnings, err.Error())
		}
	}

	resolver := newLabelResolver(arts, text)
	bibByKey := make(map[string]BibEntry, len(bib))
	bibKeys := make(map[string]bool, len(bib))
	for _, e := range bib {
		bibByKey[e.Key] = e
		bibKeys[e.Key] = true
	}

	for _, a := range arts {
		bodies := []string{a.art.Content}
		if a.art.Proof != "" {
			bodies = append(bodies, a.art.Proof)
		}
		for _, body := range bodies {
			warnings = append(warnings, linkInternal(graph, a.art.ID, body, resolver)...)
			warnings = append(warnings, linkExternal(graph, a.art.ID, body, bibKeys, bibByKey)...)
		}
	}

	if len(graph.Nodes) == 0 {
		return nil, faults.New(faults.CodeGraphEmpty, "no artifacts extracted for %s", paperID)
	}

	return &Result{Graph: graph, Macros: macros, Body: text, Warnings: warnings}, nil
}

// linkInternal adds one internal reference edge per resolved \ref-family
// occurrence in body. References to labels that exist in the document but
// belong to no artifact (equations, sections, figures) are silently ignored;
// references to labels defined nowhere warn as dangling.
func linkInternal(graph *types.DocumentGraph, sourceID, body string, resolver *labelResolver) []string {
	var warnings []string
	for _, occ := range scanInternalRefs(body) {
		targetID, ok := resolver.resolve(occ.key)
		if !ok {
			if !resolver.knownLabel(occ.key) {
				warnings = append(warnings, fmt.Sprintf("dangling reference %q in %s", occ.key, sourceID))
			}
			continue
		}
		if targetID == sourceID {
			continue
		}
		if err := graph.AddEdge(types.Edge{
			SourceID: sourceID,
			TargetID: targetID,
			Kind:     types.EdgeReference,
			RefType:  types.RefInternal,
			Context:  occ.context,
		}); err != nil {
			warnings = append(warnings, err.Error())
		}
	}
	return warnings
}

// linkExternal adds one external reference edge per citation occurrence in
// body, creating the external_<key> artifact on first sight. Manual bracket
// citations count only when the key is known from the bibliography.
func linkExternal(graph *types.DocumentGraph, sourceID, body string, bibKeys map[string]bool, bibByKey map[string]BibEntry) []string {
	var warnings []string
	occs := scanCitations(body)
	occs = append(occs, scanManualSpans(body, bibKeys)...)
	for _, occ := range occs {
		extID := externalID(occ.key)
		if _, ok := graph.Node(extID); !ok {
			ext := &types.Artifact{
				ID:      extID,
				Type:    types.ArtifactExternalReference,
				Label:   occ.key,
				Content: bibByKey[occ.key].Text,
			}
			if err := graph.AddNode(ext); err != nil {
				warnings = append(warnings, err.Error())
				continue
			}
		}
		if err := graph.AddEdge(types.Edge{
			SourceID: sourceID,
			TargetID: extID,
			Kind:     types.EdgeReference,
			RefType:  types.RefExternal,
			Context:  occ.context,
		}); err != nil {
			warnings = append(warnings, err.Error())
		}
	}
	return warnings
}

// externalID is the node ID standing in for a cited work.
func externalID(key string) string { return "external_" + key }
