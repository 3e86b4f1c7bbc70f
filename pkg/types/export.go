// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// GraphExport is the graph section of an export payload.
type GraphExport struct {
	ArxivID       string      `json:"arxiv_id"`
	ExtractorMode Mode        `json:"extractor_mode"`
	Stats         GraphStats  `json:"stats"`
	Nodes         []*Artifact `json:"nodes"`
	Edges         []Edge      `json:"edges"`
}

// DefinitionBankExport is the serialized definition bank: definitions sorted
// by canonical term, plus the alias->term fold map.
type DefinitionBankExport struct {
	Definitions []Definition      `json:"definitions"`
	Aliases     map[string]string `json:"aliases,omitempty"`
}

// ExportPayload is the downstream-facing JSON document for one paper.
// DefinitionBank is nil for regex runs and serializes as null.
// Per prd007-store R5.1.
type ExportPayload struct {
	Graph          GraphExport           `json:"graph"`
	DefinitionBank *DefinitionBankExport `json:"definition_bank"`
	ArtifactTerms  map[string][]string   `json:"artifact_to_terms_map"`
	LatexMacros    map[string]string     `json:"latex_macros"`
}

// ExportFilename returns the canonical export file name for a paper. Legacy
// identifiers contain a slash, which is replaced so the name stays flat.
func ExportFilename(paperID string) string {
	return "arxiv_" + strings.ReplaceAll(paperID, "/", "_") + ".json"
}
