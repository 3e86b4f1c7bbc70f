// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pdiddy/arxitex/pkg/types"
)

// ExportPaper assembles the downstream JSON payload for a stored paper.
// The definition bank section is nil for papers processed in regex mode,
// which serializes as null.
func (s *Store) ExportPaper(ctx context.Context, paperID string) (*types.ExportPayload, error) {
	graph, err := s.LoadDocumentGraph(ctx, paperID, true)
	if err != nil {
		return nil, err
	}

	payload := &types.ExportPayload{
		Graph: types.GraphExport{
			ArxivID:       graph.PaperID,
			ExtractorMode: graph.Mode,
			Stats:         graph.Stats(),
			Nodes:         graph.Nodes,
			Edges:         graph.Edges,
		},
		ArtifactTerms: map[string][]string{},
		LatexMacros:   map[string]string{},
	}

	bank, err := s.loadBankExport(ctx, paperID)
	if err != nil {
		return nil, err
	}
	payload.DefinitionBank = bank

	rows, err := s.db.QueryContext(ctx,
		`SELECT artifact_id, term_raw FROM artifact_terms
			WHERE paper_id = ? ORDER BY artifact_id, ord`, paperID)
	if err != nil {
		return nil, fmt.Errorf("querying artifact terms: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var artifactID, raw string
		if err := rows.Scan(&artifactID, &raw); err != nil {
			return nil, fmt.Errorf("scanning artifact term: %w", err)
		}
		payload.ArtifactTerms[artifactID] = append(payload.ArtifactTerms[artifactID], raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating artifact terms: %w", err)
	}

	macroRows, err := s.db.QueryContext(ctx,
		`SELECT name, replacement FROM paper_macros WHERE paper_id = ?`, paperID)
	if err != nil {
		return nil, fmt.Errorf("querying macros: %w", err)
	}
	defer macroRows.Close()
	for macroRows.Next() {
		var name, replacement string
		if err := macroRows.Scan(&name, &replacement); err != nil {
			return nil, fmt.Errorf("scanning macro: %w", err)
		}
		payload.LatexMacros[name] = replacement
	}
	if err := macroRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating macros: %w", err)
	}

	return payload, nil
}

// loadBankExport rebuilds the definition bank section from the definitions,
// alias, and dependency tables. Returns nil when the paper has no
// definition rows.
func (s *Store) loadBankExport(ctx context.Context, paperID string) (*types.DefinitionBankExport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term_canonical, term_original, definition_text, is_synthesized, source_artifact_id
			FROM definitions WHERE paper_id = ? ORDER BY term_canonical`, paperID)
	if err != nil {
		return nil, fmt.Errorf("querying definitions: %w", err)
	}
	defer rows.Close()

	var defs []types.Definition
	byTerm := make(map[string]int)
	for rows.Next() {
		var (
			d        types.Definition
			original sql.NullString
			source   sql.NullString
		)
		if err := rows.Scan(&d.Term, &original, &d.Text, &d.Synthesized, &source); err != nil {
			return nil, fmt.Errorf("scanning definition: %w", err)
		}
		d.TermOriginal = original.String
		d.SourceArtifactID = source.String
		byTerm[d.Term] = len(defs)
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating definitions: %w", err)
	}
	if len(defs) == 0 {
		return nil, nil
	}

	aliasRows, err := s.db.QueryContext(ctx,
		`SELECT term_canonical, alias FROM definition_aliases
			WHERE paper_id = ? ORDER BY term_canonical, alias`, paperID)
	if err != nil {
		return nil, fmt.Errorf("querying aliases: %w", err)
	}
	defer aliasRows.Close()

	aliases := make(map[string]string)
	for aliasRows.Next() {
		var term, alias string
		if err := aliasRows.Scan(&term, &alias); err != nil {
			return nil, fmt.Errorf("scanning alias: %w", err)
		}
		aliases[alias] = term
		if i, ok := byTerm[term]; ok {
			defs[i].Aliases = append(defs[i].Aliases, alias)
		}
	}
	if err := aliasRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating aliases: %w", err)
	}

	depRows, err := s.db.QueryContext(ctx,
		`SELECT term_canonical, depends_on_term_canonical FROM definition_dependencies
			WHERE paper_id = ? ORDER BY term_canonical, depends_on_term_canonical`, paperID)
	if err != nil {
		return nil, fmt.Errorf("querying dependencies: %w", err)
	}
	defer depRows.Close()

	for depRows.Next() {
		var term, dep string
		if err := depRows.Scan(&term, &dep); err != nil {
			return nil, fmt.Errorf("scanning dependency: %w", err)
		}
		if i, ok := byTerm[term]; ok {
			defs[i].Dependencies = append(defs[i].Dependencies, dep)
		}
	}
	if err := depRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dependencies: %w", err)
	}

	out := &types.DefinitionBankExport{Definitions: defs}
	if len(aliases) > 0 {
		out.Aliases = aliases
	}
	return out, nil
}
