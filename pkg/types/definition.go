// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Definition is one entry of a paper's definition bank.
// Per prd004-definition-bank R1.2.
type Definition struct {
	// Term is the canonical form of the defined term.
	Term string `json:"term" yaml:"term"`

	// TermOriginal is the term as it appeared in the source before
	// canonicalization.
	TermOriginal string `json:"term_original,omitempty" yaml:"term_original,omitempty"`

	// Text is the definition text.
	Text string `json:"definition" yaml:"definition"`

	// Synthesized is true when the definition was generated from context
	// rather than extracted from a definition environment.
	Synthesized bool `json:"synthesized,omitempty" yaml:"synthesized,omitempty"`

	// SourceArtifactID names the artifact the definition came from, or a
	// "synthesized_from_context_for_<id>" marker for generated entries.
	SourceArtifactID string `json:"source_artifact_id,omitempty" yaml:"source_artifact_id,omitempty"`

	// Aliases lists alternative canonical terms folded into this entry.
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`

	// Dependencies lists canonical terms this definition's text relies on.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}
