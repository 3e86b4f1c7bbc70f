// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package oracle addresses a generative model through typed, schema-bound
// calls. Each call kind carries its own prompt template and response schema;
// responses that fail validation are retried once and then fail the call.
// Implements: prd005-enhancement R5, prd006-inference R5.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/pdiddy/arxitex/pkg/types"
)

// Oracle is the typed surface the enhancement and inference stages call.
// Implementations must be safe for concurrent use.
type Oracle interface {
	// ExtractDefinition reads one definition environment and names the term
	// it defines.
	ExtractDefinition(ctx context.Context, artifactTeX string) (ExtractedDefinition, error)

	// ExtractTermsGlobal lists specialized terms over the sentinel-joined
	// contents of every artifact in a paper.
	ExtractTermsGlobal(ctx context.Context, combined string) ([]string, error)

	// ExtractTermsSingle lists specialized terms used by one artifact.
	ExtractTermsSingle(ctx context.Context, artifactTeX string) ([]string, error)

	// SynthesizeDefinition writes a definition for a term from document
	// context, or reports that the context does not support one.
	SynthesizeDefinition(ctx context.Context, req SynthesisRequest) (SynthesisResult, error)

	// PairwiseDependency judges whether the source artifact of req depends
	// on the target.
	PairwiseDependency(ctx context.Context, req PairRequest) (PairVerdict, error)

	// GlobalDependency returns a sparse dependency edge list over all
	// internal artifacts in one call.
	GlobalDependency(ctx context.Context, artifacts []ArtifactPayload) ([]EdgeProposal, error)

	// GlobalDependencyProposal returns candidate edges only, to be verified
	// pairwise afterwards.
	GlobalDependencyProposal(ctx context.Context, artifacts []ArtifactPayload) ([]EdgeProposal, error)
}

// ExtractedDefinition is the response to an ExtractDefinition call.
type ExtractedDefinition struct {
	DefinedTerm    string   `json:"defined_term"`
	DefinitionText string   `json:"definition_text"`
	Aliases        []string `json:"aliases"`
}

// SynthesisRequest asks for a definition of Term supported by Context.
// Base carries the closest pre-existing definition when one is known.
type SynthesisRequest struct {
	Term           string
	Context        string
	BaseTerm       string
	BaseDefinition string
}

// SynthesisResult is the response to a SynthesizeDefinition call. When the
// model judges the context insufficient, Definition is empty.
type SynthesisResult struct {
	ContextWasSufficient bool   `json:"context_was_sufficient"`
	Definition           string `json:"definition"`
}

// PairRequest holds the two artifacts of a pairwise dependency check.
// Source is the later artifact, the one that may depend on Target.
type PairRequest struct {
	SourceID    string
	SourceTeX   string
	SourceProof string
	TargetID    string
	TargetTeX   string
	TargetProof string
}

// PairVerdict is the response to a PairwiseDependency call.
type PairVerdict struct {
	HasDependency  bool   `json:"has_dependency"`
	DependencyType string `json:"dependency_type"`
	Justification  string `json:"justification"`
}

// ArtifactPayload is one artifact as presented to a global call. Proof is
// truncated by the caller before building the payload.
type ArtifactPayload struct {
	ID      string
	Type    string
	Content string
	Proof   string
}

// EdgeProposal is one edge of a global response: SourceID depends on
// TargetID. Proposal calls leave DependencyType and Justification empty.
type EdgeProposal struct {
	SourceID       string `json:"source_id"`
	TargetID       string `json:"target_id"`
	DependencyType string `json:"dependency_type"`
	Justification  string `json:"justification"`
}

// Backend produces one raw JSON response for a prompt under a response
// schema. Gemini is the production implementation; Cache wraps any Backend.
type Backend interface {
	Generate(ctx context.Context, prompt string, schema *genai.Schema) ([]byte, error)

	// Model identifies the underlying model for cache keying.
	Model() string
}

// Client implements Oracle on top of a Backend. A response that decodes but
// violates its call contract is requested once more before failing.
type Client struct {
	backend Backend
}

// NewClient returns an Oracle backed by backend.
func NewClient(backend Backend) *Client {
	return &Client{backend: backend}
}

// invoke runs one schema-bound call: generate, decode into out, validate.
// Decode and validation failures get a single retry.
func (c *Client) invoke(ctx context.Context, prompt string, schema *genai.Schema, out any, validate func() error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := c.backend.Generate(ctx, prompt, schema)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, out); err != nil {
			lastErr = fmt.Errorf("decoding model response: %w", err)
			continue
		}
		if validate != nil {
			if err := validate(); err != nil {
				lastErr = fmt.Errorf("model response failed validation: %w", err)
				continue
			}
		}
		return nil
	}
	return lastErr
}

// ExtractDefinition implements Oracle.
func (c *Client) ExtractDefinition(ctx context.Context, artifactTeX string) (ExtractedDefinition, error) {
	prompt, err := renderExtractDefinition(artifactTeX)
	if err != nil {
		return ExtractedDefinition{}, err
	}
	var out ExtractedDefinition
	err = c.invoke(ctx, prompt, extractDefinitionSchema, &out, func() error {
		if out.DefinedTerm == "" {
			return fmt.Errorf("empty defined_term")
		}
		if out.DefinitionText == "" {
			return fmt.Errorf("empty definition_text")
		}
		return nil
	})
	return out, err
}

// termsResponse is the shared wire shape of both term-extraction calls.
type termsResponse struct {
	Terms []string `json:"terms"`
}

// ExtractTermsGlobal implements Oracle. An empty term list is a valid
// response.
func (c *Client) ExtractTermsGlobal(ctx context.Context, combined string) ([]string, error) {
	prompt, err := renderExtractTermsGlobal(combined)
	if err != nil {
		return nil, err
	}
	var out termsResponse
	if err := c.invoke(ctx, prompt, extractTermsSchema, &out, nil); err != nil {
		return nil, err
	}
	return out.Terms, nil
}

// ExtractTermsSingle implements Oracle.
func (c *Client) ExtractTermsSingle(ctx context.Context, artifactTeX string) ([]string, error) {
	prompt, err := renderExtractTermsSingle(artifactTeX)
	if err != nil {
		return nil, err
	}
	var out termsResponse
	if err := c.invoke(ctx, prompt, extractTermsSchema, &out, nil); err != nil {
		return nil, err
	}
	return out.Terms, nil
}

// SynthesizeDefinition implements Oracle.
func (c *Client) SynthesizeDefinition(ctx context.Context, req SynthesisRequest) (SynthesisResult, error) {
	prompt, err := renderSynthesizeDefinition(req)
	if err != nil {
		return SynthesisResult{}, err
	}
	var out SynthesisResult
	err = c.invoke(ctx, prompt, synthesizeDefinitionSchema, &out, func() error {
		if out.ContextWasSufficient && out.Definition == "" {
			return fmt.Errorf("sufficient context but empty definition")
		}
		return nil
	})
	return out, err
}

// PairwiseDependency implements Oracle.
func (c *Client) PairwiseDependency(ctx context.Context, req PairRequest) (PairVerdict, error) {
	prompt, err := renderPairwiseDependency(req)
	if err != nil {
		return PairVerdict{}, err
	}
	var out PairVerdict
	err = c.invoke(ctx, prompt, pairwiseDependencySchema, &out, func() error {
		if !out.HasDependency {
			return nil
		}
		if _, err := types.ParseDependencyType(out.DependencyType); err != nil {
			return err
		}
		return nil
	})
	return out, err
}

// edgesResponse is the shared wire shape of both global calls.
type edgesResponse struct {
	Edges []EdgeProposal `json:"edges"`
}

// GlobalDependency implements Oracle. Edges with malformed fields are kept
// here and dropped by the inference stage, which knows the graph.
func (c *Client) GlobalDependency(ctx context.Context, artifacts []ArtifactPayload) ([]EdgeProposal, error) {
	prompt, err := renderGlobalDependency(artifacts)
	if err != nil {
		return nil, err
	}
	var out edgesResponse
	if err := c.invoke(ctx, prompt, globalDependencySchema, &out, nil); err != nil {
		return nil, err
	}
	return out.Edges, nil
}

// GlobalDependencyProposal implements Oracle.
func (c *Client) GlobalDependencyProposal(ctx context.Context, artifacts []ArtifactPayload) ([]EdgeProposal, error) {
	prompt, err := renderGlobalDependencyProposal(artifacts)
	if err != nil {
		return nil, err
	}
	var out edgesResponse
	if err := c.invoke(ctx, prompt, globalProposalSchema, &out, nil); err != nil {
		return nil, err
	}
	return out.Edges, nil
}

// dependencyTypeValues lists the enum values accepted on the wire.
var dependencyTypeValues = []string{
	string(types.DepUsesResult),
	string(types.DepUsesDefinition),
	string(types.DepProves),
	string(types.DepProvidesExample),
	string(types.DepProvidesRemark),
	string(types.DepIsCorollaryOf),
	string(types.DepIsSpecialCaseOf),
	string(types.DepIsGeneralizationOf),
}

// Response schemas, one per call kind. Gemini enforces these server-side;
// the Client revalidates the fields that matter.
var (
	extractDefinitionSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"defined_term": {
				Type:        genai.TypeString,
				Description: "The exact term this definition environment defines.",
			},
			"definition_text": {
				Type:        genai.TypeString,
				Description: "A self-contained statement of the definition.",
			},
			"aliases": {
				Type:        genai.TypeArray,
				Description: "Alternative names or notations for the same term.",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"defined_term", "definition_text"},
	}

	extractTermsSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"terms": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"terms"},
	}

	synthesizeDefinitionSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"context_was_sufficient": {
				Type:        genai.TypeBoolean,
				Description: "Whether the provided context supports a faithful definition.",
			},
			"definition": {
				Type:        genai.TypeString,
				Description: "The definition, empty when the context was insufficient.",
			},
		},
		Required: []string{"context_was_sufficient"},
	}

	pairwiseDependencySchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"has_dependency": {Type: genai.TypeBoolean},
			"dependency_type": {
				Type: genai.TypeString,
				Enum: dependencyTypeValues,
			},
			"justification": {Type: genai.TypeString},
		},
		Required: []string{"has_dependency"},
	}

	globalDependencySchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"edges": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"source_id": {Type: genai.TypeString},
						"target_id": {Type: genai.TypeString},
						"dependency_type": {
							Type: genai.TypeString,
							Enum: dependencyTypeValues,
						},
						"justification": {Type: genai.TypeString},
					},
					Required: []string{"source_id", "target_id", "dependency_type"},
				},
			},
		},
		Required: []string{"edges"},
	}

	globalProposalSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"edges": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"source_id": {Type: genai.TypeString},
						"target_id": {Type: genai.TypeString},
					},
					Required: []string{"source_id", "target_id"},
				},
			},
		},
		Required: []string{"edges"},
	}
)
