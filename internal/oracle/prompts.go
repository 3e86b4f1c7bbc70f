// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"bytes"
	"text/template"
)

// extractDefinitionTmpl asks for the term a single definition environment
// defines. Per prd005-enhancement R2.1.
var extractDefinitionTmpl = template.Must(template.New("extract_definition").Parse(`You are reading one definition environment from a mathematics paper, in LaTeX.

Identify:
- defined_term: the exact term being defined, as a short noun phrase. Keep inline math notation when the term is notation (e.g. "$\sigma$-algebra").
- definition_text: a self-contained restatement of the definition. It must be understandable without the surrounding paper.
- aliases: other names or notations the environment itself gives for the same term. Empty if none.

Respond with a single JSON object. Do not include any text outside the JSON object.

Definition environment:
{{.Artifact}}
`))

// extractTermsGlobalTmpl asks for every specialized term used across a whole
// paper. The caller joins artifact contents with a sentinel line so the model
// sees statement boundaries. Per prd005-enhancement R3.1.
var extractTermsGlobalTmpl = template.Must(template.New("extract_terms_global").Parse(`You are reading the mathematical statements of one paper, in LaTeX. Statements are separated by sentinel lines.

List every specialized mathematical term these statements use: named concepts, named theorems, notation-bearing objects. Rules:
- Report each term once, exactly as it appears in the text.
- Skip ordinary mathematical vocabulary ("set", "function", "number") unless the paper gives it a specialized meaning.
- Skip variable names that carry no concept.

Respond with a JSON object containing a "terms" array of strings. Do not include any text outside the JSON object.

Statements:
{{.Combined}}
`))

// extractTermsSingleTmpl is the per-artifact variant of term extraction.
// Per prd005-enhancement R3.2.
var extractTermsSingleTmpl = template.Must(template.New("extract_terms_single").Parse(`You are reading one mathematical statement from a paper, in LaTeX.

List every specialized mathematical term this statement uses: named concepts, named theorems, notation-bearing objects. Rules:
- Report each term once, exactly as it appears in the text.
- Skip ordinary mathematical vocabulary ("set", "function", "number") unless it carries a specialized meaning here.
- Skip variable names that carry no concept.

Respond with a JSON object containing a "terms" array of strings. Do not include any text outside the JSON object.

Statement:
{{.Artifact}}
`))

// synthesizeDefinitionTmpl asks for a definition of one term grounded in
// document context. Per prd005-enhancement R4.2.
var synthesizeDefinitionTmpl = template.Must(template.New("synthesize_definition").Parse(`You are defining a mathematical term for a reader of one specific paper.

Term: {{.Term}}
{{if .BaseTerm}}
A related term is already defined and may serve as a starting point:
{{.BaseTerm}}: {{.BaseDefinition}}
{{end}}
Context from the paper where the term is used:
{{.Context}}

Write a self-contained definition of the term, faithful to how this paper uses it. Set:
- context_was_sufficient: true only if the context supports a faithful definition. Do not guess from general knowledge alone.
- definition: the definition text, or empty when the context was insufficient.

Respond with a single JSON object. Do not include any text outside the JSON object.
`))

// pairwiseDependencyTmpl asks whether one statement depends on an earlier
// one. Per prd006-inference R3.1.
var pairwiseDependencyTmpl = template.Must(template.New("pairwise_dependency").Parse(`You are judging whether one mathematical statement depends on an earlier statement from the same paper.

A dependency exists when the later statement's claim or proof genuinely uses the earlier statement: its result, its definition, or its construction. Shared topic alone is not a dependency.

Dependency types:
- uses_result: the later proof invokes the earlier result
- uses_definition: the later statement relies on a concept the earlier one defines
- proves: the later statement establishes the earlier claim
- provides_example: the later statement instantiates the earlier one
- provides_remark: the later statement comments on the earlier one
- is_corollary_of: the later statement follows directly from the earlier one
- is_special_case_of: the later statement restricts the earlier one
- is_generalization_of: the later statement extends the earlier one

Respond with a single JSON object: has_dependency (boolean), and when true, dependency_type (one of the values above) and justification (one sentence). Do not include any text outside the JSON object.

Later statement ({{.SourceID}}):
{{.SourceTeX}}
{{if .SourceProof}}
Its proof:
{{.SourceProof}}
{{end}}
Earlier statement ({{.TargetID}}):
{{.TargetTeX}}
{{if .TargetProof}}
Its proof:
{{.TargetProof}}
{{end}}`))

// globalDependencyTmpl asks for the full dependency edge list over all
// statements of a paper in one call. Per prd006-inference R4.1.
var globalDependencyTmpl = template.Must(template.New("global_dependency").Parse(`You are mapping logical dependencies between the mathematical statements of one paper. Each statement is shown with its identifier.

An edge means the source statement genuinely uses the target statement: its result, its definition, or its construction. Shared topic alone is not a dependency. Expect the result to be sparse; most statement pairs are unrelated.

Dependency types:
- uses_result: the source proof invokes the target result
- uses_definition: the source relies on a concept the target defines
- proves: the source establishes the target claim
- provides_example: the source instantiates the target
- provides_remark: the source comments on the target
- is_corollary_of: the source follows directly from the target
- is_special_case_of: the source restricts the target
- is_generalization_of: the source extends the target

Respond with a JSON object containing an "edges" array. Each edge has source_id, target_id, dependency_type, and an optional one-sentence justification. Use only identifiers shown below. Do not include any text outside the JSON object.

Statements:
{{range .Artifacts}}
[{{.ID}}] ({{.Type}})
{{.Content}}
{{if .Proof}}Proof: {{.Proof}}
{{end}}{{end}}`))

// globalProposalTmpl asks only for candidate edges; each will be verified
// with a focused follow-up call. Per prd006-inference R5.1.
var globalProposalTmpl = template.Must(template.New("global_dependency_proposal").Parse(`You are proposing possible logical dependencies between the mathematical statements of one paper. Each statement is shown with its identifier.

Propose an edge wherever the source statement plausibly uses the target statement: its result, its definition, or its construction. Each proposal will be verified separately, so favor recall over precision, but do not propose pairs with no visible connection.

Respond with a JSON object containing an "edges" array. Each edge has source_id and target_id. Use only identifiers shown below. Do not include any text outside the JSON object.

Statements:
{{range .Artifacts}}
[{{.ID}}] ({{.Type}})
{{.Content}}
{{if .Proof}}Proof: {{.Proof}}
{{end}}{{end}}`))

// render executes tmpl with data and returns the prompt text.
func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderExtractDefinition(artifactTeX string) (string, error) {
	return render(extractDefinitionTmpl, struct{ Artifact string }{Artifact: artifactTeX})
}

func renderExtractTermsGlobal(combined string) (string, error) {
	return render(extractTermsGlobalTmpl, struct{ Combined string }{Combined: combined})
}

func renderExtractTermsSingle(artifactTeX string) (string, error) {
	return render(extractTermsSingleTmpl, struct{ Artifact string }{Artifact: artifactTeX})
}

func renderSynthesizeDefinition(req SynthesisRequest) (string, error) {
	return render(synthesizeDefinitionTmpl, req)
}

func renderPairwiseDependency(req PairRequest) (string, error) {
	return render(pairwiseDependencyTmpl, req)
}

func renderGlobalDependency(artifacts []ArtifactPayload) (string, error) {
	return render(globalDependencyTmpl, struct{ Artifacts []ArtifactPayload }{Artifacts: artifacts})
}

func renderGlobalDependencyProposal(artifacts []ArtifactPayload) (string, error) {
	return render(globalProposalTmpl, struct{ Artifacts []ArtifactPayload }{Artifacts: artifacts})
}
