package enhance

import (
	"context"
	"strings"
	"testing"

	"github.com/pdiddy/arxitex/internal/oracle"
	"github.com/pdiddy/arxitex/pkg/types"
)

// stubOracle implements oracle.Oracle with per-call hooks. Unset hooks
// return empty results.
type stubOracle struct {
	extractDefinition  func(tex string) (oracle.ExtractedDefinition, error)
	extractTermsGlobal func(combined string) ([]string, error)
	extractTermsSingle func(tex string) ([]string, error)
	synthesize         func(req oracle.SynthesisRequest) (oracle.SynthesisResult, error)
}

func (s *stubOracle) ExtractDefinition(_ context.Context, tex string) (oracle.ExtractedDefinition, error) {
	if s.extractDefinition == nil {
		return oracle.ExtractedDefinition{}, nil
	}
	return s.extractDefinition(tex)
}

func (s *stubOracle) ExtractTermsGlobal(_ context.Context, combined string) ([]string, error) {
	if s.extractTermsGlobal == nil {
		return nil, nil
	}
	return s.extractTermsGlobal(combined)
}

func (s *stubOracle) ExtractTermsSingle(_ context.Context, tex string) ([]string, error) {
	if s.extractTermsSingle == nil {
		return nil, nil
	}
	return s.extractTermsSingle(tex)
}

func (s *stubOracle) SynthesizeDefinition(_ context.Context, req oracle.SynthesisRequest) (oracle.SynthesisResult, error) {
	if s.synthesize == nil {
		return oracle.SynthesisResult{}, nil
	}
	return s.synthesize(req)
}

func (s *stubOracle) PairwiseDependency(_ context.Context, _ oracle.PairRequest) (oracle.PairVerdict, error) {
	return oracle.PairVerdict{}, nil
}

func (s *stubOracle) GlobalDependency(_ context.Context, _ []oracle.ArtifactPayload) ([]oracle.EdgeProposal, error) {
	return nil, nil
}

func (s *stubOracle) GlobalDependencyProposal(_ context.Context, _ []oracle.ArtifactPayload) ([]oracle.EdgeProposal, error) {
	return nil, nil
}

func buildGraph(t *testing.T, arts ...*types.Artifact) *types.DocumentGraph {
	t.Helper()
	g := types.NewDocumentGraph("2301.00001", types.ModeDefs)
	for _, a := range arts {
		if err := g.AddNode(a); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

// --- phase 1 ---

func TestRunRegistersExplicitDefinitions(t *testing.T) {
	def := &types.Artifact{
		ID:      "definition-1-abc123",
		Type:    types.ArtifactDefinition,
		Content: `A family $\mathcal{F}$ is union closed if it is closed under unions.`,
		Span:    types.Span{StartLine: 3},
	}
	stub := &stubOracle{
		extractDefinition: func(tex string) (oracle.ExtractedDefinition, error) {
			if !strings.Contains(tex, "union closed") {
				t.Errorf("oracle got unexpected content %q", tex)
			}
			return oracle.ExtractedDefinition{
				DefinedTerm:    "union closed family",
				DefinitionText: "A family closed under unions.",
				Aliases:        []string{"UC family"},
			}, nil
		},
	}

	res, err := New(stub, types.EnhanceConfig{}).Run(context.Background(), buildGraph(t, def), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	d, ok := res.Bank.Find("union closed family")
	if !ok {
		t.Fatal("definition not registered")
	}
	if d.SourceArtifactID != def.ID {
		t.Errorf("SourceArtifactID = %q, want %q", d.SourceArtifactID, def.ID)
	}
	if d.Synthesized {
		t.Error("explicit definition marked synthesized")
	}
	if _, ok := res.Bank.Find("UC family"); !ok {
		t.Error("alias does not resolve")
	}
}

func TestRunOracleFailureAborts(t *testing.T) {
	def := &types.Artifact{ID: "definition-1-abc123", Type: types.ArtifactDefinition, Content: "x"}
	stub := &stubOracle{
		extractDefinition: func(string) (oracle.ExtractedDefinition, error) {
			return oracle.ExtractedDefinition{}, context.DeadlineExceeded
		},
	}

	_, err := New(stub, types.EnhanceConfig{}).Run(context.Background(), buildGraph(t, def), "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), def.ID) {
		t.Errorf("error %q does not name the artifact", err)
	}
}

// --- phase 2, term discovery ---

func TestRunGlobalStrategyMapsTermsByContainment(t *testing.T) {
	a := &types.Artifact{
		ID:      "theorem-1-aaaaaa",
		Type:    types.ArtifactTheorem,
		Content: "Every bounded Monotone Sequence converges.",
		Span:    types.Span{StartLine: 5},
	}
	b := &types.Artifact{
		ID:      "lemma-1-bbbbbb",
		Type:    types.ArtifactLemma,
		Content: "Within a Banach space every monotone sequence of projections is bounded.",
		Span:    types.Span{StartLine: 9},
	}
	var combined string
	stub := &stubOracle{
		extractTermsGlobal: func(c string) ([]string, error) {
			combined = c
			return []string{"monotone sequence", "Banach space", "ultrafilter"}, nil
		},
		synthesize: func(req oracle.SynthesisRequest) (oracle.SynthesisResult, error) {
			return oracle.SynthesisResult{ContextWasSufficient: false}, nil
		},
	}

	res, err := New(stub, types.EnhanceConfig{}).Run(context.Background(), buildGraph(t, a, b), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(combined, a.Content) || !strings.Contains(combined, b.Content) {
		t.Error("global prompt missing artifact contents")
	}
	if !strings.Contains(combined, "=====") {
		t.Error("global prompt missing sentinel")
	}

	if got := res.ArtifactTerms[a.ID]; len(got) != 1 || got[0] != "monotone sequence" {
		t.Errorf("terms for %s = %v", a.ID, got)
	}
	if got := res.ArtifactTerms[b.ID]; len(got) != 2 {
		t.Errorf("terms for %s = %v, want both terms", b.ID, got)
	}
	// "ultrafilter" appears in no artifact and must vanish.
	for id, terms := range res.ArtifactTerms {
		for _, term := range terms {
			if term == "ultrafilter" {
				t.Errorf("unplaced term attributed to %s", id)
			}
		}
	}
	if res.TermFirstArtifact["monotone sequence"] != a.ID {
		t.Errorf("first artifact for shared term = %q, want %s", res.TermFirstArtifact["monotone sequence"], a.ID)
	}
	if res.TermFirstArtifact["banach space"] != b.ID {
		t.Errorf("first artifact for banach space = %q, want %s", res.TermFirstArtifact["banach space"], b.ID)
	}
}

func TestRunPerArtifactStrategy(t *testing.T) {
	a := &types.Artifact{ID: "theorem-1-aaaaaa", Type: types.ArtifactTheorem, Content: "about widgets", Span: types.Span{StartLine: 1}}
	b := &types.Artifact{ID: "lemma-1-bbbbbb", Type: types.ArtifactLemma, Content: "about gadgets", Span: types.Span{StartLine: 4}}
	stub := &stubOracle{
		extractTermsSingle: func(tex string) ([]string, error) {
			if strings.Contains(tex, "widgets") {
				return []string{"widget algebra.", "widget algebra"}, nil
			}
			return []string{"gadget\\\\category"}, nil
		},
		synthesize: func(req oracle.SynthesisRequest) (oracle.SynthesisResult, error) {
			return oracle.SynthesisResult{ContextWasSufficient: false}, nil
		},
	}

	cfg := types.EnhanceConfig{Strategy: types.TermsSingle, TermConcurrency: 2}
	res, err := New(stub, cfg).Run(context.Background(), buildGraph(t, a, b), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := res.ArtifactTerms[a.ID]; len(got) != 1 || got[0] != "widget algebra" {
		t.Errorf("terms for %s = %v, want sanitized deduped list", a.ID, got)
	}
	if got := res.ArtifactTerms[b.ID]; len(got) != 1 || got[0] != `gadget\category` {
		t.Errorf("terms for %s = %v, want collapsed backslashes", b.ID, got)
	}
}

// --- phase 2, synthesis ---

func TestRunSynthesizesUnknownTerm(t *testing.T) {
	body := `We recall some background.

A frame homomorphism preserves finite meets and arbitrary joins.

\begin{theorem}
Every frame homomorphism restricts to the spectrum.
\end{theorem}`
	thm := &types.Artifact{
		ID:      "theorem-1-cccccc",
		Type:    types.ArtifactTheorem,
		Content: "Every frame homomorphism restricts to the spectrum.",
		Span:    types.Span{StartLine: 5},
	}
	var gotReq oracle.SynthesisRequest
	stub := &stubOracle{
		extractTermsGlobal: func(string) ([]string, error) {
			return []string{"frame homomorphism"}, nil
		},
		synthesize: func(req oracle.SynthesisRequest) (oracle.SynthesisResult, error) {
			gotReq = req
			return oracle.SynthesisResult{
				ContextWasSufficient: true,
				Definition:           "A map preserving finite meets and arbitrary joins.",
			}, nil
		},
	}

	res, err := New(stub, types.EnhanceConfig{}).Run(context.Background(), buildGraph(t, thm), body)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(gotReq.Context, "preserves finite meets") {
		t.Errorf("synthesis context missing preceding paragraph: %q", gotReq.Context)
	}
	if !strings.Contains(gotReq.Context, thm.Content) {
		t.Errorf("synthesis context missing artifact content: %q", gotReq.Context)
	}

	d, ok := res.Bank.Find("frame homomorphism")
	if !ok {
		t.Fatal("synthesized definition not registered")
	}
	if !d.Synthesized {
		t.Error("definition not marked synthesized")
	}
	if want := SynthesizedSourcePrefix + thm.ID; d.SourceArtifactID != want {
		t.Errorf("SourceArtifactID = %q, want %q", d.SourceArtifactID, want)
	}

	if len(thm.Prerequisites) != 1 || thm.Prerequisites[0].Term != "frame homomorphism" {
		t.Errorf("Prerequisites = %+v", thm.Prerequisites)
	}
}

func TestRunSynthesisUsesBaseDefinition(t *testing.T) {
	def := &types.Artifact{
		ID:      "definition-1-dddddd",
		Type:    types.ArtifactDefinition,
		Content: "A family is union closed if it is closed under unions.",
		Span:    types.Span{StartLine: 2},
	}
	thm := &types.Artifact{
		ID:      "theorem-1-eeeeee",
		Type:    types.ArtifactTheorem,
		Content: "Every approximate union closed family has a frequent element.",
		Span:    types.Span{StartLine: 6},
	}
	stub := &stubOracle{
		extractDefinition: func(string) (oracle.ExtractedDefinition, error) {
			return oracle.ExtractedDefinition{
				DefinedTerm:    "union closed",
				DefinitionText: "Closed under unions.",
			}, nil
		},
		extractTermsGlobal: func(string) ([]string, error) {
			return []string{"approximate union closed"}, nil
		},
		synthesize: func(req oracle.SynthesisRequest) (oracle.SynthesisResult, error) {
			if req.BaseTerm != "union closed" {
				t.Errorf("BaseTerm = %q, want union closed", req.BaseTerm)
			}
			if req.BaseDefinition == "" {
				t.Error("BaseDefinition empty")
			}
			return oracle.SynthesisResult{ContextWasSufficient: true, Definition: "Almost closed under unions."}, nil
		},
	}

	res, err := New(stub, types.EnhanceConfig{}).Run(context.Background(), buildGraph(t, def, thm), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	d, ok := res.Bank.Find("approximate union closed")
	if !ok {
		t.Fatal("synthesized definition not registered")
	}
	found := false
	for _, dep := range d.Dependencies {
		if dep == "union closed" {
			found = true
		}
	}
	if !found {
		t.Errorf("Dependencies = %v, want base term recorded", d.Dependencies)
	}
}

func TestRunInsufficientContextSkipsTerm(t *testing.T) {
	thm := &types.Artifact{
		ID:      "theorem-1-ffffff",
		Type:    types.ArtifactTheorem,
		Content: "Uses an obscure gadget.",
		Span:    types.Span{StartLine: 1},
	}
	stub := &stubOracle{
		extractTermsGlobal: func(string) ([]string, error) { return []string{"obscure gadget"}, nil },
		synthesize: func(oracle.SynthesisRequest) (oracle.SynthesisResult, error) {
			return oracle.SynthesisResult{ContextWasSufficient: false}, nil
		},
	}

	res, err := New(stub, types.EnhanceConfig{}).Run(context.Background(), buildGraph(t, thm), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Bank.Len() != 0 {
		t.Errorf("bank has %d entries, want 0", res.Bank.Len())
	}
	if len(thm.Prerequisites) != 0 {
		t.Errorf("Prerequisites = %+v, want none", thm.Prerequisites)
	}
}

func TestRunValidationRejectsUnsupportedSentences(t *testing.T) {
	thm := &types.Artifact{
		ID:      "theorem-1-gggggg",
		Type:    types.ArtifactTheorem,
		Content: "A widget   frame is a frame with widgets.",
		Span:    types.Span{StartLine: 1},
	}
	tests := []struct {
		name       string
		definition string
		wantKept   bool
	}{
		{"verbatim modulo spacing", "A widget frame is a frame with widgets.", true},
		{"fabricated sentence", "A widget frame is a frame with widgets. It is always finite.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubOracle{
				extractTermsGlobal: func(string) ([]string, error) { return []string{"widget frame"}, nil },
				synthesize: func(oracle.SynthesisRequest) (oracle.SynthesisResult, error) {
					return oracle.SynthesisResult{ContextWasSufficient: true, Definition: tt.definition}, nil
				},
			}
			cfg := types.EnhanceConfig{ValidateSynthesized: true}
			res, err := New(stub, cfg).Run(context.Background(), buildGraph(t, thm), "")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			_, ok := res.Bank.Find("widget frame")
			if ok != tt.wantKept {
				t.Errorf("kept = %v, want %v", ok, tt.wantKept)
			}
		})
	}
}

// --- phase 3 ---

func TestRunOrdersPrerequisitesByFirstAppearance(t *testing.T) {
	early := &types.Artifact{
		ID:      "definition-1-hhhhhh",
		Type:    types.ArtifactDefinition,
		Content: "A zeta gadget is defined here.",
		Span:    types.Span{StartLine: 2},
	}
	later := &types.Artifact{
		ID:      "definition-2-iiiiii",
		Type:    types.ArtifactDefinition,
		Content: "An alpha widget is defined here.",
		Span:    types.Span{StartLine: 8},
	}
	thm := &types.Artifact{
		ID:      "theorem-1-jjjjjj",
		Type:    types.ArtifactTheorem,
		Content: "Relates every alpha widget to a zeta gadget.",
		Span:    types.Span{StartLine: 14},
	}
	stub := &stubOracle{
		extractDefinition: func(tex string) (oracle.ExtractedDefinition, error) {
			if strings.Contains(tex, "zeta") {
				return oracle.ExtractedDefinition{DefinedTerm: "zeta gadget", DefinitionText: "The zeta one."}, nil
			}
			return oracle.ExtractedDefinition{DefinedTerm: "alpha widget", DefinitionText: "The alpha one."}, nil
		},
		extractTermsGlobal: func(string) ([]string, error) {
			// Alphabetical order must not leak into the prerequisite order.
			return []string{"alpha widget", "zeta gadget"}, nil
		},
	}

	_, err := New(stub, types.EnhanceConfig{}).Run(context.Background(), buildGraph(t, early, later, thm), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(thm.Prerequisites) != 2 {
		t.Fatalf("Prerequisites = %+v, want 2", thm.Prerequisites)
	}
	if thm.Prerequisites[0].Term != "zeta gadget" || thm.Prerequisites[1].Term != "alpha widget" {
		t.Errorf("order = [%s, %s], want first-appearance order",
			thm.Prerequisites[0].Term, thm.Prerequisites[1].Term)
	}
}

func TestRunMergedDefinitionsDeduplicateInPrerequisites(t *testing.T) {
	defA := &types.Artifact{
		ID:      "definition-1-kkkkkk",
		Type:    types.ArtifactDefinition,
		Content: "A CW pair has the homotopy extension property.",
		Span:    types.Span{StartLine: 2},
	}
	defB := &types.Artifact{
		ID:      "definition-2-llllll",
		Type:    types.ArtifactDefinition,
		Content: "A cofibration pair has the homotopy extension property.",
		Span:    types.Span{StartLine: 5},
	}
	thm := &types.Artifact{
		ID:      "theorem-1-mmmmmm",
		Type:    types.ArtifactTheorem,
		Content: "Every CW pair is a cofibration pair.",
		Span:    types.Span{StartLine: 9},
	}
	calls := 0
	stub := &stubOracle{
		extractDefinition: func(tex string) (oracle.ExtractedDefinition, error) {
			calls++
			if calls == 1 {
				return oracle.ExtractedDefinition{DefinedTerm: "CW pair", DefinitionText: "Has the extension property."}, nil
			}
			return oracle.ExtractedDefinition{DefinedTerm: "cofibration pair", DefinitionText: "Has the extension property."}, nil
		},
		extractTermsGlobal: func(string) ([]string, error) {
			return []string{"CW pair", "cofibration pair"}, nil
		},
	}

	res, err := New(stub, types.EnhanceConfig{}).Run(context.Background(), buildGraph(t, defA, defB, thm), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Identical definition texts merge; both terms must still resolve.
	if res.Bank.Len() != 1 {
		t.Fatalf("bank has %d entries after merge, want 1", res.Bank.Len())
	}
	if _, ok := res.Bank.Find("cofibration pair"); !ok {
		t.Error("merged term no longer resolves")
	}
	if len(thm.Prerequisites) != 1 {
		t.Errorf("Prerequisites = %+v, want single merged entry", thm.Prerequisites)
	}
}

// --- helpers ---

func TestSanitizeTerms(t *testing.T) {
	in := []string{
		"  spectral gap. ",
		"spectral gap",
		"\\\\sigma-algebra",
		"bad\x00control\x1fchars",
		"...",
		"",
	}
	got := sanitizeTerms(in)
	want := []string{"spectral gap", `\sigma-algebra`, "badcontrolchars"}
	if len(got) != len(want) {
		t.Fatalf("sanitizeTerms = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSynthesisContextNoEarlierMention(t *testing.T) {
	body := "Unrelated opening paragraph.\n\n\\begin{theorem}\nUses a novel gizmo.\n\\end{theorem}\n"
	a := &types.Artifact{ID: "theorem-1-nnnnnn", Content: "Uses a novel gizmo.", Span: types.Span{StartLine: 3}}

	got := synthesisContext(body, "novel gizmo", a)
	if got != a.Content {
		t.Errorf("context = %q, want artifact content only", got)
	}
}

func TestSentencesAppearIn(t *testing.T) {
	ctx := "A frame   homomorphism preserves meets. It also preserves joins."
	if !sentencesAppearIn("A frame homomorphism preserves meets.", ctx) {
		t.Error("whitespace-normalized sentence should match")
	}
	if sentencesAppearIn("A frame homomorphism preserves meets. And colimits.", ctx) {
		t.Error("fabricated sentence should not match")
	}
}
