// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/arxitex/pkg/types"
)

// builtinEnvs are statement environment names recognized without a
// \newtheorem declaration, full names and the short forms common on arXiv.
var builtinEnvs = []string{
	"theorem", "lemma", "proposition", "corollary", "definition",
	"remark", "example", "claim", "observation", "fact", "conjecture",
	"thm", "lem", "prop", "cor", "defn", "def", "rem", "rmk",
	"ex", "exa", "obs", "conj",
}

// newtheoremRe matches \newtheorem{name}[counter]{Title} and the starred
// form. A trailing [within] argument needs no capture; it only shares the
// counter.
var newtheoremRe = regexp.MustCompile(`\\newtheorem\*?\{([A-Za-z]+)\}(?:\[[^\]]*\])?\{([^}]*)\}`)

// DiscoverEnvironments builds the set of statement environments in scope for
// a document: the built-in canonical set plus every \newtheorem declaration,
// each mapped to an artifact type by its display title.
func DiscoverEnvironments(src string) map[string]types.ArtifactType {
	table := make(map[string]types.ArtifactType, len(builtinEnvs))
	for _, env := range builtinEnvs {
		table[env] = types.ClassifyArtifactType(env)
	}
	for _, m := range newtheoremRe.FindAllStringSubmatch(src, -1) {
		name, title := m[1], m[2]
		if name == "proof" {
			continue
		}
		typ := types.ClassifyArtifactType(title)
		if typ == types.ArtifactUnknown {
			typ = types.ClassifyArtifactType(name)
		}
		table[name] = typ
	}
	return table
}

// parsed pairs an artifact with its byte offsets in the combined source, so
// later phases can reason about adjacency without re-scanning.
type parsed struct {
	art   *types.Artifact
	start int // offset of the \begin token
	end   int // offset just past the \end token
}

// proofEnv is one \begin{proof}...\end{proof} occurrence.
type proofEnv struct {
	title string
	body  string
	start int
	end   int
}

var (
	beginRe = regexp.MustCompile(`\\begin\{([A-Za-z]+\*?)\}`)
	labelRe = regexp.MustCompile(`\\label\{([^}]*)\}`)
)

// parseEnvironments extracts every statement environment in table plus every
// proof environment. Environments missing their \end are skipped with a
// warning; nothing here fails the paper.
func parseEnvironments(src string, table map[string]types.ArtifactType) ([]*parsed, []*proofEnv, []string) {
	ix := newLineIndex(src)
	var arts []*parsed
	var proofs []*proofEnv
	var warnings []string
	counters := make(map[string]int)
	labelOwner := make(map[string]string)

	for _, m := range beginRe.FindAllStringSubmatchIndex(src, -1) {
		literal := src[m[2]:m[3]]
		canonical := strings.TrimSuffix(literal, "*")
		afterBegin := m[1]

		if canonical == "proof" {
			endStart, after, ok := matchEnd(src, afterBegin, literal)
			if !ok {
				line, _ := ix.pos(m[0])
				warnings = append(warnings, fmt.Sprintf("unbalanced \\begin{%s} at line %d, skipped", literal, line))
				continue
			}
			title, bodyStart := bracketTitle(src, afterBegin)
			proofs = append(proofs, &proofEnv{
				title: title,
				body:  strings.TrimSpace(src[bodyStart:endStart]),
				start: m[0],
				end:   after,
			})
			continue
		}

		typ, ok := table[canonical]
		if !ok {
			continue
		}

		endStart, after, ok := matchEnd(src, afterBegin, literal)
		if !ok {
			line, _ := ix.pos(m[0])
			warnings = append(warnings, fmt.Sprintf("unbalanced \\begin{%s} at line %d, skipped", literal, line))
			continue
		}

		title, bodyStart := bracketTitle(src, afterBegin)
		content := strings.TrimSpace(src[bodyStart:endStart])

		counters[canonical]++
		id := fmt.Sprintf("%s-%d-%s", canonical, counters[canonical], contentHash(content))

		label := firstLabel(content)
		if label != "" {
			if owner, dup := labelOwner[label]; dup {
				warnings = append(warnings, fmt.Sprintf("duplicate label %q on %s, already used by %s", label, id, owner))
			} else {
				labelOwner[label] = id
			}
		}

		startLine, startCol := ix.pos(m[0])
		endLine, endCol := ix.pos(after - 1)
		arts = append(arts, &parsed{
			art: &types.Artifact{
				ID:      id,
				Type:    typ,
				Env:     canonical,
				Label:   label,
				Title:   title,
				Content: content,
				Span: types.Span{
					StartLine: startLine,
					StartCol:  startCol,
					EndLine:   endLine,
					EndCol:    endCol,
				},
			},
			start: m[0],
			end:   after,
		})
	}
	return arts, proofs, warnings
}

// matchEnd finds the \end matching an already-consumed \begin of env,
// scanning from offset from. Nested same-name environments are depth
// counted. Returns the offset of the \end token and the offset just past it.
func matchEnd(src string, from int, env string) (endStart, after int, ok bool) {
	beginTok := `\begin{` + env + `}`
	endTok := `\end{` + env + `}`
	depth := 1
	i := from
	for i < len(src) {
		nb := strings.Index(src[i:], beginTok)
		ne := strings.Index(src[i:], endTok)
		if ne < 0 {
			return 0, 0, false
		}
		if nb >= 0 && nb < ne {
			depth++
			i += nb + len(beginTok)
			continue
		}
		depth--
		if depth == 0 {
			return i + ne, i + ne + len(endTok), true
		}
		i += ne + len(endTok)
	}
	return 0, 0, false
}

// bracketTitle reads an optional [Title] directly after a \begin token.
// Brackets inside the title are depth counted. Returns the title and the
// offset where the environment body starts.
func bracketTitle(src string, from int) (string, int) {
	i := from
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	if i >= len(src) || src[i] != '[' {
		return "", from
	}
	depth := 0
	for j := i; j < len(src); j++ {
		switch src[j] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return strings.TrimSpace(src[i+1 : j]), j + 1
			}
		}
	}
	return "", from
}

// firstLabel returns the first \label key in body, or empty.
func firstLabel(body string) string {
	if m := labelRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// contentHash is the first six hex characters of SHA-256 over the content,
// enough to keep IDs stable across runs and distinct within a paper.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)[:6]
}

// lineIndex holds the starting offset of every line for offset-to-position
// conversion.
type lineIndex []int

func newLineIndex(src string) lineIndex {
	ix := lineIndex{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			ix = append(ix, i+1)
		}
	}
	return ix
}

// pos converts a byte offset to a 1-based line and column.
func (ix lineIndex) pos(off int) (line, col int) {
	i := sort.Search(len(ix), func(i int) bool { return ix[i] > off }) - 1
	if i < 0 {
		i = 0
	}
	return i + 1, off - ix[i] + 1
}
