// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package texnorm

import "strings"

// statementEnvs are the environments a lifted proof may be nested inside.
var statementEnvs = []string{
	"theorem", "lemma", "proposition", "corollary", "definition",
	"remark", "example", "claim", "observation", "fact", "conjecture",
}

// liftProofs moves proof environments that ended up inside a statement
// body out behind the statement, preserving their order. amsppt sources
// often close \enddemo before \endproclaim, which nests the rewritten
// proof inside the rewritten statement.
func liftProofs(src string) string {
	for {
		out, changed := liftOnce(src)
		if !changed {
			return out
		}
		src = out
	}
}

func liftOnce(src string) (string, bool) {
	for _, env := range statementEnvs {
		begin := `\begin{` + env + `}`
		from := 0
		for {
			start := strings.Index(src[from:], begin)
			if start < 0 {
				break
			}
			start += from
			bodyStart := start + len(begin)
			bodyEnd, afterEnd, ok := matchEnvEnd(src, bodyStart, env)
			if !ok {
				from = bodyStart
				continue
			}
			body := src[bodyStart:bodyEnd]
			stripped, proofs := extractProofs(body)
			if len(proofs) == 0 {
				from = afterEnd
				continue
			}
			var b strings.Builder
			b.Grow(len(src))
			b.WriteString(src[:bodyStart])
			b.WriteString(stripped)
			b.WriteString(src[bodyEnd:afterEnd])
			for _, p := range proofs {
				b.WriteString("\n")
				b.WriteString(p)
			}
			b.WriteString(src[afterEnd:])
			return b.String(), true
		}
	}
	return src, false
}

// matchEnvEnd finds the \end{env} matching an already-consumed
// \begin{env}, counting nested occurrences of the same environment. It
// returns the index of the \end token and the index just past it.
func matchEnvEnd(src string, from int, env string) (end, after int, ok bool) {
	begin := `\begin{` + env + `}`
	endTok := `\end{` + env + `}`
	depth := 1
	i := from
	for depth > 0 {
		bi := strings.Index(src[i:], begin)
		ei := strings.Index(src[i:], endTok)
		if ei < 0 {
			return 0, 0, false
		}
		if bi >= 0 && bi < ei {
			depth++
			i += bi + len(begin)
			continue
		}
		depth--
		if depth == 0 {
			return i + ei, i + ei + len(endTok), true
		}
		i += ei + len(endTok)
	}
	return 0, 0, false
}

// extractProofs removes every top-level proof environment from body and
// returns the remaining text plus the removed blocks in order.
func extractProofs(body string) (string, []string) {
	var proofs []string
	var b strings.Builder
	rest := body
	for {
		start := strings.Index(rest, `\begin{proof}`)
		if start < 0 {
			b.WriteString(rest)
			break
		}
		_, after, ok := matchEnvEnd(rest, start+len(`\begin{proof}`), "proof")
		if !ok {
			b.WriteString(rest)
			break
		}
		b.WriteString(strings.TrimRight(rest[:start], " \t"))
		proofs = append(proofs, rest[start:after])
		rest = rest[after:]
	}
	return b.String(), proofs
}
