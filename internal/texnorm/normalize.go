// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package texnorm

import (
	"strings"

	"github.com/pdiddy/arxitex/pkg/types"
)

// Normalize rewrites proclaim/demo statement markup into canonical
// environments. Standard sources pass through untouched; the returned
// bool reports whether any rewrite happened.
//
// Rewrites, per prd002-normalization R2:
//
//	\proclaim{Title} body \endproclaim  ->  \begin{env}[Title] body \end{env}
//	\proclaim Title. body \par          ->  \begin{env}[Title] body \end{env}
//	\demo{Title} body \enddemo          ->  \begin{proof}[Title] body \end{proof}
//
// The target environment is chosen by the first artifact keyword found in
// the title; titles with no keyword become theorems. Proof environments
// produced inside a statement body are lifted out behind the statement so
// they surface as siblings.
func Normalize(src string) (string, bool) {
	if Detect(src) == DialectStandard {
		return src, false
	}
	out := rewriteProclaims(src)
	out = rewriteDemos(out)
	out = liftProofs(out)
	return out, out != src
}

// envForTitle maps a proclaim title to a canonical environment name.
// Unmatched titles default to theorem, which is what \proclaim means in
// plain TeX.
func envForTitle(title string) string {
	t := types.ClassifyArtifactType(title)
	if t == types.ArtifactUnknown || t == types.ArtifactExternalReference {
		return "theorem"
	}
	return string(t)
}

// rewriteProclaims converts both the braced amsppt form and the bare plain
// TeX form. The body text is carried over verbatim.
func rewriteProclaims(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	rest := src
	for {
		idx := indexMacro(rest, `\proclaim`)
		if idx < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:idx])
		after := rest[idx+len(`\proclaim`):]

		if open := skipSpaces(after); open < len(after) && after[open] == '{' {
			title, bodyStart, ok := bracedArg(after[open:])
			if !ok {
				// Unbalanced title brace. Leave the macro alone.
				b.WriteString(`\proclaim`)
				rest = after
				continue
			}
			bodyStart += open
			end := strings.Index(after[bodyStart:], `\endproclaim`)
			if end < 0 {
				b.WriteString(`\proclaim`)
				rest = after
				continue
			}
			body := after[bodyStart : bodyStart+end]
			writeEnv(&b, envForTitle(title), title, body)
			rest = after[bodyStart+end+len(`\endproclaim`):]
			continue
		}

		// Plain TeX form: title runs to the first period, the body to the
		// first \par or blank line.
		title, body, tail, ok := splitPlainProclaim(after)
		if !ok {
			b.WriteString(`\proclaim`)
			rest = after
			continue
		}
		writeEnv(&b, envForTitle(title), title, body)
		rest = tail
	}
	return b.String()
}

// rewriteDemos converts \demo{Title} body \enddemo into a proof
// environment. A bare \demo with no braced argument produces a proof with
// no title.
func rewriteDemos(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	rest := src
	for {
		idx := indexMacro(rest, `\demo`)
		if idx < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:idx])
		after := rest[idx+len(`\demo`):]

		title := ""
		bodyStart := 0
		if open := skipSpaces(after); open < len(after) && after[open] == '{' {
			arg, next, ok := bracedArg(after[open:])
			if !ok {
				b.WriteString(`\demo`)
				rest = after
				continue
			}
			title = arg
			bodyStart = open + next
		}
		end := strings.Index(after[bodyStart:], `\enddemo`)
		if end < 0 {
			b.WriteString(`\demo`)
			rest = after
			continue
		}
		body := after[bodyStart : bodyStart+end]
		writeEnv(&b, "proof", title, body)
		rest = after[bodyStart+end+len(`\enddemo`):]
	}
	return b.String()
}

// writeEnv emits \begin{env}[title] body \end{env}. Interior newlines in
// the body are kept verbatim so line positions stay meaningful.
func writeEnv(b *strings.Builder, env, title, body string) {
	b.WriteString(`\begin{` + env + `}`)
	if title = strings.TrimSpace(title); title != "" {
		b.WriteString("[" + title + "]")
	}
	body = strings.Trim(body, " \t")
	if body != "" && !strings.HasPrefix(body, "\n") {
		b.WriteString(" ")
	}
	b.WriteString(body)
	if body != "" && !strings.HasSuffix(body, "\n") {
		b.WriteString(" ")
	}
	b.WriteString(`\end{` + env + `}`)
}

// splitPlainProclaim parses the Knuth form \proclaim Title. body \par.
// It returns the title (without the period), the body, and the remainder
// of the input after the terminator.
func splitPlainProclaim(after string) (title, body, tail string, ok bool) {
	dot := -1
	for i := 0; i < len(after); i++ {
		if after[i] == '.' && (i+1 == len(after) || after[i+1] == ' ' || after[i+1] == '\t' || after[i+1] == '\n') {
			dot = i
			break
		}
		if after[i] == '\n' && i+1 < len(after) && after[i+1] == '\n' {
			break
		}
	}
	if dot < 0 {
		return "", "", "", false
	}
	title = strings.TrimSpace(after[:dot])
	rest := after[dot+1:]

	parIdx := indexMacro(rest, `\par`)
	blankIdx := strings.Index(rest, "\n\n")
	end, skip := len(rest), 0
	switch {
	case parIdx >= 0 && (blankIdx < 0 || parIdx < blankIdx):
		end, skip = parIdx, len(`\par`)
	case blankIdx >= 0:
		end, skip = blankIdx, 0
	}
	body = strings.TrimSpace(rest[:end])
	tail = rest[end+skip:]
	return title, body, tail, true
}

// indexMacro finds the first occurrence of macro in s that is not a prefix
// of a longer control word.
func indexMacro(s, macro string) int {
	from := 0
	for {
		idx := strings.Index(s[from:], macro)
		if idx < 0 {
			return -1
		}
		idx += from
		next := idx + len(macro)
		if next >= len(s) || !isLetter(s[next]) {
			return idx
		}
		from = next
	}
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func skipSpaces(s string) int {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n') {
		i++
	}
	return i
}

// bracedArg reads a balanced {...} group starting at s[0] == '{'. It
// returns the group content and the index just past the closing brace.
func bracedArg(s string) (arg string, next int, ok bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[1:i], i + 1, true
			}
		case '\\':
			i++ // skip escaped character
		}
	}
	return "", 0, false
}
