// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"regexp"
	"strings"
)

var (
	newcommandRe = regexp.MustCompile(`\\(?:re)?newcommand\*?\s*\{?\\([A-Za-z]+)\}?`)
	defMacroRe   = regexp.MustCompile(`\\def\s*\\([A-Za-z]+)`)
	mathOpRe     = regexp.MustCompile(`\\DeclareMathOperator\*?\{\\([A-Za-z]+)\}`)
)

// ExtractMacros harvests argument-free macro definitions from the preamble:
// \newcommand, \renewcommand, \def, and \DeclareMathOperator. Macros taking
// parameters are skipped; rendering them faithfully would need a TeX engine.
// Keys keep their backslash; redefinitions overwrite.
func ExtractMacros(src string) map[string]string {
	preamble := src
	if i := strings.Index(src, `\begin{document}`); i >= 0 {
		preamble = src[:i]
	}

	macros := make(map[string]string)

	for _, m := range newcommandRe.FindAllStringSubmatchIndex(preamble, -1) {
		name := preamble[m[2]:m[3]]
		if body, ok := macroBody(preamble, m[1]); ok {
			macros[`\`+name] = body
		}
	}

	for _, m := range defMacroRe.FindAllStringSubmatchIndex(preamble, -1) {
		name := preamble[m[2]:m[3]]
		if body, ok := macroBody(preamble, m[1]); ok {
			macros[`\`+name] = body
		}
	}

	for _, m := range mathOpRe.FindAllStringSubmatchIndex(preamble, -1) {
		name := preamble[m[2]:m[3]]
		if body, ok := macroBody(preamble, m[1]); ok {
			macros[`\`+name] = `\operatorname{` + body + `}`
		}
	}

	return macros
}

// macroBody reads the brace-delimited replacement text starting at offset
// from. A [N] argument count or a #1 parameter marker before the opening
// brace means the macro takes parameters, so it is skipped.
func macroBody(src string, from int) (string, bool) {
	i := from
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	if i >= len(src) || src[i] != '{' {
		return "", false
	}
	body, ok := balancedBraces(src, i)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(body), true
}
