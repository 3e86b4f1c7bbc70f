// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"regexp"
	"strings"
)

var (
	// internalRefRe matches the \ref macro family. The brace group may carry
	// several comma-separated labels (\cref{a,b}).
	internalRefRe = regexp.MustCompile(`\\(?:ref|cref|vref|Cref|Vref|autoref|Autoref|eqref)\*?\{([^}]*)\}`)

	// citeRe matches \cite, \citep, and \citet with optional star and up to
	// two bracket arguments.
	citeRe = regexp.MustCompile(`\\cite[pt]?\*?(?:\[[^\]]*\]){0,2}\{([^}]*)\}`)

	// manualSpanRe matches bracketed spans that may carry hand-written
	// citation keys like [Rou01, Thm. 2]. The span is capped so bracketed
	// math or page-long asides cannot qualify.
	manualSpanRe = regexp.MustCompile(`\[([^\[\]]{1,500})\]`)
)

// refOccurrence is one reference site inside an artifact's content or proof.
type refOccurrence struct {
	key     string // label or bibliography key as written
	context string
}

// scanInternalRefs returns one occurrence per \ref-family key in text.
func scanInternalRefs(text string) []refOccurrence {
	var occs []refOccurrence
	for _, m := range internalRefRe.FindAllStringSubmatchIndex(text, -1) {
		ctx := refContext(text, m[0], m[1])
		for _, key := range splitKeys(text[m[2]:m[3]]) {
			occs = append(occs, refOccurrence{key: key, context: ctx})
		}
	}
	return occs
}

// scanCitations returns one occurrence per \cite-family key in text.
func scanCitations(text string) []refOccurrence {
	var occs []refOccurrence
	for _, m := range citeRe.FindAllStringSubmatchIndex(text, -1) {
		ctx := refContext(text, m[0], m[1])
		for _, key := range splitKeys(text[m[2]:m[3]]) {
			occs = append(occs, refOccurrence{key: key, context: ctx})
		}
	}
	return occs
}

// scanManualSpans returns occurrences for bracketed spans whose comma
// segments name known bibliography keys. Segments that match nothing are
// not an error; prose brackets are everywhere in mathematical writing.
func scanManualSpans(text string, bibKeys map[string]bool) []refOccurrence {
	var occs []refOccurrence
	for _, m := range manualSpanRe.FindAllStringSubmatchIndex(text, -1) {
		ctx := refContext(text, m[0], m[1])
		for _, seg := range strings.Split(text[m[2]:m[3]], ",") {
			key := strings.TrimSpace(seg)
			if key == "" || !bibKeys[key] {
				continue
			}
			occs = append(occs, refOccurrence{key: key, context: ctx})
		}
	}
	return occs
}

// splitKeys splits a brace group on commas and trims each key.
func splitKeys(group string) []string {
	var keys []string
	for _, k := range strings.Split(group, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// refContext returns up to 50 characters of text on each side of a
// reference site, trimmed to word boundaries.
func refContext(text string, start, end int) string {
	const window = 50
	ctxStart := start - window
	if ctxStart < 0 {
		ctxStart = 0
	}
	ctxEnd := end + window
	if ctxEnd > len(text) {
		ctxEnd = len(text)
	}
	snippet := text[ctxStart:ctxEnd]
	if ctxStart > 0 {
		if i := strings.IndexByte(snippet, ' '); i >= 0 && i < window {
			snippet = snippet[i+1:]
		}
	}
	if ctxEnd < len(text) {
		if i := strings.LastIndexByte(snippet, ' '); i >= 0 && i > len(snippet)-window {
			snippet = snippet[:i]
		}
	}
	return strings.TrimSpace(snippet)
}

// separatorRunRe folds whitespace and the common label separators for
// normalized label matching.
var separatorRunRe = regexp.MustCompile(`[\s:\-_]+`)

// normalizeLabel lowercases a label and collapses separator runs to a single
// colon, so "Thm:Main_2" and "thm:main-2" resolve to the same artifact.
func normalizeLabel(label string) string {
	return separatorRunRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), ":")
}

// labelResolver maps reference keys to artifact IDs, exact form first, then
// normalized. First declaration wins on collisions.
type labelResolver struct {
	exact      map[string]string
	normalized map[string]string
	docLabels  map[string]bool
}

// newLabelResolver indexes artifact labels and records every label defined
// anywhere in the source, so references to non-artifact labels (equations,
// sections) can be told apart from truly dangling ones.
func newLabelResolver(arts []*parsed, src string) *labelResolver {
	r := &labelResolver{
		exact:      make(map[string]string),
		normalized: make(map[string]string),
		docLabels:  make(map[string]bool),
	}
	for _, a := range arts {
		label := a.art.Label
		if label == "" {
			continue
		}
		if _, ok := r.exact[label]; !ok {
			r.exact[label] = a.art.ID
		}
		n := normalizeLabel(label)
		if _, ok := r.normalized[n]; !ok {
			r.normalized[n] = a.art.ID
		}
	}
	for _, m := range labelRe.FindAllStringSubmatch(src, -1) {
		r.docLabels[strings.TrimSpace(m[1])] = true
	}
	return r
}

// resolve returns the artifact ID a key points at, if any.
func (r *labelResolver) resolve(key string) (string, bool) {
	if id, ok := r.exact[key]; ok {
		return id, true
	}
	if id, ok := r.normalized[normalizeLabel(key)]; ok {
		return id, true
	}
	return "", false
}

// knownLabel reports whether the key is defined somewhere in the document,
// even outside any artifact.
func (r *labelResolver) knownLabel(key string) bool {
	return r.docLabels[key]
}
