// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package arxiv validates arXiv identifiers and speaks the arXiv Atom API.
// Implements: prd001-acquisition R1 (identifiers), prd008-workflow R3
// (discovery queries), prd009-citations R4 (reference matching).
package arxiv

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// modernCore matches post-2007 identifiers: "2301.07041", "0704.0001v2".
	modernCore = `\d{4}\.\d{4,5}(?:v\d+)?`

	// legacyCore matches pre-2007 identifiers: "math/0211159",
	// "math.GT/0309136v2", "cond-mat/9805021".
	legacyCore = `[a-z][a-z-]*(?:\.[A-Za-z-]+)?/\d{7}(?:v\d+)?`
)

// idPattern matches a complete arXiv identifier with optional "arXiv:"
// prefix and optional version suffix.
var idPattern = regexp.MustCompile(`^(?:arXiv:)?(` + modernCore + `|` + legacyCore + `)$`)

// mentionPatterns find arXiv identifiers embedded in free text, in priority
// order: explicit "arXiv:" markers, arxiv.org URLs, then BibTeX eprint fields.
var mentionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\barxiv[:\s]\s*(` + modernCore + `|` + legacyCore + `)`),
	regexp.MustCompile(`(?i)arxiv\.org/(?:abs|pdf|e-print)/(` + modernCore + `|` + legacyCore + `)`),
	regexp.MustCompile(`(?i)\beprint\s*=\s*[{"']?\s*(?:arxiv:)?(` + modernCore + `|` + legacyCore + `)`),
}

// Normalize validates an identifier and returns its base form: "arXiv:"
// prefix and version suffix stripped. Legacy identifiers keep their
// subject-class prefix ("math/0211159").
func Normalize(id string) (string, error) {
	m := idPattern.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return "", fmt.Errorf("invalid arXiv identifier %q", id)
	}
	return StripVersion(m[1]), nil
}

// IsValid reports whether id parses as an arXiv identifier.
func IsValid(id string) bool {
	_, err := Normalize(id)
	return err == nil
}

// StripVersion removes a trailing "vN" suffix if present.
func StripVersion(id string) string {
	vIdx := strings.LastIndex(id, "v")
	if vIdx <= 0 {
		return id
	}
	if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
		return id[:vIdx]
	}
	return id
}

// ExtractFromURL pulls the base arXiv ID from an Atom entry URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" -> "2301.07041").
func ExtractFromURL(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	return StripVersion(idURL[idx+len(prefix):])
}

// FindMention scans free text (a bibliography entry, a reference string) for
// an embedded arXiv identifier and returns its base form, or "" if none.
func FindMention(text string) string {
	for _, p := range mentionPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return StripVersion(m[1])
		}
	}
	return ""
}
