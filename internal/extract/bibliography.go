// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/arxitex/internal/arxiv"
)

// BibEntry is one bibliography item: its cite key, the full entry text, and
// an arXiv identifier when the entry mentions one.
type BibEntry struct {
	Key     string
	Text    string
	ArxivID string
}

var (
	thebibRe  = regexp.MustCompile(`(?s)\\begin\{thebibliography\}(?:\{[^}]*\})?(.*?)\\end\{thebibliography\}`)
	bibitemRe = regexp.MustCompile(`\\bibitem(?:\[[^\]]*\])?\{([^}]*)\}`)
	bibAtRe   = regexp.MustCompile(`@([A-Za-z]+)\s*\{\s*([^,\s{}]+)\s*,`)
)

// ParseBibliography gathers bibliography entries for a paper. An embedded
// thebibliography environment wins; otherwise merged .bbl files, then merged
// .bib files. The first occurrence of a key wins on duplicates.
func ParseBibliography(dir, combined string) ([]BibEntry, []string) {
	var entries []BibEntry
	var warnings []string
	seen := make(map[string]bool)

	add := func(key, text string) {
		key = strings.TrimSpace(key)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		text = collapseWhitespace(text)
		entries = append(entries, BibEntry{
			Key:     key,
			Text:    text,
			ArxivID: arxiv.FindMention(text),
		})
	}

	for _, m := range thebibRe.FindAllStringSubmatch(combined, -1) {
		parseBibitems(m[1], add)
	}

	if len(entries) == 0 {
		merged, warns := readMerged(dir, ".bbl")
		warnings = append(warnings, warns...)
		parseBibitems(merged, add)
	}

	if len(entries) == 0 {
		merged, warns := readMerged(dir, ".bib")
		warnings = append(warnings, warns...)
		parseBibTeX(merged, add)
	}

	return entries, warnings
}

// parseBibitems extracts \bibitem entries from text. Each entry runs to the
// next \bibitem or to the end of the surrounding environment.
func parseBibitems(text string, add func(key, text string)) {
	matches := bibitemRe.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		key := text[m[2]:m[3]]
		bodyEnd := len(text)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		body := text[m[1]:bodyEnd]
		if stop := strings.Index(body, `\end{thebibliography}`); stop >= 0 {
			body = body[:stop]
		}
		add(key, body)
	}
}

// parseBibTeX extracts entries from BibTeX source. The entry text is the
// balanced-brace block, so eprint fields stay visible to the arXiv scan.
func parseBibTeX(text string, add func(key, text string)) {
	for _, m := range bibAtRe.FindAllStringSubmatchIndex(text, -1) {
		kind := strings.ToLower(text[m[2]:m[3]])
		if kind == "string" || kind == "preamble" || kind == "comment" {
			continue
		}
		key := text[m[4]:m[5]]
		open := strings.IndexByte(text[m[0]:], '{')
		if open < 0 {
			continue
		}
		body, ok := balancedBraces(text, m[0]+open)
		if !ok {
			continue
		}
		add(key, body)
	}
}

// balancedBraces returns the text inside the brace block opening at offset
// open, by depth counting.
func balancedBraces(text string, open int) (string, bool) {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[open+1 : i], true
			}
		}
	}
	return "", false
}

// readMerged concatenates every file under dir with the given extension,
// sorted by relative path. Unreadable files warn rather than fail: a corrupt
// stray .bib must not sink a paper whose bibliography is embedded elsewhere.
func readMerged(dir, ext string) (string, []string) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ext) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", []string{fmt.Sprintf("scanning for %s files: %v", ext, err)}
	}
	sort.Strings(paths)

	var warnings []string
	var b strings.Builder
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("reading %s: %v", p, err))
			continue
		}
		b.Write(data)
		b.WriteByte('\n')
	}
	return b.String(), warnings
}

// collapseWhitespace folds all whitespace runs to single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
