// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract builds the base document graph for a paper: artifact
// environments, their proofs, and the reference edges produced by explicit
// LaTeX cross-reference and citation commands.
// Implements: prd003-graph-extraction.
package extract

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/arxitex/internal/faults"
)

// sniffWindow bounds how much of an extensionless file is read when
// deciding whether it is TeX. Keeps huge binaries out of memory.
const sniffWindow = 4096

// SourceFile records where one input file landed in the combined content.
type SourceFile struct {
	Path      string // relative to the source directory
	StartLine int    // 1-based line in the combined content
	LineCount int
}

// Combined is the concatenation of all source files in deterministic
// order, with enough bookkeeping to map a combined line back to its file.
type Combined struct {
	Text  string
	Files []SourceFile
}

// FileFor maps a 1-based combined line number to (file path, local line).
// Lines outside any file map to the empty string.
func (c *Combined) FileFor(line int) (string, int) {
	idx := sort.Search(len(c.Files), func(i int) bool {
		return c.Files[i].StartLine > line
	}) - 1
	if idx < 0 {
		return "", 0
	}
	f := c.Files[idx]
	local := line - f.StartLine + 1
	if local > f.LineCount {
		return "", 0
	}
	return f.Path, local
}

// CombineSources concatenates every .tex file under dir in sorted path
// order. When the archive holds no .tex files at all, extensionless files
// whose head looks like a LaTeX document are accepted instead.
func CombineSources(dir string) (*Combined, error) {
	texFiles, err := listSources(dir, true)
	if err != nil {
		return nil, faults.Wrap(faults.CodeExtractorError, err, "listing sources in %s", dir)
	}
	if len(texFiles) == 0 {
		texFiles, err = listSources(dir, false)
		if err != nil {
			return nil, faults.Wrap(faults.CodeExtractorError, err, "listing sources in %s", dir)
		}
	}
	if len(texFiles) == 0 {
		return nil, faults.New(faults.CodeExtractorError, "no TeX sources found in %s", dir)
	}

	var b strings.Builder
	c := &Combined{}
	line := 1
	for _, rel := range texFiles {
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			return nil, faults.Wrap(faults.CodeExtractorError, err, "reading %s", rel)
		}
		text := string(data)
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		n := strings.Count(text, "\n")
		c.Files = append(c.Files, SourceFile{Path: rel, StartLine: line, LineCount: n})
		b.WriteString(text)
		line += n
	}
	c.Text = b.String()
	return c, nil
}

// listSources walks dir and returns sorted relative paths. With texOnly it
// keeps .tex files; otherwise it keeps extensionless files whose first
// bytes carry a document marker.
func listSources(dir string, texOnly bool) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		ext := filepath.Ext(rel)
		if texOnly {
			if strings.EqualFold(ext, ".tex") {
				out = append(out, rel)
			}
			return nil
		}
		if ext != "" {
			return nil
		}
		ok, err := sniffDocument(path)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func sniffDocument(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	buf := make([]byte, sniffWindow)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return false, nil
	}
	head := string(buf[:n])
	return strings.Contains(head, `\documentclass`) || strings.Contains(head, `\begin{document}`), nil
}
