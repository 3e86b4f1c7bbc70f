// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package texnorm detects TeX dialects and rewrites non-standard statement
// markup into canonical \begin{X}...\end{X} environments so the structural
// extractor only ever sees one environment model.
// Implements: prd002-normalization (R1-R4).
package texnorm

import (
	"regexp"
	"strings"
)

// Dialect identifies the statement markup family of a source.
type Dialect string

const (
	// DialectStandard is LaTeX with \begin{...}/\end{...} environments.
	DialectStandard Dialect = "standard"

	// DialectAMS is AMS plain TeX (amsppt): \proclaim{...}...\endproclaim
	// and \demo{...}...\enddemo.
	DialectAMS Dialect = "amsppt"

	// DialectPlain is Knuth plain TeX: \proclaim Title. body \par.
	DialectPlain Dialect = "plain"
)

var (
	docClassRe  = regexp.MustCompile(`\\documentclass\b`)
	proclaimRe  = regexp.MustCompile(`\\proclaim\b`)
	demoRe      = regexp.MustCompile(`\\demo\b`)
	plainMarkRe = regexp.MustCompile(`\\(bye|magnification)\b`)
)

// Detect classifies the markup dialect by marker set. Document-class
// markers win: a LaTeX document that happens to define \proclaim
// compatibility macros is still standard.
func Detect(src string) Dialect {
	if docClassRe.MatchString(src) || strings.Contains(src, `\begin{document}`) {
		return DialectStandard
	}
	if strings.Contains(src, "amsppt") || strings.Contains(src, `\endproclaim`) || demoRe.MatchString(src) {
		return DialectAMS
	}
	if proclaimRe.MatchString(src) || plainMarkRe.MatchString(src) {
		return DialectPlain
	}
	return DialectStandard
}
