// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how much of the pipeline runs for a paper.
// Per prd008-workflow R2.1: regex stops after structural extraction, defs
// adds definition enhancement, full adds dependency inference.
type Mode string

const (
	ModeRegex Mode = "regex"
	ModeDefs  Mode = "defs"
	ModeFull  Mode = "full"
)

// ParseMode validates a mode string from flags or config.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRegex, ModeDefs, ModeFull:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want regex, defs, or full)", s)
	}
}

// IngestionStage tracks a paper through the processing state machine.
// Per prd007-store R3.1.
type IngestionStage string

const (
	StageProcessing IngestionStage = "processing"
	StageComplete   IngestionStage = "complete"
	StageFailed     IngestionStage = "failed"
)

// PaperMeta holds the arXiv metadata for a paper.
// Per prd001-acquisition R2.1: identifier, title, abstract, comment field,
// categories, authors, and submission date.
type PaperMeta struct {
	// ID is the arXiv identifier without version suffix
	// (e.g. "2301.07041" or "math/0211159").
	ID string `json:"arxiv_id" yaml:"arxiv_id"`

	// Title is the paper title with whitespace collapsed.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Comment is the free-form arXiv comment field ("37 pages, 5 figures").
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`

	// PrimaryCategory is the primary arXiv category (e.g. "math.CO").
	PrimaryCategory string `json:"primary_category,omitempty" yaml:"primary_category,omitempty"`

	// Categories lists all arXiv categories.
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`

	// Authors lists author display names in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Published is the submission timestamp reported by the arXiv API.
	Published time.Time `json:"published,omitempty" yaml:"published,omitempty"`
}
