// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package faults defines the stable failure taxonomy for the ingestion
// pipeline. Every per-paper failure is reduced to a code and a stage before
// it is persisted, so operators can group failures across runs.
// Implements: prd007-store R3.3, prd008-workflow R4.
package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Code is a stable failure code. Codes are persisted; never rename one.
type Code string

const (
	CodeNoLatexSource      Code = "no_latex_source"
	CodeDownloadFailed     Code = "source_download_failed"
	CodeWithdrawn          Code = "paper_withdrawn"
	CodeBlockedByRecaptcha Code = "source_blocked_by_recaptcha"
	CodeGzipCorrupt        Code = "source_gzip_corrupt"
	CodeTarCorrupt         Code = "source_tar_corrupt"
	CodeZipCorrupt         Code = "source_zip_corrupt"
	CodeExtractFailed      Code = "source_extract_failed"
	CodeExtractorError     Code = "extractor_error"
	CodeInvalidArxivID     Code = "invalid_arxiv_id"
	CodeGraphEmpty         Code = "graph_empty"
	CodeLLMRateLimited     Code = "llm_rate_limited"
	CodeLLMTimeout         Code = "llm_timeout"
	CodeLLMAPIError        Code = "llm_api_error"
	CodeLLMConnection      Code = "llm_connection_error"
	CodeUnexpected         Code = "unexpected_error"
)

// Stage names the pipeline stage a failure belongs to.
type Stage string

const (
	StageDownload   Stage = "download"
	StageExtract    Stage = "extract"
	StageGraphBuild Stage = "graph_build"
	StageLLM        Stage = "llm"
	StageUnknown    Stage = "unknown"
)

// stageByCode fixes the stage for each code so callers cannot file the same
// code under different stages.
var stageByCode = map[Code]Stage{
	CodeNoLatexSource:      StageDownload,
	CodeDownloadFailed:     StageDownload,
	CodeWithdrawn:          StageDownload,
	CodeBlockedByRecaptcha: StageDownload,
	CodeInvalidArxivID:     StageDownload,
	CodeGzipCorrupt:        StageExtract,
	CodeTarCorrupt:         StageExtract,
	CodeZipCorrupt:         StageExtract,
	CodeExtractFailed:      StageExtract,
	CodeExtractorError:     StageGraphBuild,
	CodeGraphEmpty:         StageGraphBuild,
	CodeLLMRateLimited:     StageLLM,
	CodeLLMTimeout:         StageLLM,
	CodeLLMAPIError:        StageLLM,
	CodeLLMConnection:      StageLLM,
	CodeUnexpected:         StageUnknown,
}

// StageFor returns the stage a code belongs to.
func StageFor(code Code) Stage {
	if s, ok := stageByCode[code]; ok {
		return s
	}
	return StageUnknown
}

// terminalCodes will not succeed on retry: the source itself is unusable.
// Transient codes (downloads, rate limits, model errors) stay retryable.
var terminalCodes = map[Code]bool{
	CodeNoLatexSource:  true,
	CodeWithdrawn:      true,
	CodeInvalidArxivID: true,
	CodeGzipCorrupt:    true,
	CodeTarCorrupt:     true,
	CodeZipCorrupt:     true,
	CodeExtractFailed:  true,
	CodeExtractorError: true,
	CodeGraphEmpty:     true,
}

// Terminal reports whether retrying the paper could change the outcome.
func (c Code) Terminal() bool { return terminalCodes[c] }

// Fault is a classified pipeline failure.
type Fault struct {
	Code Code
	Msg  string
	Err  error
}

// New returns a fault with a formatted message.
func New(code Code, format string, args ...any) *Fault {
	return &Fault{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a fault carrying the underlying error.
func Wrap(code Code, err error, format string, args ...any) *Fault {
	return &Fault{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Stage returns the pipeline stage for the fault's code.
func (f *Fault) Stage() Stage { return StageFor(f.Code) }

func (f *Fault) Error() string {
	switch {
	case f.Msg != "" && f.Err != nil:
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Msg, f.Err)
	case f.Msg != "":
		return fmt.Sprintf("%s: %s", f.Code, f.Msg)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Code, f.Err)
	default:
		return string(f.Code)
	}
}

func (f *Fault) Unwrap() error { return f.Err }

// CodeOf extracts the code from a classified error, or unexpected_error.
func CodeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return CodeUnexpected
}

// connectionSubstrings identify transport-level failures by message. The
// list is deliberately short; anything ambiguous stays unexpected_error.
var connectionSubstrings = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"broken pipe",
}

// rateLimitSubstrings identify quota errors surfaced as plain messages.
var rateLimitSubstrings = []string{
	"rate limit",
	"resource_exhausted",
	"quota exceeded",
	"429",
}

// Classify reduces an arbitrary error to a fault. Already-classified errors
// pass through unchanged. Unwrapped model and transport errors are matched
// by type and by known message substrings; everything else becomes
// unexpected_error so no failure is dropped.
func Classify(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeLLMTimeout, err, "deadline exceeded")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(CodeLLMTimeout, err, "network timeout")
	}

	msg := strings.ToLower(err.Error())
	for _, s := range rateLimitSubstrings {
		if strings.Contains(msg, s) {
			return Wrap(CodeLLMRateLimited, err, "")
		}
	}
	for _, s := range connectionSubstrings {
		if strings.Contains(msg, s) {
			return Wrap(CodeLLMConnection, err, "")
		}
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return Wrap(CodeLLMTimeout, err, "")
	}

	return Wrap(CodeUnexpected, err, "")
}
