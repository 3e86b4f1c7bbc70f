// Package acquire downloads arXiv e-print sources and unpacks them into a
// local cache, one directory per paper.
// Implements: prd001-acquisition (R1-R5).
package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/pdiddy/arxitex/internal/arxiv"
	"github.com/pdiddy/arxitex/internal/faults"
	"github.com/pdiddy/arxitex/pkg/types"
)

// eprintBase is the arXiv source endpoint. Declared as a var so tests can
// substitute an httptest server.
var eprintBase = "https://arxiv.org/e-print/"

// BatchResult holds the outcome of a batch fetch run.
type BatchResult struct {
	Downloaded int
	Skipped    int
	Failed     int
	Dirs       []string
}

// Total returns the total number of identifiers processed.
func (r BatchResult) Total() int {
	return r.Downloaded + r.Skipped + r.Failed
}

// HasFailures reports whether any papers failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// SourceDir returns the cache directory a paper unpacks into.
func SourceDir(cacheDir, arxivID string) string {
	return filepath.Join(cacheDir, strings.ReplaceAll(arxivID, "/", "_"))
}

// FetchSource downloads the e-print for arxivID and unpacks it under
// cfg.CacheDir. If the paper is already cached the download is skipped.
// Failures carry a classified fault code (R4.1).
func FetchSource(ctx context.Context, client *http.Client, arxivID string, cfg types.AcquisitionConfig, w io.Writer) (dir string, skipped bool, err error) {
	id, err := arxiv.Normalize(arxivID)
	if err != nil {
		return "", false, faults.Wrap(faults.CodeInvalidArxivID, err, "%q", arxivID)
	}

	destDir := SourceDir(cfg.CacheDir, id)

	// Skip if already unpacked (R2.4).
	if entries, readErr := os.ReadDir(destDir); readErr == nil && len(entries) > 0 {
		fmt.Fprintf(w, "skipped: %s (already cached)\n", id)
		return destDir, true, nil
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return "", false, fmt.Errorf("creating cache directory: %w", err)
	}

	fmt.Fprintf(w, "downloading: %s\n", id)

	tmpPath, err := downloadEPrint(ctx, client, eprintBase+id, cfg)
	if err != nil {
		return "", false, err
	}
	defer os.Remove(tmpPath)

	// Unpack into a temporary directory and rename on success, so a
	// half-unpacked tree is never mistaken for a cached paper (R2.5).
	unpackDir, err := os.MkdirTemp(cfg.CacheDir, ".unpack-*")
	if err != nil {
		return "", false, fmt.Errorf("creating unpack directory: %w", err)
	}
	defer os.RemoveAll(unpackDir)

	if err := unpackPayload(tmpPath, unpackDir); err != nil {
		return "", false, err
	}

	if err := os.Rename(unpackDir, destDir); err != nil {
		return "", false, fmt.Errorf("moving unpacked source: %w", err)
	}
	return destDir, false, nil
}

// FetchBatch processes multiple identifiers, printing per-item status and
// returning a summary. It continues after individual failures (R4.2).
func FetchBatch(ctx context.Context, client *http.Client, ids []string, cfg types.AcquisitionConfig, w io.Writer) BatchResult {
	var result BatchResult
	for _, id := range ids {
		dir, wasSkipped, err := FetchSource(ctx, client, id, cfg, w)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", id, err)
			result.Failed++
			continue
		}
		if wasSkipped {
			result.Skipped++
		} else {
			result.Downloaded++
		}
		result.Dirs = append(result.Dirs, dir)
	}
	fmt.Fprintf(w, "\nBatch summary: %d downloaded, %d skipped, %d failed (total: %d)\n",
		result.Downloaded, result.Skipped, result.Failed, result.Total())
	return result
}

// downloadEPrint fetches url to a temporary file with retries. Network
// errors and HTTP 5xx retry with exponential backoff up to cfg.MaxAttempts;
// other HTTP statuses fail immediately.
func downloadEPrint(ctx context.Context, client *http.Client, url string, cfg types.AcquisitionConfig) (string, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 4
	}

	// BackOff implementations are stateful; always build a fresh instance.
	bo := backoff.NewExponentialBackOff()
	if cfg.RetryBaseWait > 0 {
		bo.InitialInterval = cfg.RetryBaseWait
	}

	var tmpPath string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("User-Agent", cfg.UserAgent)

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP request: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			// Fall through to the copy below.
		case resp.StatusCode >= 500:
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
		default:
			return backoff.Permanent(fmt.Errorf("HTTP %d from %s", resp.StatusCode, url))
		}

		tmpFile, err := os.CreateTemp("", ".arxitex-eprint-*.tmp")
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating temp file: %w", err))
		}
		tmpPath = tmpFile.Name()

		_, copyErr := io.Copy(tmpFile, resp.Body)
		closeErr := tmpFile.Close()
		if copyErr != nil {
			os.Remove(tmpPath)
			tmpPath = ""
			return fmt.Errorf("writing download: %w", copyErr)
		}
		if closeErr != nil {
			os.Remove(tmpPath)
			tmpPath = ""
			return closeErr
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxAttempts-1)), ctx))
	if err != nil {
		return "", faults.Wrap(faults.CodeDownloadFailed, err, "fetching e-print")
	}
	return tmpPath, nil
}
