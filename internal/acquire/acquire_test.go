// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxitex/internal/faults"
	"github.com/pdiddy/arxitex/pkg/types"
)

func testFetchCfg(t *testing.T) types.AcquisitionConfig {
	t.Helper()
	return types.AcquisitionConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   5 * time.Second,
			UserAgent: "arxitex-test/0.1",
		},
		CacheDir:      t.TempDir(),
		MaxAttempts:   2,
		RetryBaseWait: time.Millisecond,
	}
}

// serveEPrint points the package at an httptest server for one test.
func serveEPrint(t *testing.T, handler http.HandlerFunc) *http.Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	old := eprintBase
	eprintBase = ts.URL + "/"
	t.Cleanup(func() { eprintBase = old })

	return ts.Client()
}

func tarGzBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		content := files[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFetchSourceTarGz(t *testing.T) {
	payload := tarGzBytes(t, map[string]string{
		"paper.tex":          `\documentclass{article}\begin{document}Hi\end{document}`,
		"sections/intro.tex": `\section{Introduction}`,
	})
	client := serveEPrint(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	cfg := testFetchCfg(t)

	var buf bytes.Buffer
	dir, skipped, err := FetchSource(context.Background(), client, "2301.07041", cfg, &buf)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, filepath.Join(cfg.CacheDir, "2301.07041"), dir)

	data, err := os.ReadFile(filepath.Join(dir, "paper.tex"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `\documentclass`)

	_, err = os.Stat(filepath.Join(dir, "sections", "intro.tex"))
	assert.NoError(t, err)

	// Second fetch skips the download entirely.
	_, skipped, err = FetchSource(context.Background(), client, "2301.07041", cfg, &buf)
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Contains(t, buf.String(), "skipped: 2301.07041")
}

func TestFetchSourceSingleGzippedTeX(t *testing.T) {
	var payload bytes.Buffer
	gz := gzip.NewWriter(&payload)
	_, err := gz.Write([]byte(`\documentclass{amsart}` + "\n" + `\begin{document}x\end{document}`))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	client := serveEPrint(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload.Bytes())
	})
	cfg := testFetchCfg(t)

	dir, _, err := FetchSource(context.Background(), client, "2301.07041", cfg, os.Stderr)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "main.tex"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `\documentclass{amsart}`)
}

func TestFetchSourcePlainTeX(t *testing.T) {
	client := serveEPrint(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`\magnification=1200` + "\n" + `\proclaim Theorem 1. X. \par\bye`))
	})
	cfg := testFetchCfg(t)

	dir, _, err := FetchSource(context.Background(), client, "math/0211159", cfg, os.Stderr)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.CacheDir, "math_0211159"), dir)

	_, err = os.Stat(filepath.Join(dir, "main.tex"))
	assert.NoError(t, err)
}

func TestFetchSourceZip(t *testing.T) {
	payload := zipBytes(t, map[string]string{
		"main.tex": `\documentclass{article}`,
	})
	client := serveEPrint(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	cfg := testFetchCfg(t)

	dir, _, err := FetchSource(context.Background(), client, "2301.07041", cfg, os.Stderr)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "main.tex"))
	assert.NoError(t, err)
}

func TestFetchSourceFaults(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		wantCode faults.Code
	}{
		{"pdf only", []byte("%PDF-1.5\n%0000"), faults.CodeNoLatexSource},
		{"withdrawal notice", []byte("This submission has been withdrawn by the author."), faults.CodeWithdrawn},
		{"recaptcha page", []byte(`<html><body><div class="g-recaptcha"></div></body></html>`), faults.CodeBlockedByRecaptcha},
		{"corrupt gzip", append([]byte{0x1f, 0x8b}, []byte("garbage that is not a gzip stream")...), faults.CodeGzipCorrupt},
		{"corrupt zip", append([]byte("PK\x03\x04"), []byte("garbage that is not a zip archive")...), faults.CodeZipCorrupt},
		{"unrecognized text", []byte("just some words, nothing TeX about them"), faults.CodeExtractFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := serveEPrint(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write(tt.payload)
			})
			cfg := testFetchCfg(t)

			_, _, err := FetchSource(context.Background(), client, "2301.07041", cfg, os.Stderr)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, faults.CodeOf(err))

			// Nothing may be left behind in the cache on failure.
			_, statErr := os.Stat(filepath.Join(cfg.CacheDir, "2301.07041"))
			assert.True(t, errors.Is(statErr, os.ErrNotExist))
		})
	}
}

func TestFetchSourceCorruptTarGz(t *testing.T) {
	// Valid gzip around bytes that carry the ustar magic but no valid
	// header checksum.
	inner := make([]byte, 1024)
	copy(inner[tarMagicOffset:], "ustar")
	var payload bytes.Buffer
	gz := gzip.NewWriter(&payload)
	_, err := gz.Write(inner)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	client := serveEPrint(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload.Bytes())
	})

	_, _, err = FetchSource(context.Background(), client, "2301.07041", testFetchCfg(t), os.Stderr)
	require.Error(t, err)
	assert.Equal(t, faults.CodeTarCorrupt, faults.CodeOf(err))
}

func TestFetchSourceRetriesServerErrors(t *testing.T) {
	var calls int32
	client := serveEPrint(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`\documentclass{article}`))
	})
	cfg := testFetchCfg(t)

	_, _, err := FetchSource(context.Background(), client, "2301.07041", cfg, os.Stderr)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchSourceNotFoundIsPermanent(t *testing.T) {
	var calls int32
	client := serveEPrint(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	cfg := testFetchCfg(t)

	_, _, err := FetchSource(context.Background(), client, "2301.07041", cfg, os.Stderr)
	require.Error(t, err)
	assert.Equal(t, faults.CodeDownloadFailed, faults.CodeOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not retry")
}

func TestFetchSourceInvalidID(t *testing.T) {
	var calls int32
	client := serveEPrint(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, _, err := FetchSource(context.Background(), client, "not-an-id", testFetchCfg(t), os.Stderr)
	require.Error(t, err)
	assert.Equal(t, faults.CodeInvalidArxivID, faults.CodeOf(err))
	assert.Zero(t, atomic.LoadInt32(&calls), "invalid IDs must not hit the network")
}

func TestFetchBatch(t *testing.T) {
	payload := tarGzBytes(t, map[string]string{"main.tex": `\documentclass{article}`})
	client := serveEPrint(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/2301.00001" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(payload)
	})
	cfg := testFetchCfg(t)

	var buf bytes.Buffer
	result := FetchBatch(context.Background(), client, []string{"2301.07041", "2301.00001", "bogus"}, cfg, &buf)

	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 3, result.Total())
	assert.True(t, result.HasFailures())
	assert.Contains(t, buf.String(), "Batch summary: 1 downloaded, 0 skipped, 2 failed (total: 3)")
}
