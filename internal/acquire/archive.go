// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/arxitex/internal/faults"
)

// payloadKind classifies a downloaded e-print body.
type payloadKind int

const (
	kindUnknown payloadKind = iota
	kindZip
	kindGzip
	kindPDF
	kindTar
	kindText
)

// tarMagicOffset is where the ustar magic sits in a tar header block.
const tarMagicOffset = 257

// detectKind sniffs the payload type from its leading bytes. Detection
// order is fixed: zip, gzip, pdf, tar, then plain text (R3.1).
func detectKind(head []byte) payloadKind {
	switch {
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return kindZip
	case bytes.HasPrefix(head, []byte{0x1f, 0x8b}):
		return kindGzip
	case bytes.HasPrefix(head, []byte("%PDF")):
		return kindPDF
	case len(head) >= tarMagicOffset+5 && string(head[tarMagicOffset:tarMagicOffset+5]) == "ustar":
		return kindTar
	default:
		return kindText
	}
}

// unpackPayload sniffs the downloaded file and unpacks it into destDir.
// Corruption of a payload whose magic bytes identified it maps to the
// matching fault code (R3.2-R3.5).
func unpackPayload(srcPath, destDir string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening download: %w", err)
	}
	defer f.Close()

	head := make([]byte, 4096)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("reading download: %w", err)
	}
	head = head[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding download: %w", err)
	}

	switch detectKind(head) {
	case kindZip:
		if err := unpackZip(srcPath, destDir); err != nil {
			return faults.Wrap(faults.CodeZipCorrupt, err, "unpacking zip")
		}
		return nil

	case kindGzip:
		return unpackGzip(f, destDir)

	case kindPDF:
		return faults.New(faults.CodeNoLatexSource, "e-print is PDF only")

	case kindTar:
		if err := unpackTar(f, destDir); err != nil {
			return faults.Wrap(faults.CodeTarCorrupt, err, "unpacking tar")
		}
		return nil

	default:
		data, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("reading download: %w", err)
		}
		return writeTextPayload(data, destDir)
	}
}

// unpackGzip handles both gzipped tarballs and gzipped single TeX files,
// which arXiv serves under the same endpoint.
func unpackGzip(f io.Reader, destDir string) error {
	gz, err := gzip.NewReader(f)
	if err != nil {
		return faults.Wrap(faults.CodeGzipCorrupt, err, "opening gzip stream")
	}
	defer gz.Close()

	br := bufio.NewReader(gz)
	inner, err := br.Peek(tarMagicOffset + 5)
	if err != nil && err != io.EOF {
		return faults.Wrap(faults.CodeGzipCorrupt, err, "decompressing")
	}

	if len(inner) >= tarMagicOffset+5 && string(inner[tarMagicOffset:tarMagicOffset+5]) == "ustar" {
		if err := unpackTar(br, destDir); err != nil {
			return faults.Wrap(faults.CodeTarCorrupt, err, "unpacking tar.gz")
		}
		return nil
	}

	data, err := io.ReadAll(br)
	if err != nil {
		return faults.Wrap(faults.CodeGzipCorrupt, err, "decompressing")
	}
	return writeTextPayload(data, destDir)
}

// writeTextPayload stores a non-archive body as the paper's sole source
// file, after checking for the notice pages arXiv serves in place of
// sources (R3.6-R3.7).
func writeTextPayload(data []byte, destDir string) error {
	if isRecaptchaPage(data) {
		return faults.New(faults.CodeBlockedByRecaptcha, "anti-bot challenge page")
	}
	if isWithdrawalNotice(data) {
		return faults.New(faults.CodeWithdrawn, "submission withdrawn")
	}
	if !looksLikeTeX(data) {
		return faults.New(faults.CodeExtractFailed, "unrecognized source payload")
	}
	path := filepath.Join(destDir, "main.tex")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing source file: %w", err)
	}
	return nil
}

// texMarkers are strings whose presence identifies TeX source.
var texMarkers = []string{
	`\documentclass`,
	`\documentstyle`,
	`\begin{document}`,
	`\input`,
	`\section`,
	`\def`,
	`\magnification`,
}

// looksLikeTeX reports whether data reads as TeX source. The first 4 KB are
// scanned for markers; bodies with no marker at all are rejected.
func looksLikeTeX(data []byte) bool {
	window := data
	if len(window) > 4096 {
		window = window[:4096]
	}
	s := string(window)
	for _, m := range texMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func isRecaptchaPage(data []byte) bool {
	s := strings.ToLower(string(data))
	return strings.Contains(s, "recaptcha") || strings.Contains(s, "are you a robot")
}

// isWithdrawalNotice matches the short plain-text notice arXiv serves for
// withdrawn submissions. Real sources mentioning withdrawal are far larger.
func isWithdrawalNotice(data []byte) bool {
	if len(data) > 8192 {
		return false
	}
	s := strings.ToLower(string(data))
	return strings.Contains(s, "withdrawn") || strings.Contains(s, "has been removed")
}

// securePath joins a destination directory with an archive member name,
// rejecting absolute paths and parent traversal.
func securePath(destDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("archive member %q has absolute path", name)
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive member %q escapes destination", name)
	}
	return filepath.Join(destDir, clean), nil
}

func unpackTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar header: %w", err)
		}

		path, err := securePath(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("creating directory for %s: %w", hdr.Name, err)
			}
			out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return fmt.Errorf("creating file %s: %w", hdr.Name, err)
			}
			_, copyErr := io.Copy(out, tr)
			closeErr := out.Close()
			if copyErr != nil {
				return fmt.Errorf("extracting %s: %w", hdr.Name, copyErr)
			}
			if closeErr != nil {
				return closeErr
			}
		default:
			// Symlinks and special files are dropped.
		}
	}
}

func unpackZip(srcPath, destDir string) error {
	zr, err := zip.OpenReader(srcPath)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer zr.Close()

	for _, member := range zr.File {
		path, err := securePath(destDir, member.Name)
		if err != nil {
			return err
		}

		if member.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", member.Name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", member.Name, err)
		}

		in, err := member.Open()
		if err != nil {
			return fmt.Errorf("opening zip member %s: %w", member.Name, err)
		}
		out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			in.Close()
			return fmt.Errorf("creating file %s: %w", member.Name, err)
		}
		_, copyErr := io.Copy(out, in)
		in.Close()
		closeErr := out.Close()
		if copyErr != nil {
			return fmt.Errorf("extracting %s: %w", member.Name, copyErr)
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}
