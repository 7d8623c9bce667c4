// Package archive packs and unpacks the ZIP envelopes syncx moves
// between client and server. Entries are stored under their basenames
// with DEFLATE compression, and all copies go through a fixed-size
// buffer so large files never sit in memory whole.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// copyBufferSize is the streaming chunk size for both directions.
const copyBufferSize = 8 * 1024

// ErrUnsafeEntry is returned when an archive entry would escape the
// extraction directory.
var ErrUnsafeEntry = errors.New("archive: entry path escapes destination")

// Pack writes a ZIP archive at outPath containing each regular file in
// filePaths under its basename. Non-files are skipped.
func Pack(filePaths []string, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", outPath, err)
	}
	defer func() { _ = out.Close() }()

	zw := zip.NewWriter(out)
	buf := make([]byte, copyBufferSize)

	for _, path := range filePaths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   filepath.Base(path),
			Method: zip.Deflate,
		})
		if err != nil {
			return fmt.Errorf("add entry %s: %w", path, err)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		if _, err := io.CopyBuffer(w, f, buf); err != nil {
			_ = f.Close()
			return fmt.Errorf("write entry %s: %w", path, err)
		}
		_ = f.Close()
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return out.Close()
}

// Unpack extracts the archive at zipPath into destDir, creating
// directories as needed.
func Unpack(zipPath, destDir string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", zipPath, err)
	}
	defer func() { _ = zr.Close() }()

	buf := make([]byte, copyBufferSize)
	for _, entry := range zr.File {
		outPath, err := sanitizePath(destDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() || strings.HasSuffix(entry.Name, "/") {
			if err := os.MkdirAll(outPath, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", outPath, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return fmt.Errorf("create parent of %s: %w", outPath, err)
		}

		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("open entry %s: %w", entry.Name, err)
		}

		out, err := os.Create(outPath)
		if err != nil {
			_ = rc.Close()
			return fmt.Errorf("create %s: %w", outPath, err)
		}

		if _, err := io.CopyBuffer(out, rc, buf); err != nil {
			_ = out.Close()
			_ = rc.Close()
			return fmt.Errorf("extract %s: %w", entry.Name, err)
		}

		_ = rc.Close()
		if err := out.Close(); err != nil {
			return fmt.Errorf("close %s: %w", outPath, err)
		}
	}

	return nil
}

func sanitizePath(destDir, name string) (string, error) {
	outPath := filepath.Join(destDir, name)
	rel, err := filepath.Rel(destDir, outPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeEntry, name)
	}
	return outPath, nil
}
