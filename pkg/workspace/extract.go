package workspace

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// extractInto writes payload into destDir, preserving relative paths when
// payload is a recognized archive (zip, gzip, gzip+tar, bare tar) and
// writing it as a single file named fallbackName otherwise. It enforces
// the extraction sandbox invariants: no entry may escape destDir, no single
// entry may exceed maxEntryBytes, and the sum of everything written this
// call may not exceed remainingBudget.
func extractInto(ctx context.Context, destDir, fallbackName string, payload []byte, maxEntryBytes, remainingBudget int64) (int64, error) {
	if remainingBudget <= 0 {
		return 0, fmt.Errorf("workspace total size ceiling already reached")
	}

	switch sniffFormat(payload) {
	case "zip":
		return extractZip(destDir, payload, maxEntryBytes, remainingBudget)
	case "gzip":
		return extractGzip(ctx, destDir, fallbackName, payload, maxEntryBytes, remainingBudget)
	case "tar":
		return extractTar(ctx, destDir, bytes.NewReader(payload), maxEntryBytes, remainingBudget)
	default:
		return writePlainFile(destDir, fallbackName, payload, maxEntryBytes, remainingBudget)
	}
}

func writePlainFile(destDir, name string, payload []byte, maxEntryBytes, remainingBudget int64) (int64, error) {
	size := int64(len(payload))
	if size > maxEntryBytes {
		return 0, fmt.Errorf("entry %s is %d bytes, exceeds the %d byte per-entry ceiling", name, size, maxEntryBytes)
	}
	if size > remainingBudget {
		return 0, fmt.Errorf("entry %s would exceed the workspace's remaining size budget", name)
	}
	dest, err := safeJoin(destDir, name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(dest, payload, 0o644); err != nil {
		return 0, err
	}
	return size, nil
}

func extractZip(destDir string, payload []byte, maxEntryBytes, remainingBudget int64) (int64, error) {
	r, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return 0, fmt.Errorf("opening zip: %w", err)
	}

	var total int64
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if int64(f.UncompressedSize64) > maxEntryBytes {
			return total, fmt.Errorf("zip entry %s is %d bytes, exceeds the %d byte per-entry ceiling", f.Name, f.UncompressedSize64, maxEntryBytes)
		}
		if total+int64(f.UncompressedSize64) > remainingBudget {
			return total, fmt.Errorf("zip extraction would exceed the workspace's remaining size budget")
		}

		dest, err := safeJoin(destDir, f.Name)
		if err != nil {
			return total, err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return total, err
		}

		rc, err := f.Open()
		if err != nil {
			return total, fmt.Errorf("opening zip entry %s: %w", f.Name, err)
		}
		n, err := copyLimited(dest, rc, maxEntryBytes)
		rc.Close()
		if err != nil {
			return total, fmt.Errorf("extracting zip entry %s: %w", f.Name, err)
		}
		total += n
	}
	return total, nil
}

func extractGzip(ctx context.Context, destDir, fallbackName string, payload []byte, maxEntryBytes, remainingBudget int64) (int64, error) {
	gz, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("opening gzip: %w", err)
	}
	defer gz.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gz, remainingBudget+1))
	if err != nil {
		return 0, fmt.Errorf("decompressing gzip: %w", err)
	}
	if int64(len(decompressed)) > remainingBudget {
		return 0, fmt.Errorf("gzip payload would exceed the workspace's remaining size budget")
	}

	if sniffFormat(decompressed) == "tar" || isTar(decompressed) {
		return extractTar(ctx, destDir, bytes.NewReader(decompressed), maxEntryBytes, remainingBudget)
	}
	return writePlainFile(destDir, strings.TrimSuffix(fallbackName, ".gz"), decompressed, maxEntryBytes, remainingBudget)
}

func extractTar(ctx context.Context, destDir string, r io.Reader, maxEntryBytes, remainingBudget int64) (int64, error) {
	tr := tar.NewReader(r)
	var total int64
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, fmt.Errorf("reading tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Size > maxEntryBytes {
			return total, fmt.Errorf("tar entry %s is %d bytes, exceeds the %d byte per-entry ceiling", hdr.Name, hdr.Size, maxEntryBytes)
		}
		if total+hdr.Size > remainingBudget {
			return total, fmt.Errorf("tar extraction would exceed the workspace's remaining size budget")
		}

		dest, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return total, err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return total, err
		}
		n, err := copyLimited(dest, tr, maxEntryBytes)
		if err != nil {
			return total, fmt.Errorf("extracting tar entry %s: %w", hdr.Name, err)
		}
		total += n
	}
	return total, nil
}

// safeJoin resolves name against destDir and rejects any result that would
// escape destDir: no archive extraction may write outside its task
// workspace.
func safeJoin(destDir, name string) (string, error) {
	cleanedDir := filepath.Clean(destDir)
	joined := filepath.Join(cleanedDir, name)
	rel, err := filepath.Rel(cleanedDir, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes workspace root", name)
	}
	return joined, nil
}

// copyLimited writes src to a new file at dest, refusing to write more than
// limit bytes even if the entry's declared size lied.
func copyLimited(dest string, src io.Reader, limit int64) (int64, error) {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(src, limit+1))
	if err != nil {
		return n, err
	}
	if n > limit {
		return n, fmt.Errorf("entry exceeds the %d byte per-entry ceiling", limit)
	}
	return n, nil
}
