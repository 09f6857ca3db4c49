package ingest

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/receiptqa/receiptqa/internal/storage"
)

// maxEntrySize caps a single decompressed archive member.
const maxEntrySize int64 = 4 << 30

// Unzip extracts every regular file of archivePath under destDir and returns
// the extracted paths in archive order.
func Unzip(archivePath, destDir string) ([]string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %q: %w", archivePath, err)
	}
	defer func() { _ = reader.Close() }()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create unzip dir: %w", err)
	}
	root, err := filepath.Abs(destDir)
	if err != nil {
		return nil, fmt.Errorf("resolve unzip dir: %w", err)
	}

	extracted := make([]string, 0, len(reader.File))
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		target, err := entryTarget(root, entry.Name)
		if err != nil {
			return nil, err
		}
		if err := extractEntry(entry, target); err != nil {
			return nil, err
		}
		extracted = append(extracted, target)
	}
	return extracted, nil
}

func entryTarget(root, name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if cleaned == "." || path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("archive entry %q escapes the unzip dir", name)
	}
	return filepath.Join(root, filepath.FromSlash(cleaned)), nil
}

func extractEntry(entry *zip.File, target string) error {
	if !entry.Mode().IsRegular() {
		return fmt.Errorf("archive entry %q is not a regular file", entry.Name)
	}
	body, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %q: %w", entry.Name, err)
	}
	defer func() { _ = body.Close() }()
	if err := writeFile(target, io.LimitReader(body, maxEntrySize)); err != nil {
		return fmt.Errorf("extract %q: %w", entry.Name, err)
	}
	return nil
}

// writeFile streams reader into path through a temp file in the same directory.
func writeFile(path string, reader io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".receiptqa-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, reader); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// FetchArchive downloads key from the object store into dir. A key ending in
// "/" selects the lexically greatest archive under that prefix, which for
// period-partitioned keys is the newest extract.
func FetchArchive(ctx context.Context, objects storage.ObjectStore, key, dir string) (string, error) {
	if objects == nil {
		return "", fmt.Errorf("object store is not configured")
	}
	resolved := strings.TrimSpace(key)
	if resolved == "" {
		resolved = storage.ExtractPrefix()
	}
	if strings.HasSuffix(resolved, "/") {
		latest, err := latestArchive(ctx, objects, resolved)
		if err != nil {
			return "", err
		}
		resolved = latest
	}

	body, err := objects.Get(ctx, resolved)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", fmt.Errorf("extract archive %q: %w", resolved, err)
		}
		return "", fmt.Errorf("download extract archive: %w", err)
	}
	defer func() { _ = body.Close() }()

	target := filepath.Join(dir, path.Base(resolved))
	if err := writeFile(target, body); err != nil {
		return "", fmt.Errorf("save extract archive: %w", err)
	}
	return target, nil
}

func latestArchive(ctx context.Context, objects storage.ObjectStore, prefix string) (string, error) {
	listed, err := objects.List(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("list extract archives: %w", err)
	}
	latest, ok := storage.LatestExtract(listed)
	if !ok {
		return "", fmt.Errorf("no extract archive under %q: %w", prefix, storage.ErrObjectNotFound)
	}
	return latest.Key, nil
}
