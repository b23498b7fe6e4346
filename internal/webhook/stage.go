package webhook

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FetchFunc acquires a commit's file tree into dir. The default
// implementation downloads the repo archive derived from the commit
// URL; tests inject a local copy instead.
type FetchFunc func(ctx context.Context, commitURL, dir string) error

// fetchClient bounds archive downloads.
var fetchClient = &http.Client{Timeout: 2 * time.Minute}

// FetchArchive downloads <repo>/archive/<commit>.zip and extracts it
// into dir.
func FetchArchive(ctx context.Context, commitURL, dir string) error {
	zipURL := strings.Replace(commitURL, "/commit/", "/archive/", 1) + ".zip"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, zipURL, nil)
	if err != nil {
		return fmt.Errorf("webhook: build fetch request: %w", err)
	}
	resp, err := fetchClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: fetch %s: %w", zipURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook: fetch %s: status %d", zipURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("webhook: read archive: %w", err)
	}
	return Unzip(data, dir)
}

// Unzip extracts a zip archive into dir. If the archive wraps all
// content in a single top-level directory, that level is stripped.
func Unzip(data []byte, dir string) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("webhook: open archive: %w", err)
	}

	strip := commonTopDir(r)
	for _, f := range r.File {
		name := f.Name
		if strip != "" {
			name = strings.TrimPrefix(name, strip)
		}
		if name == "" {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("webhook: archive entry escapes staging dir: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

// commonTopDir returns the single top-level directory prefix shared by
// every archive entry, or "".
func commonTopDir(r *zip.Reader) string {
	var top string
	for _, f := range r.File {
		i := strings.Index(f.Name, "/")
		if i < 0 {
			return ""
		}
		prefix := f.Name[:i+1]
		if top == "" {
			top = prefix
		} else if top != prefix {
			return ""
		}
	}
	return top
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("webhook: open archive entry %s: %w", f.Name, err)
	}
	defer in.Close()
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// ZipTree packages every file under dir into a zip archive, with paths
// relative to dir.
func ZipTree(dir string) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entry, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(entry, in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("webhook: zip %s: %w", dir, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("webhook: finish archive: %w", err)
	}
	return buf.Bytes(), nil
}
