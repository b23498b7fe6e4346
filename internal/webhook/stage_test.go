package webhook

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestZipTreeUnzip_RoundTrip(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"manifest.yaml":    "format: md\n",
		"content/01.md":    "# Story 1",
		"content/sub/a.md": "nested",
	})

	data, err := ZipTree(src)
	if err != nil {
		t.Fatalf("ZipTree: %v", err)
	}

	dst := t.TempDir()
	if err := Unzip(data, dst); err != nil {
		t.Fatalf("Unzip: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dst, "content", "sub", "a.md"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != "nested" {
		t.Errorf("extracted content = %q", got)
	}
}

func TestUnzip_StripsTopDir(t *testing.T) {
	// Forge archives shape: everything under <repo>-<commit>/.
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"obs-repo/manifest.yaml": "format: md\n",
		"obs-repo/content/01.md": "# Story 1",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	dst := t.TempDir()
	if err := Unzip(buf.Bytes(), dst); err != nil {
		t.Fatalf("Unzip: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "manifest.yaml")); err != nil {
		t.Errorf("top dir not stripped: %v", err)
	}
}

func TestUnzip_RejectsPathEscape(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"ok.txt", "../evil.txt"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte("x")); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	if err := Unzip(buf.Bytes(), t.TempDir()); err == nil {
		t.Error("expected error for entry escaping the target dir")
	}
}

func TestFetchArchive(t *testing.T) {
	tree := t.TempDir()
	writeFiles(t, tree, map[string]string{"manifest.yaml": "format: md\n"})
	archive, err := ZipTree(tree)
	if err != nil {
		t.Fatalf("ZipTree: %v", err)
	}

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write(archive)
	}))
	defer srv.Close()

	dst := t.TempDir()
	commitURL := srv.URL + "/alice/obs-repo/commit/9a3b1c5d7e"
	if err := FetchArchive(context.Background(), commitURL, dst); err != nil {
		t.Fatalf("FetchArchive: %v", err)
	}
	if want := "/alice/obs-repo/archive/9a3b1c5d7e.zip"; gotPath != want {
		t.Errorf("fetched %q, want %q", gotPath, want)
	}
	if _, err := os.Stat(filepath.Join(dst, "manifest.yaml")); err != nil {
		t.Errorf("extracted tree missing: %v", err)
	}
}
