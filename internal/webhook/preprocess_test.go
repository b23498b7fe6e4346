package webhook

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func TestDetectResource(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  Resource
	}{
		{
			name: "manifest yaml",
			files: map[string]string{
				"manifest.yaml": "format: md\nresource:\n  id: obs\n",
			},
			want: Resource{Type: "obs", Format: "md"},
		},
		{
			name: "manifest json",
			files: map[string]string{
				"manifest.json": `{"format": "usfm", "resource": {"id": "ulb"}}`,
			},
			want: Resource{Type: "ulb", Format: "usfm"},
		},
		{
			name: "dublin core",
			files: map[string]string{
				"manifest.yaml": "dublin_core:\n  identifier: ulb\n  format: text/usfm\n",
			},
			want: Resource{Type: "ulb", Format: "usfm"},
		},
		{
			name: "dublin core markdown",
			files: map[string]string{
				"manifest.yaml": "dublin_core:\n  identifier: ta\n  format: text/markdown\n",
			},
			want: Resource{Type: "ta", Format: "md"},
		},
		{
			name: "no manifest usfm sniff",
			files: map[string]string{
				"01-GEN.usfm": "\\id GEN",
			},
			want: Resource{Type: "bible", Format: "usfm"},
		},
		{
			name: "no manifest markdown fallback",
			files: map[string]string{
				"content/01.md": "# Story 1",
			},
			want: Resource{Type: "obs", Format: "md"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tt.files)
			res, err := DetectResource(dir)
			if err != nil {
				t.Fatalf("DetectResource: %v", err)
			}
			if *res != tt.want {
				t.Errorf("DetectResource = %+v, want %+v", *res, tt.want)
			}
		})
	}
}

func TestPreprocessorTable(t *testing.T) {
	table := NewPreprocessorTable()
	if err := table.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	for _, rt := range []string{"obs", "ta", "bible", "ulb", "udb", "reg"} {
		if _, err := table.Lookup(rt); err != nil {
			t.Errorf("Lookup(%q): %v", rt, err)
		}
	}

	_, err := table.Lookup("tq")
	var unknown *UnknownResourceError
	if !errors.As(err, &unknown) {
		t.Fatalf("Lookup(tq) err = %v, want UnknownResourceError", err)
	}
	if unknown.Type != "tq" {
		t.Errorf("unknown.Type = %q", unknown.Type)
	}

	table.Register("tq", &FlatPreprocessor{})
	if _, err := table.Lookup("tq"); err != nil {
		t.Errorf("Lookup after Register: %v", err)
	}
}

func TestFlatPreprocessor(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFiles(t, src, map[string]string{
		"content/01.md": "# Story 1",
		"content/02.md": "# Story 2",
	})

	result, err := (&FlatPreprocessor{}).Run(src, out, &Resource{Type: "obs", Format: "md"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Multiple() {
		t.Error("flat project should not fan out")
	}
	if _, err := os.Stat(filepath.Join(out, "content", "02.md")); err != nil {
		t.Errorf("copied file missing: %v", err)
	}
}

func TestBookPreprocessor_MultipleBooks(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFiles(t, src, map[string]string{
		"02-EXO.usfm": "\\id EXO",
		"01-GEN.usfm": "\\id GEN",
	})

	result, err := (&BookPreprocessor{}).Run(src, out, &Resource{Type: "bible", Format: "usfm"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Multiple() {
		t.Fatal("two books should fan out")
	}
	if want := []string{"01-GEN", "02-EXO"}; !reflect.DeepEqual(result.Books, want) {
		t.Errorf("Books = %v, want %v (sorted)", result.Books, want)
	}
}

func TestBookPreprocessor_SingleBook(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFiles(t, src, map[string]string{"01-GEN.usfm": "\\id GEN"})

	result, err := (&BookPreprocessor{}).Run(src, out, &Resource{Type: "bible", Format: "usfm"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Multiple() {
		t.Error("single book should convert as one job")
	}
}
