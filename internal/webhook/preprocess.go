package webhook

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Resource describes the staged content tree: what kind of documents it
// holds and what input format they are in.
type Resource struct {
	Type   string // e.g. "obs", "bible", "ulb"
	Format string // e.g. "md", "usfm"
}

// UnknownResourceError is returned when no preprocessor is registered
// for a resource type.
type UnknownResourceError struct {
	Type string
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("webhook: no preprocessor registered for resource type %q", e.Type)
}

// PreprocessResult reports how the normalized tree should be dispatched.
type PreprocessResult struct {
	// Books lists the logical sub-documents when the project must be
	// converted in parts; empty for a single-job project.
	Books []string
}

// Multiple reports whether the commit fans out into per-book jobs.
func (r *PreprocessResult) Multiple() bool {
	return len(r.Books) > 0
}

// Preprocessor normalizes a staged source tree into the layout the
// converters expect. The text massaging itself lives with the external
// format tooling; implementations here stage files and decide
// single-vs-multi cardinality.
type Preprocessor interface {
	Run(srcDir, outDir string, res *Resource) (*PreprocessResult, error)
}

// PreprocessorTable maps resource types to their preprocessors. Unknown
// types fail with UnknownResourceError instead of a silent default.
type PreprocessorTable struct {
	handlers map[string]Preprocessor
}

// NewPreprocessorTable builds the default table covering the supported
// resource types.
func NewPreprocessorTable() *PreprocessorTable {
	flat := &FlatPreprocessor{}
	books := &BookPreprocessor{}
	return &PreprocessorTable{handlers: map[string]Preprocessor{
		"obs":   flat,
		"ta":    flat,
		"bible": books,
		"ulb":   books,
		"udb":   books,
		"reg":   books,
	}}
}

// Register adds or replaces the handler for a resource type.
func (t *PreprocessorTable) Register(resourceType string, p Preprocessor) {
	t.handlers[resourceType] = p
}

// Lookup returns the handler for a resource type.
func (t *PreprocessorTable) Lookup(resourceType string) (Preprocessor, error) {
	p, ok := t.handlers[resourceType]
	if !ok {
		return nil, &UnknownResourceError{Type: resourceType}
	}
	return p, nil
}

// Validate checks the table covers every type it claims to and that no
// entry is nil. Run at startup so misconfiguration fails fast.
func (t *PreprocessorTable) Validate() error {
	if len(t.handlers) == 0 {
		return fmt.Errorf("webhook: preprocessor table is empty")
	}
	for rt, p := range t.handlers {
		if p == nil {
			return fmt.Errorf("webhook: nil preprocessor for resource type %q", rt)
		}
	}
	return nil
}

// FlatPreprocessor stages a single-document project: every content file
// is copied into the output tree and the commit converts as one job.
type FlatPreprocessor struct{}

// Run copies the source tree into outDir.
func (p *FlatPreprocessor) Run(srcDir, outDir string, _ *Resource) (*PreprocessResult, error) {
	if err := copyTree(srcDir, outDir); err != nil {
		return nil, err
	}
	return &PreprocessResult{}, nil
}

// BookPreprocessor stages a scripture project. Projects holding more
// than one book fan out into one conversion job per book.
type BookPreprocessor struct{}

// Run copies the source tree into outDir and lists the contained books.
func (p *BookPreprocessor) Run(srcDir, outDir string, res *Resource) (*PreprocessResult, error) {
	if err := copyTree(srcDir, outDir); err != nil {
		return nil, err
	}
	books, err := listBooks(outDir, res.Format)
	if err != nil {
		return nil, err
	}
	if len(books) <= 1 {
		return &PreprocessResult{}, nil
	}
	return &PreprocessResult{Books: books}, nil
}

// listBooks returns the sorted base names of per-book source files.
func listBooks(dir, format string) ([]string, error) {
	ext := "." + format
	var books []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := d.Name()
		if strings.EqualFold(filepath.Ext(name), ext) {
			books = append(books, strings.TrimSuffix(name, filepath.Ext(name)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("webhook: list books: %w", err)
	}
	sort.Strings(books)
	return books, nil
}

// manifest is the subset of a project manifest the controller reads.
type manifest struct {
	Format   string `yaml:"format" json:"format"`
	Resource struct {
		ID string `yaml:"id" json:"id"`
	} `yaml:"resource" json:"resource"`
	DublinCore struct {
		Identifier string `yaml:"identifier"`
		Format     string `yaml:"format"`
	} `yaml:"dublin_core"`
}

// DetectResource reads the staged tree's manifest and returns the
// resource descriptor. Falls back to file-extension sniffing when no
// manifest is present.
func DetectResource(dir string) (*Resource, error) {
	for _, name := range []string{"manifest.yaml", "manifest.json", "project.json"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var m manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("webhook: parse %s: %w", name, err)
		}
		res := &Resource{Type: m.Resource.ID, Format: m.Format}
		if res.Type == "" {
			res.Type = m.DublinCore.Identifier
		}
		if res.Format == "" {
			res.Format = normalizeFormat(m.DublinCore.Format)
		}
		if res.Type != "" && res.Format != "" {
			return res, nil
		}
	}

	// No usable manifest; sniff the dominant extension.
	if books, err := listBooks(dir, "usfm"); err == nil && len(books) > 0 {
		return &Resource{Type: "bible", Format: "usfm"}, nil
	}
	return &Resource{Type: "obs", Format: "md"}, nil
}

// normalizeFormat maps manifest format declarations to job input
// formats, e.g. "text/usfm" to "usfm" and "markdown" to "md".
func normalizeFormat(format string) string {
	if i := strings.LastIndex(format, "/"); i >= 0 {
		format = format[i+1:]
	}
	if format == "markdown" {
		format = "md"
	}
	return format
}

// copyTree copies every regular file under src into dst, preserving
// relative paths.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
