package registry

import (
	"errors"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/calebt/typeset/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Module{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func validModule(name string) *models.Module {
	return &models.Module{
		Name:          name,
		Type:          "conversion",
		InputFormat:   "md",
		OutputFormat:  "html",
		ResourceTypes: []string{"obs"},
	}
}

func TestRegister_Valid(t *testing.T) {
	db := testDB(t)
	m, err := Register(db, "https://api.example.org", validModule("md2html"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if m.Version != 1 {
		t.Errorf("Version = %d, want 1", m.Version)
	}
	wantLink := "https://api.example.org/tx/convert/md2html"
	if len(m.PublicLinks) != 1 || m.PublicLinks[0] != wantLink {
		t.Errorf("PublicLinks = %v, want [%s]", m.PublicLinks, wantLink)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	db := testDB(t)

	tests := []struct {
		name   string
		mutate func(*models.Module)
		want   string
	}{
		{"name", func(m *models.Module) { m.Name = "" }, `"name" not given`},
		{"type", func(m *models.Module) { m.Type = "" }, `"type" not given`},
		{"input", func(m *models.Module) { m.InputFormat = "" }, `"input_format" not given`},
		{"output", func(m *models.Module) { m.OutputFormat = "" }, `"output_format" not given`},
		{"resources", func(m *models.Module) { m.ResourceTypes = nil }, `"resource_types" not given`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validModule("x")
			tt.mutate(m)
			_, err := Register(db, "https://api.example.org", m)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestRegister_DuplicateName(t *testing.T) {
	db := testDB(t)
	if _, err := Register(db, "https://api.example.org", validModule("md2html")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := Register(db, "https://api.example.org", validModule("md2html")); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestResolve_FirstMatchWins(t *testing.T) {
	db := testDB(t)

	first := validModule("first")
	second := validModule("second") // same capability triple
	if _, err := Register(db, "https://api.example.org", first); err != nil {
		t.Fatal(err)
	}
	if _, err := Register(db, "https://api.example.org", second); err != nil {
		t.Fatal(err)
	}

	job := &models.Job{ResourceType: "obs", InputFormat: "md", OutputFormat: "html"}
	m, err := Resolve(db, job)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.Name != "first" {
		t.Errorf("resolved %q, want first", m.Name)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	db := testDB(t)
	if _, err := Register(db, "https://api.example.org", validModule("md2html")); err != nil {
		t.Fatal(err)
	}

	job := &models.Job{ResourceType: "bible", InputFormat: "usfm", OutputFormat: "html"}
	_, err := Resolve(db, job)
	if err == nil {
		t.Fatal("expected no-match error")
	}
	var noMatch *NoMatchError
	if !errors.As(err, &noMatch) {
		t.Fatalf("err type = %T, want *NoMatchError", err)
	}
	want := "no converter was found to convert bible from usfm to html"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestGetUpdateDelete(t *testing.T) {
	db := testDB(t)
	if _, err := Register(db, "https://api.example.org", validModule("md2html")); err != nil {
		t.Fatal(err)
	}

	m, err := Get(db, "md2html")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	m.Version = 2
	if err := Update(db, m); err != nil {
		t.Fatalf("Update: %v", err)
	}
	m, _ = Get(db, "md2html")
	if m.Version != 2 {
		t.Errorf("Version = %d, want 2", m.Version)
	}

	if err := Delete(db, "md2html"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := Delete(db, "md2html"); err == nil {
		t.Error("expected error deleting missing module")
	}
}
