package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
api_url: https://api.example.org
cdn_url: https://cdn.example.org
cdn_bucket: cdn-prod
preconvert_bucket: pre-prod
git_url: https://git.example.org
port: 9000
data_dir: /var/lib/typeset
worker_timeout_secs: 120
sweep_schedule: "*/5 * * * *"

database:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  user: typeset
  password: hunter2
  name: typeset_prod

notify:
  slack_bot_token: xoxb-123
  slack_channel: C0CONVERT
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.APIURL != "https://api.example.org" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.CDNURL != "https://cdn.example.org" {
		t.Errorf("CDNURL = %q", cfg.CDNURL)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.WorkerTimeout() != 120*time.Second {
		t.Errorf("WorkerTimeout = %v, want 2m", cfg.WorkerTimeout())
	}
	if cfg.SweepSchedule != "*/5 * * * *" {
		t.Errorf("SweepSchedule = %q", cfg.SweepSchedule)
	}
	if cfg.Database.Driver != "mysql" || cfg.Database.Host != "10.0.0.5" || cfg.Database.Port != 3307 {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Notify.SlackBotToken != "xoxb-123" || cfg.Notify.SlackChannel != "C0CONVERT" {
		t.Errorf("Notify = %+v", cfg.Notify)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("api_url: https://api.example.org\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Port != 8090 {
		t.Errorf("Port = %d, want 8090", cfg.Port)
	}
	if cfg.WorkerTimeout() != 300*time.Second {
		t.Errorf("WorkerTimeout = %v, want 5m", cfg.WorkerTimeout())
	}
	if cfg.SweepSchedule != "*/10 * * * *" {
		t.Errorf("SweepSchedule = %q", cfg.SweepSchedule)
	}
	if cfg.CDNURL != "https://api.example.org/cdn" {
		t.Errorf("CDNURL = %q", cfg.CDNURL)
	}
	if cfg.PreconvertURL != "https://api.example.org/preconvert" {
		t.Errorf("PreconvertURL = %q", cfg.PreconvertURL)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "typeset.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
}

func TestParse_MissingAPIURL(t *testing.T) {
	_, err := Parse([]byte("port: 8090\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "api_url is required") {
		t.Errorf("error = %q, want api_url complaint", err.Error())
	}
}

func TestParse_BadDriver(t *testing.T) {
	_, err := Parse([]byte("api_url: x\ndatabase:\n  driver: postgres\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "is not supported") {
		t.Errorf("error = %q, want unsupported driver complaint", err.Error())
	}
}

func TestParse_MysqlRequiresUser(t *testing.T) {
	_, err := Parse([]byte("api_url: x\ndatabase:\n  driver: mysql\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "database.user is required") {
		t.Errorf("error = %q, want user complaint", err.Error())
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "typeset.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Name != "typeset_prod" {
		t.Errorf("Database.Name = %q", cfg.Database.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
