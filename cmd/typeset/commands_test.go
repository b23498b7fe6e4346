package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestMigrateCmd_Flags(t *testing.T) {
	cmd := newMigrateCmd()
	if cmd.Use != "migrate" {
		t.Errorf("Use = %q, want %q", cmd.Use, "migrate")
	}
	if cmd.Flags().Lookup("config") == nil {
		t.Error("expected --config flag")
	}
}

func TestServeCmd_Flags(t *testing.T) {
	cmd := newServeCmd()
	if cmd.Flags().Lookup("config") == nil {
		t.Error("expected --config flag")
	}
	if cmd.Flags().Lookup("port") == nil {
		t.Error("expected --port flag")
	}
}

func TestDashboardCmd_Flags(t *testing.T) {
	cmd := newDashboardCmd()
	port := cmd.Flags().Lookup("port")
	if port == nil {
		t.Fatal("expected --port flag")
	}
	if port.DefValue != "8080" {
		t.Errorf("port default = %q, want 8080", port.DefValue)
	}
}

func TestJobsCmd_Subcommands(t *testing.T) {
	cmd := newJobsCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("jobs --help failed: %v", err)
	}
	for _, sub := range []string{"list", "start"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("jobs help should list %q subcommand", sub)
		}
	}
}

func TestModulesRegisterCmd_Flags(t *testing.T) {
	root := newModulesCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"register", "--help"})

	if err := root.Execute(); err != nil {
		t.Fatalf("modules register --help failed: %v", err)
	}
	for _, flag := range []string{"--name", "--input", "--output", "--resource-types", "--version", "--endpoint"} {
		if !strings.Contains(buf.String(), flag) {
			t.Errorf("register help should mention %s flag", flag)
		}
	}
}
