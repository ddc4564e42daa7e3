package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tiendamx/asistente-catalogo/internal/config"
)

func TestRunInitFreshDirectory(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}
	if !strings.Contains(buf.String(), cfgPath) {
		t.Errorf("output does not mention %s:\n%s", cfgPath, buf.String())
	}

	// The starter config must load cleanly and keep the defaults for
	// anything it does not override.
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("starter config does not load: %v", err)
	}
	if cfg.Listen.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Listen.Port)
	}
	if cfg.Catalog.BranchSlug != "san_luis_potosi" {
		t.Errorf("branch_slug = %q", cfg.Catalog.BranchSlug)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("max_iterations = %d, want 10", cfg.Agent.MaxIterations)
	}
}

func TestRunInitNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "log_level: debug\n" {
		t.Errorf("existing config.yaml was overwritten:\n%s", data)
	}
}

func TestRunVersionText(t *testing.T) {
	var buf bytes.Buffer
	if err := runVersion(&buf, "text"); err != nil {
		t.Fatalf("runVersion failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"version:", "go_version:", "os:", "arch:"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q:\n%s", want, out)
		}
	}
}

func TestRunVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := runVersion(&buf, "json"); err != nil {
		t.Fatalf("runVersion failed: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, buf.String())
	}
	if info["go_version"] == "" {
		t.Error("go_version missing from JSON output")
	}
}

func TestRunHelpAndUnknowns(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	if err := run(ctx, &buf, &buf, []string{"-h"}); err != nil {
		t.Fatalf("run -h failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Usage:") {
		t.Errorf("help output missing usage:\n%s", buf.String())
	}

	if err := run(ctx, &buf, &buf, []string{"frobnicate"}); err == nil {
		t.Error("unknown command should fail")
	}
	if err := run(ctx, &buf, &buf, []string{"-o", "xml", "version"}); err == nil {
		t.Error("unknown output format should fail")
	}
	if err := run(ctx, &buf, &buf, []string{"ask"}); err == nil {
		t.Error("ask without a question should fail")
	}
	if err := run(ctx, &buf, &buf, []string{"sync"}); err == nil {
		t.Error("sync without ids should fail")
	}
}

func TestRunNoCommandPrintsUsage(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, &buf, nil); err != nil {
		t.Fatalf("run with no args failed: %v", err)
	}
	if !strings.Contains(buf.String(), "serve") {
		t.Errorf("usage missing commands:\n%s", buf.String())
	}
}
