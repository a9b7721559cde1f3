package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for explicit missing file, got config %+v", cfg)
	}

	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Analysis.FanOutLimit != 3 {
		t.Errorf("Analysis.FanOutLimit = %d, want 3", cfg.Analysis.FanOutLimit)
	}
	if cfg.Crawler.MaxPages != 10 {
		t.Errorf("Crawler.MaxPages = %d, want 10", cfg.Crawler.MaxPages)
	}
	if cfg.LLM.Timeout() != 120*time.Second {
		t.Errorf("LLM.Timeout() = %v", cfg.LLM.Timeout())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 9100\nsearch:\n  resultsPerQuery: 7\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FACTCHECK_LLM_MODEL", "test-model")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Search.ResultsPerQuery != 7 {
		t.Errorf("Search.ResultsPerQuery = %d, want 7", cfg.Search.ResultsPerQuery)
	}
	if cfg.LLM.Model != "test-model" {
		t.Errorf("LLM.Model = %q, want test-model", cfg.LLM.Model)
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Errorf("Redis.Addr() = %q", cfg.Redis.Addr())
	}
}
