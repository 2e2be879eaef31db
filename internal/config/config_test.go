package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gleaner/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %s", resolved)
	}
	if cfg.Workflow.BatchSize != 10 {
		t.Fatalf("expected default batch size, got %d", cfg.Workflow.BatchSize)
	}
}

func TestLoadOverridesAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
ledger_file = "~/gleaner-test/progress.json"

[workflow]
batch_size = 25

[identity]
proxies = ["http://proxy-a:3128", "  ", "http://proxy-b:3128"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be read")
	}
	if cfg.Workflow.BatchSize != 25 {
		t.Fatalf("batch size not overridden: %d", cfg.Workflow.BatchSize)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("home dir: %v", err)
	}
	if !strings.HasPrefix(cfg.Paths.LedgerFile, home) {
		t.Fatalf("expected ~ expansion, got %s", cfg.Paths.LedgerFile)
	}
	if len(cfg.Identity.Proxies) != 2 {
		t.Fatalf("expected blank proxies stripped, got %v", cfg.Identity.Proxies)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero min delay", func(c *config.Config) { c.Executor.MinDelaySeconds = 0 }},
		{"max below min delay", func(c *config.Config) { c.Executor.MaxDelaySeconds = 1 }},
		{"backoff factor", func(c *config.Config) { c.Executor.BackoffFactor = 1 }},
		{"retries", func(c *config.Config) { c.Executor.MaxRetries = 0 }},
		{"batch size", func(c *config.Config) { c.Workflow.BatchSize = 0 }},
		{"log format", func(c *config.Config) { c.Logging.Format = "yaml" }},
		{"duration bounds", func(c *config.Config) {
			c.Catalog.MinDurationSeconds = 500
			c.Catalog.MaxDurationSeconds = 100
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("sample config not detected")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}
