package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"gleaner/internal/catalog"
	"gleaner/internal/config"
	"gleaner/internal/ledger"
	"gleaner/internal/testsupport"
)

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func newTranscriptServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		fmt.Fprintf(w, `{"item_id": %q, "segments": [{"text": "words for %s", "start": 0}]}`, id, id)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunStatusMergeEndToEnd(t *testing.T) {
	srv := newTranscriptServer(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithEndpoint(srv.URL),
		testsupport.WithBatchSize(2),
		func(c *config.Config) {
			c.Executor.MinDelaySeconds = 0.001
			c.Executor.MaxDelaySeconds = 0.01
			c.Logging.Format = "json"
		},
	)
	testsupport.WriteCatalog(t, cfg, 5, 150)
	configPath := writeTestConfig(t, cfg)

	out, err := runCLI(t, "--config", configPath, "run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}

	led, err := ledger.Open(cfg.Paths.LedgerFile)
	if err != nil {
		t.Fatalf("open ledger after run: %v", err)
	}
	if led.Len() != 5 {
		t.Errorf("ledger has %d records, want 5", led.Len())
	}
	if got := led.NextResumeIndex(); got != 5 {
		t.Errorf("next resume index = %d, want 5", got)
	}
	if err := led.Close(); err != nil {
		t.Fatalf("close ledger: %v", err)
	}

	batchFiles, err := filepath.Glob(filepath.Join(cfg.Paths.BatchDir, "gleaner_batch_*.json"))
	if err != nil {
		t.Fatalf("glob batches: %v", err)
	}
	if len(batchFiles) != 3 {
		t.Errorf("batch files = %d, want 3", len(batchFiles))
	}

	out, err = runCLI(t, "--config", configPath, "status")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Next index") {
		t.Errorf("status output missing table:\n%s", out)
	}

	out, err = runCLI(t, "--config", configPath, "merge")
	if err != nil {
		t.Fatalf("merge: %v\n%s", err, out)
	}
	if _, err := os.Stat(cfg.Paths.MergedFile); err != nil {
		t.Errorf("merged file missing: %v", err)
	}
	if _, err := os.Stat(cfg.Paths.StoreFile); err != nil {
		t.Errorf("store file missing: %v", err)
	}

	// Flags override the configured batch dir and export path.
	altMerged := filepath.Join(t.TempDir(), "alt_merged.json")
	out, err = runCLI(t, "--config", configPath, "merge", "--skip-store",
		"--source-dir", cfg.Paths.BatchDir, "--out", altMerged)
	if err != nil {
		t.Fatalf("merge with flags: %v\n%s", err, out)
	}
	if _, err := os.Stat(altMerged); err != nil {
		t.Errorf("alternate merged file missing: %v", err)
	}

	// Rerunning is a no-op: everything is ledgered.
	out, err = runCLI(t, "--config", configPath, "run")
	if err != nil {
		t.Fatalf("second run: %v\n%s", err, out)
	}
}

func TestMergeWithoutBatches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	out, err := runCLI(t, "--config", configPath, "merge")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !strings.Contains(out, "nothing to merge") {
		t.Errorf("output = %q", out)
	}
}

func TestCatalogInspect(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteCatalog(t, cfg, 3, 60) // below the duration floor
	configPath := writeTestConfig(t, cfg)

	out, err := runCLI(t, "--config", configPath, "catalog", "inspect")
	if err != nil {
		t.Fatalf("catalog inspect: %v\n%s", err, out)
	}
	if !strings.Contains(out, "3") {
		t.Errorf("output missing raw count:\n%s", out)
	}
}

func TestCatalogFilter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteCatalog(t, cfg, 3, 150)
	configPath := writeTestConfig(t, cfg)
	outPath := filepath.Join(t.TempDir(), "filtered.json")

	out, err := runCLI(t, "--config", configPath, "catalog", "filter", "--out", outPath)
	if err != nil {
		t.Fatalf("catalog filter: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Wrote 3 of 3") {
		t.Errorf("output = %q", out)
	}
	cat, err := catalog.Load(outPath)
	if err != nil {
		t.Fatalf("load filtered catalog: %v", err)
	}
	if cat.Len() != 3 {
		t.Errorf("filtered catalog len = %d, want 3", cat.Len())
	}

	// A tighter bound on the flag wins over config.
	out, err = runCLI(t, "--config", configPath, "catalog", "filter",
		"--min-duration", "200", "--out", outPath)
	if err != nil {
		t.Fatalf("catalog filter with bound: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Wrote 0 of 3") {
		t.Errorf("output = %q", out)
	}

	// Missing --out is an error.
	if _, err := runCLI(t, "--config", configPath, "catalog", "filter"); err == nil {
		t.Fatal("expected error without --out")
	}
}

func TestLedgerRebuild(t *testing.T) {
	srv := newTranscriptServer(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithEndpoint(srv.URL),
		func(c *config.Config) {
			c.Executor.MinDelaySeconds = 0.001
			c.Executor.MaxDelaySeconds = 0.01
			c.Logging.Format = "json"
		},
	)
	testsupport.WriteCatalog(t, cfg, 4, 150)
	configPath := writeTestConfig(t, cfg)

	if out, err := runCLI(t, "--config", configPath, "run"); err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if err := os.Remove(cfg.Paths.LedgerFile); err != nil {
		t.Fatalf("remove ledger: %v", err)
	}

	out, err := runCLI(t, "--config", configPath, "ledger", "rebuild")
	if err != nil {
		t.Fatalf("ledger rebuild: %v\n%s", err, out)
	}
	if !strings.Contains(out, "4 records") {
		t.Errorf("rebuild output = %q", out)
	}

	led, err := ledger.Open(cfg.Paths.LedgerFile)
	if err != nil {
		t.Fatalf("open rebuilt ledger: %v", err)
	}
	defer led.Close()
	if led.Len() != 4 || led.NextResumeIndex() != 4 {
		t.Errorf("rebuilt ledger len = %d next = %d", led.Len(), led.NextResumeIndex())
	}
}

func TestConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v\n%s", err, out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("config file missing: %v", err)
	}

	// Second init without --overwrite refuses.
	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error for existing config")
	}

	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("load generated config: %v", err)
	}
	if !exists {
		t.Error("generated config not detected")
	}
	if cfg.Workflow.BatchSize < 1 {
		t.Errorf("generated config batch size = %d", cfg.Workflow.BatchSize)
	}
}
