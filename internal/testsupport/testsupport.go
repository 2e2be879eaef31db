// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gleaner/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp paths per test. It
// defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CatalogFile = filepath.Join(base, "catalog.json")
	cfg.Paths.LedgerFile = filepath.Join(base, "ledger.json")
	cfg.Paths.BatchDir = filepath.Join(base, "batches")
	cfg.Paths.StoreFile = filepath.Join(base, "gleaner.db")
	cfg.Paths.MergedFile = filepath.Join(base, "merged.json")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Transcript.Endpoint = "http://127.0.0.1:0"
	cfg.Identity.RotationEnabled = false
	cfg.Identity.StabilizationSeconds = 0

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithEndpoint overrides the transcript endpoint on the test config.
func WithEndpoint(endpoint string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Transcript.Endpoint = endpoint
	}
}

// WithBatchSize overrides the workflow batch size on the test config.
func WithBatchSize(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.BatchSize = n
	}
}

// WriteCatalog writes a catalog fixture with n items of the given duration
// to the config's catalog path. Item IDs are deterministic and valid.
func WriteCatalog(t testing.TB, cfg *config.Config, n, durationSeconds int) {
	t.Helper()

	type item struct {
		ID              string `json:"id"`
		Title           string `json:"title"`
		DurationSeconds int    `json:"duration_seconds"`
	}
	doc := struct {
		Source string `json:"source"`
		Items  []item `json:"items"`
	}{Source: "test"}
	for i := 0; i < n; i++ {
		doc.Items = append(doc.Items, item{
			ID:              ItemID(i),
			Title:           fmt.Sprintf("item %d", i),
			DurationSeconds: durationSeconds,
		})
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal catalog fixture: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.CatalogFile), 0o755); err != nil {
		t.Fatalf("create catalog dir: %v", err)
	}
	if err := os.WriteFile(cfg.Paths.CatalogFile, data, 0o644); err != nil {
		t.Fatalf("write catalog fixture: %v", err)
	}
}

// ItemID returns a deterministic valid 11-character item ID for index i.
func ItemID(i int) string {
	return fmt.Sprintf("item%07d", i)
}
