package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory configuration.
type Paths struct {
	CatalogFile string `toml:"catalog_file"`
	LedgerFile  string `toml:"ledger_file"`
	BatchDir    string `toml:"batch_dir"`
	StoreFile   string `toml:"store_file"`
	MergedFile  string `toml:"merged_file"`
	LogDir      string `toml:"log_dir"`
}

// Catalog contains the duration filter applied when building the working
// catalog from a raw channel export.
type Catalog struct {
	MinDurationSeconds int `toml:"min_duration_seconds"`
	MaxDurationSeconds int `toml:"max_duration_seconds"`
}

// Transcript contains configuration for the remote transcript service.
type Transcript struct {
	Endpoint       string `toml:"endpoint"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Executor contains pacing and retry configuration for remote calls.
type Executor struct {
	MinDelaySeconds          float64 `toml:"min_delay_seconds"`
	MaxDelaySeconds          float64 `toml:"max_delay_seconds"`
	BackoffFactor            float64 `toml:"backoff_factor"`
	BackoffCapSeconds        float64 `toml:"backoff_cap_seconds"`
	MaxRetries               int     `toml:"max_retries"`
	BlockCooldownSeconds     int     `toml:"block_cooldown_seconds"`
	BlockCooldownStepSeconds int     `toml:"block_cooldown_step_seconds"`
}

// Identity contains network identity rotation configuration.
type Identity struct {
	RotationEnabled      bool     `toml:"rotation_enabled"`
	Proxies              []string `toml:"proxies"`
	RotateCommand        string   `toml:"rotate_command"`
	StabilizationSeconds int      `toml:"stabilization_seconds"`
}

// Workflow contains run sequencing configuration.
type Workflow struct {
	BatchSize int `toml:"batch_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for gleaner.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Catalog    Catalog    `toml:"catalog"`
	Transcript Transcript `toml:"transcript"`
	Executor   Executor   `toml:"executor"`
	Identity   Identity   `toml:"identity"`
	Workflow   Workflow   `toml:"workflow"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the default config location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gleaner/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. When no file exists the
// defaults are returned; exists reports whether a file was read.
func Load(path string) (cfg *Config, resolvedPath string, exists bool, err error) {
	loaded := Default()

	resolvedPath, exists, err = resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&loaded); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loaded.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, "", false, err
	}

	return &loaded, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gleaner.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run needs.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.BatchDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.LedgerFile),
		filepath.Dir(c.Paths.StoreFile),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	c.Transcript.Endpoint = strings.TrimSpace(c.Transcript.Endpoint)
	c.Transcript.Language = strings.TrimSpace(c.Transcript.Language)
	c.Identity.RotateCommand = strings.TrimSpace(c.Identity.RotateCommand)

	proxies := make([]string, 0, len(c.Identity.Proxies))
	for _, proxy := range c.Identity.Proxies {
		if trimmed := strings.TrimSpace(proxy); trimmed != "" {
			proxies = append(proxies, trimmed)
		}
	}
	c.Identity.Proxies = proxies

	for _, field := range []*string{
		&c.Paths.CatalogFile,
		&c.Paths.LedgerFile,
		&c.Paths.BatchDir,
		&c.Paths.StoreFile,
		&c.Paths.MergedFile,
		&c.Paths.LogDir,
	} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

// ExpandPath resolves a user-supplied path to an absolute one, expanding a
// leading ~ to the home directory.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the given location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
