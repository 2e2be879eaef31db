package config

import (
	"errors"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateExecutor(); err != nil {
		return err
	}
	if err := c.validateIdentity(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.LedgerFile) == "" {
		return errors.New("paths.ledger_file must be set")
	}
	if strings.TrimSpace(c.Paths.BatchDir) == "" {
		return errors.New("paths.batch_dir must be set")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.MinDurationSeconds < 0 || c.Catalog.MaxDurationSeconds < 0 {
		return errors.New("catalog duration bounds must not be negative")
	}
	if c.Catalog.MaxDurationSeconds > 0 && c.Catalog.MinDurationSeconds > c.Catalog.MaxDurationSeconds {
		return errors.New("catalog.min_duration_seconds must not exceed catalog.max_duration_seconds")
	}
	return nil
}

func (c *Config) validateExecutor() error {
	if c.Executor.MinDelaySeconds <= 0 {
		return errors.New("executor.min_delay_seconds must be positive")
	}
	if c.Executor.MaxDelaySeconds < c.Executor.MinDelaySeconds {
		return errors.New("executor.max_delay_seconds must not be below executor.min_delay_seconds")
	}
	if c.Executor.BackoffFactor <= 1 {
		return errors.New("executor.backoff_factor must be greater than 1")
	}
	if c.Executor.BackoffCapSeconds <= 0 {
		return errors.New("executor.backoff_cap_seconds must be positive")
	}
	if c.Executor.MaxRetries < 1 {
		return errors.New("executor.max_retries must be at least 1")
	}
	if c.Executor.BlockCooldownSeconds < 0 || c.Executor.BlockCooldownStepSeconds < 0 {
		return errors.New("executor block cooldowns must not be negative")
	}
	return nil
}

func (c *Config) validateIdentity() error {
	if c.Identity.StabilizationSeconds < 0 {
		return errors.New("identity.stabilization_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.BatchSize < 1 {
		return errors.New("workflow.batch_size must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "auto", "console", "json":
		return nil
	default:
		return errors.New("logging.format must be one of auto, console, json")
	}
}
