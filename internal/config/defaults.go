package config

const (
	defaultCatalogFile = "~/.local/share/gleaner/catalog.json"
	defaultLedgerFile  = "~/.local/share/gleaner/progress.json"
	defaultBatchDir    = "~/.local/share/gleaner/batches"
	defaultStoreFile   = "~/.local/share/gleaner/transcripts.db"
	defaultMergedFile  = "~/.local/share/gleaner/merged.json"
	defaultLogDir      = "~/.local/share/gleaner/logs"

	defaultMinDurationSeconds = 121
	defaultMaxDurationSeconds = 300

	defaultLanguage              = "en"
	defaultFetchTimeoutSeconds   = 20
	defaultMinDelaySeconds       = 3.0
	defaultMaxDelaySeconds       = 15.0
	defaultBackoffFactor         = 2.5
	defaultBackoffCapSeconds     = 30.0
	defaultMaxRetries            = 5
	defaultBlockCooldownSeconds  = 300
	defaultBlockCooldownStep     = 180
	defaultStabilizationSeconds  = 15
	defaultBatchSize             = 10
	defaultLogFormat             = "auto"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CatalogFile: defaultCatalogFile,
			LedgerFile:  defaultLedgerFile,
			BatchDir:    defaultBatchDir,
			StoreFile:   defaultStoreFile,
			MergedFile:  defaultMergedFile,
			LogDir:      defaultLogDir,
		},
		Catalog: Catalog{
			MinDurationSeconds: defaultMinDurationSeconds,
			MaxDurationSeconds: defaultMaxDurationSeconds,
		},
		Transcript: Transcript{
			Language:       defaultLanguage,
			TimeoutSeconds: defaultFetchTimeoutSeconds,
		},
		Executor: Executor{
			MinDelaySeconds:          defaultMinDelaySeconds,
			MaxDelaySeconds:          defaultMaxDelaySeconds,
			BackoffFactor:            defaultBackoffFactor,
			BackoffCapSeconds:        defaultBackoffCapSeconds,
			MaxRetries:               defaultMaxRetries,
			BlockCooldownSeconds:     defaultBlockCooldownSeconds,
			BlockCooldownStepSeconds: defaultBlockCooldownStep,
		},
		Identity: Identity{
			StabilizationSeconds: defaultStabilizationSeconds,
		},
		Workflow: Workflow{
			BatchSize: defaultBatchSize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
