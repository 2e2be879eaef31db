// Package logging constructs slog loggers for the CLI and the extraction
// engine.
//
// Loggers are built from Options (level, format, output paths). The "auto"
// format picks console output when stdout is a terminal and JSON otherwise,
// so log files and piped output stay machine-readable. Attr helpers keep
// field naming consistent across packages.
package logging
