// Package olog provides the package-level structured logger used across
// ouroboros, mirroring cuemby-warren/pkg/log's global-logger pattern.
package olog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance. Init replaces it; until Init is
// called it defaults to a console writer on stderr at info level.
var Logger zerolog.Logger

// Level is a logging verbosity level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

func init() {
	Init(Config{Level: InfoLevel, Output: os.Stderr})
}

// Init (re)configures the global Logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithDataset returns a child logger tagged with the dataset's path.
func WithDataset(path string) zerolog.Logger {
	return Logger.With().Str("dataset", path).Logger()
}

// WithTable returns a child logger tagged with a table name.
func WithTable(name string) zerolog.Logger {
	return Logger.With().Str("table", name).Logger()
}

// WithTxn returns a child logger tagged with a transaction id.
func WithTxn(id uint64) zerolog.Logger {
	return Logger.With().Uint64("txn", id).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

// Errorf logs msg at error level with err attached.
func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}
