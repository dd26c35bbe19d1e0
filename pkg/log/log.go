package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}

	initDebugFlags(os.Getenv("SLURM_DEBUG_FLAGS"))
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithConnID creates a child logger tagged with a connection's display name.
func WithConnID(name string) zerolog.Logger {
	return Logger.With().Str("conn", name).Logger()
}

// WithJobID creates a child logger tagged with a job id.
func WithJobID(jobID uint32) zerolog.Logger {
	return Logger.With().Uint32("job_id", jobID).Logger()
}

// debugFlags mirrors $SLURM_DEBUG_FLAGS: a set of category names that gate
// DebugFlag calls even when the global level already passes DebugLevel.
var (
	debugFlagsMu sync.RWMutex
	debugFlags   map[string]bool
)

func initDebugFlags(raw string) {
	flags := make(map[string]bool)
	for _, f := range strings.Split(raw, ",") {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f != "" {
			flags[f] = true
		}
	}
	debugFlagsMu.Lock()
	debugFlags = flags
	debugFlagsMu.Unlock()
}

// DebugEnabled reports whether a debug category (e.g. "NET", "WORKQ", "SACK")
// was requested via $SLURM_DEBUG_FLAGS.
func DebugEnabled(category string) bool {
	debugFlagsMu.RLock()
	defer debugFlagsMu.RUnlock()
	return debugFlags[strings.ToUpper(category)]
}

// DebugFlag emits a debug-level log line only if category is enabled.
func DebugFlag(logger *zerolog.Logger, category, msg string) {
	if !DebugEnabled(category) {
		return
	}
	logger.Debug().Str("flag", category).Msg(msg)
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
