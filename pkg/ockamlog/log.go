// Package ockamlog provides the process-wide structured logger shared by
// every core subsystem (vault, identity, node substrate, secure channel,
// credentials).
package ockamlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance. Subsystems derive a child logger
// from it via WithComponent rather than logging through it directly.
var Logger zerolog.Logger

// Level is a logging verbosity level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
	TraceLevel Level = "trace"
)

// Config configures the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger. Safe to call once at process start;
// subsequent calls replace the global logger wholesale.
func Init(cfg Config) {
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
	case TraceLevel:
		level = zerolog.TraceLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
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

func init() {
	// A usable default so packages that log before an embedding
	// application calls Init don't panic on a zero-value logger.
	Init(Config{Level: InfoLevel})
}

// WithComponent returns a child logger tagged with the subsystem name,
// e.g. "vault", "securechannel", "router".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithIdentifier returns a child logger tagged with an identity identifier.
func WithIdentifier(logger zerolog.Logger, identifier string) zerolog.Logger {
	return logger.With().Str("identifier", identifier).Logger()
}

// WithChannel returns a child logger tagged with a secure channel's local
// address, for correlating handshake and running-phase log lines.
func WithChannel(logger zerolog.Logger, channelAddress string) zerolog.Logger {
	return logger.With().Str("channel", channelAddress).Logger()
}
