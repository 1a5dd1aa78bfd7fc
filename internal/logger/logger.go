package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the logger configuration.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	// Output is a comma separated list of "stdout", "stderr" or file paths.
	Output   string   `json:"output" yaml:"output"`
	Rotation Rotation `json:"rotation" yaml:"rotation"`
}

// Rotation configures rotation of file outputs.
type Rotation struct {
	MaxSize    int  `json:"maxSize" yaml:"max_size"` // megabytes
	MaxBackups int  `json:"maxBackups" yaml:"max_backups"`
	MaxAge     int  `json:"maxAge" yaml:"max_age"` // days
	Compress   bool `json:"compress" yaml:"compress"`
}

// NewLogger builds a slog logger from cfg. The returned function closes any
// log files and must be called before exit.
//
// If output is non-nil it replaces the configured outputs.
func NewLogger(cfg Config, output io.Writer) (*slog.Logger, func()) {
	var closers []io.Closer
	if output == nil {
		var writers []io.Writer
		for _, name := range strings.Split(cfg.Output, ",") {
			name = strings.TrimSpace(name)
			switch name {
			case "":
				continue
			case "stdout":
				writers = append(writers, os.Stdout)
			case "stderr":
				writers = append(writers, os.Stderr)
			default:
				l := &lumberjack.Logger{
					Filename:   name,
					MaxSize:    cfg.Rotation.MaxSize,
					MaxBackups: cfg.Rotation.MaxBackups,
					MaxAge:     cfg.Rotation.MaxAge,
					Compress:   cfg.Rotation.Compress,
				}
				writers = append(writers, l)
				closers = append(closers, l)
			}
		}
		// Reports go to stdout, so logs default to stderr.
		if len(writers) == 0 {
			writers = append(writers, os.Stderr)
		}
		output = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	cleanup := func() {
		for _, c := range closers {
			c.Close()
		}
	}
	return slog.New(handler), cleanup
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}
