package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"

	"github.com/signalshift-data/internal/common/discord"
)

// Logger interface defines the logging methods
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
}

// logger implementation
type loggerImpl struct {
	zl zerolog.Logger
}

// New creates a new logger instance with the given writers.
// Nil writers are skipped.
func New(writers ...io.Writer) Logger {
	var out []io.Writer
	for _, w := range writers {
		if w != nil {
			out = append(out, w)
		}
	}
	if len(out) == 0 {
		return Nop()
	}
	multi := io.MultiWriter(out...)
	zl := zerolog.New(multi).With().Timestamp().Logger()
	return &loggerImpl{zl: zl}
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return &loggerImpl{zl: zerolog.Nop()}
}

// FromZerolog wraps an existing zerolog.Logger
func FromZerolog(zl zerolog.Logger) Logger {
	return &loggerImpl{zl: zl}
}

// ConsoleWriter returns a console writer
func ConsoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

// FileWriter returns a file writer with rotation
func FileWriter(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
}

// Info logs an info message
func (l *loggerImpl) Info(msg string, fields ...interface{}) {
	logWithFields(l.zl.Info(), msg, fields...)
}

// Warn logs a warning message
func (l *loggerImpl) Warn(msg string, fields ...interface{}) {
	logWithFields(l.zl.Warn(), msg, fields...)
}

// Error logs an error message
func (l *loggerImpl) Error(msg string, fields ...interface{}) {
	logWithFields(withAlertFields(l.zl.Error(), fields), msg, fields...)
}

// Debug logs a debug message
func (l *loggerImpl) Debug(msg string, fields ...interface{}) {
	logWithFields(l.zl.Debug(), msg, fields...)
}

// Fatal logs a fatal message and exits
func (l *loggerImpl) Fatal(msg string, fields ...interface{}) {
	logWithFields(withAlertFields(l.zl.Fatal(), fields), msg, fields...)
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level           zerolog.Level
	Console         bool
	File            bool
	FilePath        string
	MaxSizeMB       int
	MaxBackups      int
	MaxAgeDays      int
	Compress        bool
	TimeFieldFormat string
	DiscordURL      string
}

var (
	global     Logger = Nop()
	globalOnce sync.Once
)

// InitLogger builds the process logger from cfg. Only the first call has an effect.
func InitLogger(cfg LoggerConfig) Logger {
	globalOnce.Do(func() {
		var writers []io.Writer

		if cfg.Console {
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: cfg.TimeFieldFormat})
		}

		if cfg.File {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
			})
		}

		if len(writers) == 0 {
			writers = append(writers, os.Stdout)
		}

		if cfg.TimeFieldFormat != "" {
			zerolog.TimeFieldFormat = cfg.TimeFieldFormat
		}

		zl := zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger().Level(cfg.Level)
		if cfg.DiscordURL != "" {
			zl = zl.Hook(NewDiscordHook(discord.NewClient(cfg.DiscordURL)))
		}
		global = &loggerImpl{zl: zl}
	})
	return global
}

// Global returns the logger built by InitLogger, or a no-op logger before that
func Global() Logger {
	return global
}

// ParseLogLevel maps a config string to a zerolog level, defaulting to info
func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// logWithFields adds structured fields to the event
func logWithFields(event *zerolog.Event, msg string, fields ...interface{}) {
	if len(fields) == 1 {
		if m, ok := fields[0].(map[string]interface{}); ok {
			event.Fields(m).Msg(msg)
			return
		}
	}
	// fallback: treat as key-value pairs
	if len(fields)%2 == 0 {
		for i := 0; i < len(fields); i += 2 {
			key, ok := fields[i].(string)
			if !ok {
				continue
			}
			if key == "error" {
				if err, ok := fields[i+1].(error); ok && err != nil {
					event = event.Err(err)
					continue
				}
			}
			event = event.Interface(key, fields[i+1])
		}
	} else {
		event = event.Str("fields", fmt.Sprint(fields...))
	}
	event.Msg(msg)
}

type alertFieldsKey struct{}

// withAlertFields hands the call's fields to hooks, which cannot read them
// back off a zerolog event
func withAlertFields(event *zerolog.Event, fields []interface{}) *zerolog.Event {
	if event == nil || len(fields) == 0 {
		return event
	}
	return event.Ctx(context.WithValue(context.Background(), alertFieldsKey{}, fieldMap(fields)))
}

func alertFieldsFrom(event *zerolog.Event) map[string]interface{} {
	if event == nil {
		return nil
	}
	ctx := event.GetCtx()
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(alertFieldsKey{}).(map[string]interface{})
	return fields
}

func fieldMap(fields []interface{}) map[string]interface{} {
	if len(fields) == 1 {
		if m, ok := fields[0].(map[string]interface{}); ok {
			return m
		}
	}
	out := make(map[string]interface{}, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if err, ok := fields[i+1].(error); ok && err != nil {
			out[key] = err.Error()
			continue
		}
		out[key] = fields[i+1]
	}
	return out
}
