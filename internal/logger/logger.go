// Package logger provides tagsfs's structured logging: a package-level
// slog.Logger writing either logfmt-style text or JSON records tagged with
// a TRACE/DEBUG/INFO/WARNING/ERROR severity, optionally rotated through
// lumberjack.
//
// Grounded on internal/logger's API surface as revealed by
// logger_test.go / async_logger_test.go in the teacher repo (the package's
// own logger.go was filtered from the retrieval pack for size, so this is
// a from-scratch reconstruction matching the test-asserted behavior: a
// textTraceString/jsonTraceString log line shape, package-level
// Tracef/Debugf/Infof/Warnf/Errorf helpers, and a severity ordering
// controlled by a slog.LevelVar).
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// severity levels below slog's built-in Debug/Info/Warn/Error so TRACE can
// be strictly quieter than DEBUG.
const (
	levelTrace   = slog.Level(-8)
	levelDebug   = slog.LevelDebug
	levelInfo    = slog.LevelInfo
	levelWarning = slog.LevelWarn
	levelError   = slog.LevelError
)

// Format selects the on-disk record shape.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

type factory struct{}

var defaultLoggerFactory = factory{}

var (
	programLevel  = new(slog.LevelVar)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevel, ""))
)

// Config controls where and how logger output is produced.
type Config struct {
	// Format selects text or JSON record shape.
	Format Format

	// Severity is one of "TRACE", "DEBUG", "INFO", "WARNING", "ERROR".
	// Defaults to "INFO" when empty.
	Severity string

	// FilePath, when non-empty, routes output through a rotating
	// lumberjack.Logger instead of stderr.
	FilePath string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init reconfigures the package-level logger per cfg. Safe to call once at
// startup; not safe for concurrent use with the logging helpers.
func Init(cfg Config) {
	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 512),
			MaxBackups: orDefault(cfg.MaxBackups, 10),
			MaxAge:     orDefault(cfg.MaxAgeDays, 0),
		}
	}

	setLoggingLevel(cfg.Severity, programLevel)

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = defaultLoggerFactory.createJSONHandler(w, programLevel, "")
	} else {
		handler = defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, "")
	}
	defaultLogger = slog.New(handler)
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func setLoggingLevel(severity string, level *slog.LevelVar) {
	switch strings.ToUpper(severity) {
	case "TRACE":
		level.Set(levelTrace)
	case "DEBUG":
		level.Set(levelDebug)
	case "WARNING":
		level.Set(levelWarning)
	case "ERROR":
		level.Set(levelError)
	default:
		level.Set(levelInfo)
	}
}

// severityHandler wraps a slog.Handler to render tagsfs's severity names
// and either text or JSON layout, matching the two record shapes asserted
// by logger_test.go's textTraceString / jsonTraceString patterns.
type severityHandler struct {
	w      io.Writer
	level  *slog.LevelVar
	prefix string
	json   bool
}

func (c factory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	return &severityHandler{w: w, level: level, prefix: prefix, json: false}
}

func (c factory) createJSONHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	return &severityHandler{w: w, level: level, prefix: prefix, json: true}
}

func severityName(l slog.Level) string {
	switch {
	case l < levelDebug:
		return "TRACE"
	case l < levelInfo:
		return "DEBUG"
	case l < levelWarning:
		return "INFO"
	case l < levelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

func (h *severityHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *severityHandler) Handle(_ context.Context, r slog.Record) error {
	msg := h.prefix + r.Message
	if h.json {
		type jsonRecord struct {
			Timestamp struct {
				Seconds int64 `json:"seconds"`
				Nanos   int   `json:"nanos"`
			} `json:"timestamp"`
			Severity string `json:"severity"`
			Message  string `json:"message"`
		}
		var rec jsonRecord
		rec.Timestamp.Seconds = r.Time.Unix()
		rec.Timestamp.Nanos = r.Time.Nanosecond()
		rec.Severity = severityName(r.Level)
		rec.Message = msg
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(h.w, "%s\n", b)
		return err
	}

	ts := r.Time.Format("01/02/2006 15:04:05.000000")
	_, err := fmt.Fprintf(h.w, "time=%q severity=%s message=%q\n", ts, severityName(r.Level), msg)
	return err
}

func (h *severityHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *severityHandler) WithGroup(_ string) slog.Handler      { return h }

// Tracef logs at TRACE severity, the level below DEBUG used for
// per-operation entry/argument logging on every filesystem call.
func Tracef(format string, args ...any) { logf(levelTrace, format, args...) }

// Debugf logs at DEBUG severity.
func Debugf(format string, args ...any) { logf(levelDebug, format, args...) }

// Infof logs at INFO severity.
func Infof(format string, args ...any) { logf(levelInfo, format, args...) }

// Warnf logs at WARNING severity.
func Warnf(format string, args ...any) { logf(levelWarning, format, args...) }

// Errorf logs at ERROR severity.
func Errorf(format string, args ...any) { logf(levelError, format, args...) }

func logf(level slog.Level, format string, args ...any) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}
