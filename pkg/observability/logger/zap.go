package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is the minimum severity written.
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// zapLevel maps l onto zap. Unknown values log at info.
func (l LogLevel) zapLevel() zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(l)); err != nil || lvl < zapcore.DebugLevel || lvl > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return lvl
}

// LogFormat selects the encoder.
type LogFormat string

const (
	// JSONFormat writes one JSON object per entry.
	JSONFormat LogFormat = "json"
	// TextFormat writes tab-separated console lines.
	TextFormat LogFormat = "text"
)

// Config holds configuration for the logger.
type Config struct {
	Level  LogLevel
	Format LogFormat
	// Service and Environment, when set, are attached to every entry.
	Service     string
	Environment string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// DefaultConfig returns info-level JSON logging.
func DefaultConfig() Config {
	return Config{Level: InfoLevel, Format: JSONFormat}
}

// ZapLogger is the Logger used by the server and the CLI.
type ZapLogger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "timestamp",
	LevelKey:       "level",
	NameKey:        "logger",
	CallerKey:      "caller",
	FunctionKey:    zapcore.OmitKey,
	MessageKey:     "message",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.LowercaseLevelEncoder,
	EncodeTime:     zapcore.ISO8601TimeEncoder,
	EncodeDuration: zapcore.MillisDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// NewZapLogger builds a ZapLogger from cfg.
func NewZapLogger(cfg Config) (*ZapLogger, error) {
	encoder := zapcore.NewJSONEncoder(encoderConfig)
	if cfg.Format == TextFormat {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var fields []zap.Field
	if cfg.Service != "" {
		fields = append(fields, zap.String("service", cfg.Service))
	}
	if cfg.Environment != "" {
		fields = append(fields, zap.String("environment", cfg.Environment))
	}

	base := zap.New(
		zapcore.NewCore(encoder, zapcore.AddSync(out), cfg.Level.zapLevel()),
		zap.AddCaller(), zap.AddCallerSkip(1), zap.Fields(fields...),
	)
	return &ZapLogger{base: base, sugar: base.Sugar()}, nil
}

func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }

func (l *ZapLogger) Info(msg string, args ...any) { l.sugar.Infow(msg, args...) }

func (l *ZapLogger) Warn(msg string, args ...any) { l.sugar.Warnw(msg, args...) }

func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

// With returns a child logger carrying args on every entry.
func (l *ZapLogger) With(args ...any) Logger {
	return &ZapLogger{base: l.base, sugar: l.sugar.With(args...)}
}

// WithContext tags entries with the request ID and the active span of ctx,
// so a slow or failed query can be found in both the logs and the traces.
func (l *ZapLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	var args []any
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		args = append(args, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	if len(args) == 0 {
		return l
	}
	return l.With(args...)
}

// Sync flushes buffered entries. Call it before exiting.
func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}

// ParseLogLevel validates a configured level. "warning" is accepted for warn.
func ParseLogLevel(level string) (LogLevel, error) {
	s := strings.ToLower(strings.TrimSpace(level))
	if s == "warning" {
		return WarnLevel, nil
	}
	switch LogLevel(s) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return LogLevel(s), nil
	}
	return "", fmt.Errorf("invalid log level: %s", level)
}

// ParseLogFormat validates a configured format. "console" is accepted for text.
func ParseLogFormat(format string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return JSONFormat, nil
	case "text", "console":
		return TextFormat, nil
	}
	return "", fmt.Errorf("invalid log format: %s", format)
}
