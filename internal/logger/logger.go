// Package logger wires zerolog for the CLI and the API server.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

type Config struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"` // json/console
	Output     string `yaml:"output" json:"output"` // stdout/stderr/file
	FilePath   string `yaml:"file_path,omitempty" json:"file_path,omitempty"`
	TimeFormat string `yaml:"time_format,omitempty" json:"time_format,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.RFC3339,
	}
}

// Init builds the process logger once; later calls are no-ops.
func Init(cfg Config) {
	once.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(cfg.Level))
		logger = New(cfg, output(cfg))
	})
}

// New builds a logger writing to w without touching the process logger.
func New(cfg Config, w io.Writer) zerolog.Logger {
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: cfg.TimeFormat}
	}
	return zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
}

func output(cfg Config) io.Writer {
	switch cfg.Output {
	case "stdout":
		return os.Stdout
	case "file":
		if cfg.FilePath != "" {
			if f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
				return f
			}
		}
	}
	return os.Stderr
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func Get() *zerolog.Logger {
	Init(DefaultConfig())
	return &logger
}

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	runIDKey     ctxKey = "run_id"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithContext returns the process logger annotated with the request and run ids found in ctx.
func WithContext(ctx context.Context) *zerolog.Logger {
	c := Get().With()
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		c = c.Str("request_id", id)
	}
	if id, ok := ctx.Value(runIDKey).(string); ok {
		c = c.Str("run_id", id)
	}
	l := c.Logger()
	return &l
}

func Debug() *zerolog.Event { return Get().Debug() }

func Info() *zerolog.Event { return Get().Info() }

func Warn() *zerolog.Event { return Get().Warn() }

func Error() *zerolog.Event { return Get().Error() }

// SearchLogger logs the lifecycle of search runs.
type SearchLogger struct {
	base zerolog.Logger
}

func NewSearchLogger(base zerolog.Logger) *SearchLogger {
	return &SearchLogger{base: base.With().Str("component", "search").Logger()}
}

// Logger is the component logger handed to the search itself.
func (l *SearchLogger) Logger(runID string) zerolog.Logger {
	return l.base.With().Str("run_id", runID).Logger()
}

func (l *SearchLogger) StartRun(runID, instance string, customers, stations int, seed int64) {
	l.base.Info().
		Str("run_id", runID).
		Str("instance", instance).
		Int("customers", customers).
		Int("stations", stations).
		Int64("seed", seed).
		Msg("run started")
}

func (l *SearchLogger) NewBest(runID string, iteration int, cost float64, routes int) {
	l.base.Debug().
		Str("run_id", runID).
		Int("iteration", iteration).
		Float64("cost", cost).
		Int("routes", routes).
		Msg("new best")
}

func (l *SearchLogger) RunFailed(runID string, err error) {
	l.base.Error().Str("run_id", runID).Err(err).Msg("run failed")
}

func (l *SearchLogger) RunComplete(runID string, duration time.Duration, cost float64, routes int) {
	l.base.Info().
		Str("run_id", runID).
		Dur("duration", duration).
		Float64("cost", cost).
		Int("routes", routes).
		Msg("run complete")
}
