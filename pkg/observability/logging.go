package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Logger is a structured logger for sidecar components
type Logger struct {
	*slog.Logger
}

// LogOptions selects level, handler format and destination.
type LogOptions struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Output io.Writer
}

// NewLogger creates a new structured logger
func NewLogger(component string, opts LogOptions) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "sidecar"),
	)
	return &Logger{Logger: logger}
}

// Discard returns a logger that drops everything. Used where a logger is
// optional.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a child logger with a different component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("component", name))}
}

// WithContext returns a logger carrying the trace and span ids of ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return l
	}
	return &Logger{Logger: l.Logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)}
}

// WithRun returns a logger with agent-run fields
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("run_id", runID))}
}

// RunFinished logs the end of an agent run.
func (l *Logger) RunFinished(outcome string, turns, events int, durationMS float64) {
	l.Info("agent run finished",
		slog.String("outcome", outcome),
		slog.Int("turns", turns),
		slog.Int("events", events),
		slog.Float64("duration_ms", durationMS),
	)
}

// ToolCalled logs a tool invocation made on the model's behalf.
func (l *Logger) ToolCalled(name string, failed bool, resultSize int) {
	l.Debug("tool called",
		slog.String("tool", name),
		slog.Bool("failed", failed),
		slog.Int("result_size", resultSize),
	)
}
