package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger that remembers which component it logs for.
// The component is attached once as an attribute, so every level method
// of the embedded slog.Logger carries it.
type Logger struct {
	*slog.Logger
	// untagged is Logger without the component attribute, so a new
	// component replaces the old one instead of repeating the key.
	untagged  *slog.Logger
	component string
}

// Config holds logger configuration
type Config struct {
	Level     slog.Level
	Component string
	// Handler overrides the default text handler on stdout.
	Handler slog.Handler
}

// DefaultConfig logs text at info level to stdout.
func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Component: ComponentApp,
	}
}

// ParseLevel maps LOG_LEVEL values onto slog levels; unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.Level})
	}
	return tag(slog.New(handler), config.Component)
}

func tag(untagged *slog.Logger, component string) *Logger {
	l := &Logger{Logger: untagged, untagged: untagged, component: component}
	if component != "" {
		l.Logger = untagged.With(FieldComponent, component)
	}
	return l
}

// Discard returns a logger that drops every record. Used by tests.
func Discard() *Logger {
	return New(Config{Component: "test", Handler: slog.NewTextHandler(io.Discard, nil)})
}

// With returns a logger carrying the extra attributes.
func (l *Logger) With(args ...any) *Logger {
	if l.untagged == nil {
		return &Logger{Logger: l.Logger.With(args...), component: l.component}
	}
	return tag(l.untagged.With(args...), l.component)
}

// WithComponent re-tags the logger, keeping attributes added with With.
func (l *Logger) WithComponent(component string) *Logger {
	if l.untagged == nil {
		return &Logger{Logger: l.Logger.With(FieldComponent, component), component: component}
	}
	return tag(l.untagged, component)
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}

// SetDefault makes logger the process-wide slog default.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}
