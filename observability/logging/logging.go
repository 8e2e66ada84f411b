package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup installs a JSON logger on stdout as the process default and bridges the
// standard library logger onto it. Every line carries the service name and,
// when provided, the environment.
func Setup(service, env string) *slog.Logger {
	base := New(os.Stdout, service, env)
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(base.Handler(), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// New builds the JSON logger without touching process globals.
func New(w io.Writer, service, env string) *slog.Logger {
	env = strings.TrimSpace(env)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: levelFor(env),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	args := []any{slog.String("service", strings.TrimSpace(service))}
	if env != "" {
		args = append(args, slog.String("env", env))
	}
	return slog.New(handler).With(args...)
}

func levelFor(env string) slog.Level {
	switch strings.ToLower(env) {
	case "dev", "local", "test":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
