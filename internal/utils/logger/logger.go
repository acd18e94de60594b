// Package logger настраивает slog под окружение запуска
package logger

import (
	"os"
	"strings"

	"golang.org/x/exp/slog"

	"possync/internal/app/server/config"
)

// New создает логгер для окружения: local цветной, dev JSON debug, prod JSON info
func New(env string) *slog.Logger {
	switch env {
	case config.EnvLocal:
		return setupPrettySlog()
	case config.EnvDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}

// NewWithLevel как New, но уровень из LOG_LEVEL имеет приоритет, если он задан
func NewWithLevel(env, level string) *slog.Logger {
	lvl, ok := ParseLevel(level)
	if !ok {
		return New(env)
	}

	if env == config.EnvLocal {
		return slog.New(PrettyHandlerOptions{
			SlogOpts: &slog.HandlerOptions{Level: lvl},
		}.NewPrettyHandler(os.Stdout))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// ParseLevel разбирает debug, info, warn, error
func ParseLevel(s string) (slog.Level, bool) {
	if strings.TrimSpace(s) == "" {
		return 0, false
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, false
	}
	return lvl, true
}

func setupPrettySlog() *slog.Logger {
	opts := PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	return slog.New(opts.NewPrettyHandler(os.Stdout))
}
