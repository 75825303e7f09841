package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup configures the global logger based on the environment.
// It returns the logger instance, but also sets it as the default global logger.
//
// In production the handler emits JSON and tees to the API log file so the
// nightly backup picks up exactly what was logged. In development it emits
// human-readable text at debug level to stdout only.
func Setup(env string, logPath string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	if env == "production" {
		out := io.Writer(os.Stdout)
		if logPath != "" {
			f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
			if err != nil {
				return nil, err
			}
			out = io.MultiWriter(os.Stdout, f)
		}
		handler = slog.NewJSONHandler(out, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, nil
}
