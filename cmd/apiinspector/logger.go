package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Subhashis360/API-Inspector/internal/config"
)

func setupLogger(cfg *config.Config, console io.Writer) error {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	h := slog.NewTextHandler(io.MultiWriter(console, logWriter), &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})
	slog.SetDefault(slog.New(h))
	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
