package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"clinic-console/internal/app"
	"clinic-console/internal/logger"
)

func main() {
	// LOG_LEVEL may come from .env, so load it before the logger exists.
	_ = godotenv.Load()

	logHandler := logger.NewPrettyHandler(os.Stdout, &slog.HandlerOptions{
		Level: logger.ParseLevel(os.Getenv("LOG_LEVEL")),
	})
	slog.SetDefault(slog.New(logHandler))

	application, err := app.New()
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
