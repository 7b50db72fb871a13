package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"clinic-console/internal/authstub"
	"clinic-console/internal/logger"
	"clinic-console/internal/middleware"
)

// authstub serves a local stand-in for the clinic auth API. Demo patients
// come from AUTHSTUB_PATIENTS as "email:password" pairs and start with
// first access pending.
func main() {
	_ = godotenv.Load()

	slog.SetDefault(slog.New(logger.NewPrettyHandler(os.Stdout, &slog.HandlerOptions{
		Level: logger.ParseLevel(os.Getenv("LOG_LEVEL")),
	})))

	secret := strings.TrimSpace(os.Getenv("AUTHSTUB_SECRET"))
	if secret == "" {
		secret = "dev-only-secret"
		slog.Warn("AUTHSTUB_SECRET not set, using a development secret")
	}

	stub, err := authstub.New(authstub.Config{Secret: secret})
	if err != nil {
		slog.Error("failed to initialize auth stub", "error", err)
		os.Exit(1)
	}

	for _, pair := range strings.Split(os.Getenv("AUTHSTUB_PATIENTS"), ",") {
		email, password, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		if err := stub.AddPatient(email, email, password, true); err != nil {
			slog.Warn("skipping demo patient", "email", email, "error", err)
		}
	}

	addr := ":" + strings.TrimPrefix(envOr("AUTHSTUB_PORT", "3000"), ":")
	server := &http.Server{
		Addr:              addr,
		Handler:           middleware.Recovery(middleware.Logging(stub.Handler())),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("auth stub listening", "addr", addr, "admin", authstub.DefaultAdminEmail)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("auth stub failed", "error", err)
		os.Exit(1)
	}
}

func envOr(key string, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
