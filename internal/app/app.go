package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"clinic-console/internal/access"
	"clinic-console/internal/authclient"
	"clinic-console/internal/config"
	"clinic-console/internal/database"
	"clinic-console/internal/event"
	"clinic-console/internal/handler"
	"clinic-console/internal/notice"
	"clinic-console/internal/password"
	"clinic-console/internal/router"
	"clinic-console/internal/session"
	"clinic-console/internal/storage"
	"clinic-console/internal/websocket"
)

type App struct {
	server       *http.Server
	controller   *session.Controller
	gate         *access.Gate
	hub          *websocket.Hub
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return Build(context.Background(), cfg)
}

// Build wires the console from an already validated config.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	kv, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session storage: %w", err)
	}

	api, err := authclient.New(cfg.APIBaseURL, cfg.APITimeout)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to initialize auth client: %w", err)
	}

	bus := event.NewBus()
	notifier := notice.NewBusNotifier(bus)

	sessions := session.NewStore()
	controller := session.NewController(sessions, kv, api, bus, notifier)
	gate := access.NewGate(sessions, bus)
	flow := password.NewFlow(controller, sessions, notifier)
	hub := websocket.NewHub(bus)

	appRouter := router.New(cfg, gate, router.Handlers{
		Session:   handler.NewSessionHandler(controller, gate),
		Password:  handler.NewPasswordHandler(flow),
		View:      handler.NewViewHandler(sessions, flow),
		WebSocket: websocket.NewHandler(hub, cfg.CORSOrigins),
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	slog.Info("console configured",
		"api", api.BaseURL(),
		"session_backend", cfg.SessionBackend,
		"namespace", cfg.SessionNamespace,
	)

	return &App{
		server:       server,
		controller:   controller,
		gate:         gate,
		hub:          hub,
		cleanupFuncs: []func(){closeStore},
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	noop := func() {}

	switch cfg.SessionBackend {
	case config.BackendMemory:
		slog.Warn("session storage is in memory; sign-in will not survive a restart")
		return storage.NewMemoryStore(), noop, nil

	case config.BackendFile:
		store, err := storage.NewFileStore(cfg.SessionFile)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil

	case config.BackendSQLite:
		store, err := storage.NewSQLiteStore(cfg.SessionSQLitePath, cfg.SessionNamespace)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store, err := storage.NewRedisStore(ctx, client, cfg.RedisKeyPrefix, cfg.SessionNamespace)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.BackendPostgres:
		slog.Info("connecting to PostgreSQL")
		db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		slog.Info("database ready")
		return storage.NewPostgresStore(db.Pool, cfg.SessionNamespace), db.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
}

// Handler is the console's HTTP surface.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Start launches the background loops and restores the persisted session.
// Routes answer with a loading placeholder until the restore completes.
func (a *App) Start(ctx context.Context) {
	go a.hub.Run(ctx)
	go a.gate.Run(ctx)

	go func() {
		snap := a.controller.Restore(ctx)
		a.gate.Reevaluate()
		slog.Info("session restored", "signed", snap.Signed, "first_access", snap.FirstAccess)
	}()
}

// Close releases the session storage backend.
func (a *App) Close() {
	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}
}

func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()
	a.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	cancel()
	a.Close()

	slog.Info("server stopped")
	return nil
}
