package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"roomcast/infrastructure/rest"
	"roomcast/infrastructure/ws"
	"roomcast/internal"
	"roomcast/repositories"
	"roomcast/runtime"
	"roomcast/runtime/workers"
	"roomcast/services"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (database close, worker
// drain) executes before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	options := badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(options)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug store inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		internal.StartDebugServer(db, config.DebugPort, endpoint, internal.DefaultMapper, nil)
	}

	// 3. Core: registry, broadcaster, history pipeline
	pageSize := config.HistoryPageSize
	repository := repositories.NewMessageRepository(db, logger, &pageSize)

	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(registry, logger)
	history := workers.NewHistoryWorker(repository, config.HistoryBuffer, logger)

	supervisor := workers.NewSupervisor(logger)
	supervisor.Add(history)
	supervisorDone := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(supervisorDone)
	}()

	svc := services.NewRoomService(registry, broadcaster, history, repository, logger)

	// 4. HTTP surface: websocket push + REST roster/history
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	ws.NewHandler(svc, logger).Register(router)
	rest.NewHandler(svc, logger).Register(router)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()
	logger.Info("roomcast listening", "addr", server.Addr)

	var runErr error
	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	// 5. Graceful shutdown: stop accepting, drain workers, close the store.
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	<-supervisorDone

	if runErr != nil {
		return exitRuntime, runErr
	}
	return exitOK, nil
}
