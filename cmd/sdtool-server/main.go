package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmorgan81/sdtool/internal/config"
	"github.com/dmorgan81/sdtool/internal/inject"
	"github.com/dmorgan81/sdtool/internal/log"
	"github.com/dmorgan81/sdtool/internal/server"
	"github.com/joho/godotenv"
	"github.com/samber/do"
)

func main() {
	// Optional; missing files are fine.
	_ = godotenv.Load(".env", ".env.local")

	settings, err := config.FromEnv(os.Getenv)
	if err != nil {
		log.New(os.Stderr, nil).Error("load settings", "error", err)
		os.Exit(1)
	}
	logger := log.New(os.Stderr, settings.LogLevel)
	ctx := log.NewContext(context.Background(), logger)

	injector := inject.Setup(ctx, settings, os.Getenv)
	srv, err := do.Invoke[*server.Server](injector)
	if err != nil {
		logger.Error("wire server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errs:
		if err != nil {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
		return
	case <-stop:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	_ = injector.Shutdown()
	logger.Info("server stopped")
}
