package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/backend"
	"github.com/s21platform/ticketchat-service/internal/config"
	"github.com/s21platform/ticketchat-service/internal/infra"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.MustLoadBackend()
	logger := logger_lib.New(cfg.Logger.Host, cfg.Logger.Port, cfg.Service.Name, cfg.Platform.Env)

	runner := backend.ExecRunner{}
	workspaces := backend.NewWorkspaces(cfg.Workspace.Root, runner)
	sessions := backend.NewSessions(cfg.Workspace.CLIPath, runner)
	agent := backend.NewAgent(cfg, workspaces, sessions, runner)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return infra.LoggerHTTP(next, logger)
	})
	backend.NewServer(workspaces, agent).Register(router)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Workspace.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("server error: %v", err))
	}
}
