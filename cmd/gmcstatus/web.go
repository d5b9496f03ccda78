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
	"time"

	"gmcstatus/internal/config"
	"gmcstatus/internal/dashboard"
	"gmcstatus/internal/static"
	"gmcstatus/internal/templates"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newMux(cfg *config.Config, a *app) (*http.ServeMux, error) {
	loc, err := cfg.Refresh.Location()
	if err != nil {
		return nil, err
	}
	static.Init()
	if err := templates.Init(static.StylesheetPath, loc); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	mux := http.NewServeMux()
	dashboard.NewHandler(cfg, a.svc, a.backend, a.dir).Register(mux)
	static.Register(mux)

	ro := &readyOnce{}
	ro.Add(readyFunc(a.backend.Health))
	if r, ok := a.store.(Readyable); ok {
		ro.Add(r)
	}
	mux.Handle("GET /ready", ro)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux, nil
}

func runServer(ctx context.Context, cfg *config.Config, addr string) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	mux, err := newMux(cfg, a)
	if err != nil {
		return err
	}

	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go a.svc.Run(schedCtx)

	server := &http.Server{
		Addr:              addr,
		Handler:           WithMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("serving merchant status dashboard", "address", addr, "mocks", cfg.Mocks.Enable)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-shutdown:
		slog.Info("shutdown signal received", "signal", sig)
		stopScheduler()
		return gracefulShutdown(server, a.svc.Wait)
	}
}

func gracefulShutdown(svr *http.Server, fetchesWait func()) error {
	// kubernetes allows 30 seconds
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := svr.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
		if closeErr := svr.Close(); closeErr != nil {
			slog.Error("server close error", "error", closeErr)
		}
		return err
	}

	done := make(chan struct{})
	go func() {
		fetchesWait()
		close(done)
	}()

	slog.Info("waiting for background fetches to complete")
	select {
	case <-done:
		slog.Info("all background fetches completed")
	case <-ctx.Done():
		slog.Warn("timeout waiting for background fetches")
		return ctx.Err()
	}
	return nil
}
