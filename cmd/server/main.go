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

	"mybank/internal/api"
	"mybank/pkg/factory"
	"mybank/pkg/tracing"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appFactory, err := factory.NewFactory(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer appFactory.Close()

	log := appFactory.GetLogger()
	cfg := appFactory.GetConfig()

	log.Info("Starting mybank", map[string]interface{}{
		"env":     cfg.AppEnv,
		"driver":  cfg.Database.Driver,
		"version": version,
	})

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.AppEnv,
		Endpoint:    cfg.Tracing.Endpoint,
	})
	if err != nil {
		log.Fatal("Tracing could not be initialised", map[string]interface{}{"error": err.Error()})
	}

	if err := appFactory.GetUserService().EnsureAdmin(ctx, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminPassword); err != nil {
		log.Fatal("Bootstrap admin could not be created", map[string]interface{}{"error": err.Error()})
	}

	handler := api.NewRouter(api.Services{
		Identity: appFactory.GetIdentityService(),
		Users:    appFactory.GetUserService(),
		Ledger:   appFactory.GetLedgerService(),
		Search:   appFactory.GetSearchService(),
		Workflow: appFactory.GetWorkflowService(),
		Audit:    appFactory.GetAuditLogService(),
	}, api.RouterOptions{
		Health:         api.NewHealthHandler(appFactory.GetStore(), appFactory.GetCache(), log, version),
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		RequestTimeout: cfg.Server.WriteTimeout,
	}, log)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"port": cfg.Server.Port})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Error("HTTP server failed", map[string]interface{}{"error": err.Error()})
	case <-ctx.Done():
		log.Info("Shutting down", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("Tracer shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Server stopped", nil)
}
