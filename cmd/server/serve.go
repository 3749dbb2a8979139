package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/classgrade/internal/api"
	"github.com/ashureev/classgrade/internal/healthsrv"
	"github.com/ashureev/classgrade/internal/planner"
	"github.com/ashureev/classgrade/web"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), g)
		},
	}
}

func serve(parent context.Context, g *globals) error {
	cfg, logger := g.cfg, g.logger
	logger.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := wire(ctx, cfg, logger, true)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("Failed to close resources", "error", closeErr)
		}
	}()

	limiter := api.NewRateLimiter(cfg.FreshRateLimit, cfg.FreshRateWindow)
	defer limiter.Close()

	var originPatterns []string
	if cfg.FrontendURL != "" {
		originPatterns = []string{cfg.FrontendURL}
	}
	if cfg.IsDevelopment() {
		originPatterns = append(originPatterns, "localhost:*", "127.0.0.1:*")
	}

	router := api.NewRouter(api.Deps{
		Repo:           a.repo,
		Assessor:       a.orch,
		Planner:        planner.New(a.orch),
		Limiter:        limiter,
		CacheProbe:     a.cacheProbe,
		CORSOrigins:    cfg.CORSOrigins,
		OriginPatterns: originPatterns,
		IsDevelopment:  cfg.IsDevelopment(),
		RequestLogging: true,
		Console:        web.Console(api.ConsolePath),
	})

	// Research calls and websocket streams can run for the whole research
	// timeout, so there is no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	health := healthsrv.New(a.repo, healthsrv.DefaultConfig(), logger)
	go health.Run(ctx)

	errCh := make(chan error, 2)
	go func() {
		if err := health.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if len(cfg.WarmCourses) > 0 {
		a.orch.StartWarmWorker(ctx, cfg.WarmCourses, cfg.WarmInterval)
		logger.Info("Warm worker started", "courses", len(cfg.WarmCourses), "interval", cfg.WarmInterval)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("Server failed", "error", runErr)
	}
	stop()

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		runErr = errors.Join(runErr, err)
	}
	health.Stop(shutdownCtx)

	logger.Info("Server stopped successfully")
	return runErr
}
