package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/topleads/internal/batch"
	"github.com/user/topleads/internal/config"
	"github.com/user/topleads/internal/observability"
	"github.com/user/topleads/internal/rowstore"
	"github.com/user/topleads/internal/server"
	"github.com/user/topleads/internal/tenant"
)

var (
	bindAddr        string
	shutdownTimeout time.Duration
	otelEnabled     bool
	otelEndpoint    string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP server",
	RunE:  runServer,
}

func init() {
	serverCmd.Flags().StringVar(&bindAddr, "bind", ":8080", "HTTP server bind address")
	serverCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful HTTP shutdown timeout before force-close")
	serverCmd.Flags().BoolVar(&otelEnabled, "otel-enabled", false, "Enable OpenTelemetry tracing")
	serverCmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP HTTP endpoint (host:port) for traces; if empty uses stdout exporter")

	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting topleads server",
		"bind", bindAddr,
		"enabled", cfg.Enabled,
		"tenants", len(cfg.TenantBases),
		"default_tenant", cfg.DefaultTenant,
		"allow_default_tenant", cfg.AllowDefaultTenant,
		"max_select_all", cfg.MaxSelectAll,
		"store_base_url", cfg.StoreBaseURL,
		"otel_enabled", otelEnabled,
	)

	otelShutdown, err := observability.InitTracer(otelEnabled, "topleads-server", otelEndpoint)
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("otel shutdown error", "error", err)
		}
	}()

	client := rowstore.NewClient(cfg.StoreBaseURL, cfg.StoreAPIKey)
	resolver := tenant.NewResolver(client, cfg.TenantBases, cfg.DefaultTenant, cfg.AllowDefaultTenant)
	machine := batch.NewMachine(cfg.MaxSelectAll, slog.Default())

	srv := server.New(cfg, resolver, machine, bindAddr)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("topleads server ready", "bind", bindAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("received shutdown signal", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}

	slog.Info("topleads server stopped")
	return nil
}
