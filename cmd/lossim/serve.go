package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/lossim/internal/analysis"
	"github.com/opensource-finance/lossim/internal/api"
	"github.com/opensource-finance/lossim/internal/appetite"
	"github.com/opensource-finance/lossim/internal/bus"
	"github.com/opensource-finance/lossim/internal/cache"
	"github.com/opensource-finance/lossim/internal/domain"
	"github.com/opensource-finance/lossim/internal/quota"
	"github.com/opensource-finance/lossim/internal/repository"
	"github.com/opensource-finance/lossim/internal/telemetry"
	"github.com/opensource-finance/lossim/internal/worker"
)

var serveTenants []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the sweep worker",
	Long: `Starts the HTTP API. The community tier runs on SQLite, an in-memory
cache and Go channels; the pro tier on PostgreSQL, Redis and NATS.

Sweep workers subscribe to a tenant on its first async sweep. --tenants
subscribes tenants up front, which lets other replicas publish to them.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringSliceVar(&serveTenants, "tenants", splitList(os.Getenv("LOSSIM_TENANTS")), "tenants whose sweep requests are consumed from startup")
}

func runServe(cmd *cobra.Command, _ []string) error {
	slog.Info("starting lossim",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(cfg.Tracing, os.Stderr)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	engine, err := appetite.NewEngine(0)
	if err != nil {
		return fmt.Errorf("initialize appetite engine: %w", err)
	}
	defer engine.Close()
	if err := loadPolicies(ctx, repo, engine); err != nil {
		return err
	}
	slog.Info("appetite engine initialized", "policies_count", engine.PoliciesCount())

	metrics := telemetry.NewMetrics()
	svc := analysis.NewService(analysis.Deps{
		Config:    cfg,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Appetite:  engine,
		Processor: appetite.NewProcessor(cfg.Simulation.AppetiteThreshold),
		Quota:     quota.NewLimiter(cacheImpl, cfg.Simulation.PathQuota, cfg.Simulation.QuotaWindow),
		Metrics:   metrics,
	})

	sweeps := worker.New(busImpl, svc, cacheImpl, cfg.Simulation.ResultTTL)
	if err := sweeps.Start(serveTenants); err != nil {
		return fmt.Errorf("start sweep worker: %w", err)
	}
	defer sweeps.Stop()

	srv := api.NewServer(cfg.Server, api.Deps{
		Service:  svc,
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Appetite: engine,
		Sweeps:   sweeps,
		Metrics:  metrics,
		Version:  Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("lossim is ready", "host", cfg.Server.Host, "port", cfg.Server.Port)
	printBanner(cmd, cfg)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("lossim shutdown complete")
	return nil
}

// loadPolicies loads the stored appetite policies, seeding the built-in
// set into an empty repository first.
func loadPolicies(ctx context.Context, repo domain.Repository, engine *appetite.Engine) error {
	stored, err := repo.ListPolicies(ctx, api.GlobalTenantID)
	if err != nil {
		return fmt.Errorf("list appetite policies: %w", err)
	}

	if len(stored) == 0 {
		stored = appetite.DefaultPolicies()
		for _, p := range stored {
			if err := repo.SavePolicy(ctx, api.GlobalTenantID, p); err != nil {
				return fmt.Errorf("seed policy %s: %w", p.ID, err)
			}
		}
		slog.Info("seeded built-in appetite policies", "count", len(stored))
	}

	return engine.LoadPolicies(stored)
}

func printBanner(cmd *cobra.Command, cfg *domain.Config) {
	w := cmd.ErrOrStderr()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  LOSSIM  fraud-loss simulation")
	fmt.Fprintf(w, "  version   %s\n", Version)
	fmt.Fprintf(w, "  tier      %s\n", cfg.Tier)
	fmt.Fprintf(w, "  listen    http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(w, "  storage   %s / %s / %s\n", cfg.Repository.Driver, cfg.Cache.Type, cfg.EventBus.Type)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  POST /simulate  /tornado  /stress  /sweep  /sweep/async")
	fmt.Fprintln(w, "  GET  /health  /ready  /metrics  /presets")
	fmt.Fprintln(w)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
