package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/lossim/internal/analysis"
	"github.com/opensource-finance/lossim/internal/api"
	"github.com/opensource-finance/lossim/internal/domain"
	"github.com/opensource-finance/lossim/internal/montecarlo"
)

var (
	benchURL      string
	benchTenant   string
	benchRequests int
	benchWorkers  int
	benchPaths    int
	benchVarySeed bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Load-test a running server with /simulate requests",
	Long: `Sends --requests POST /simulate calls from --workers concurrent clients
and reports throughput, latency percentiles, errors and cache hits.

With --vary-seed every request uses its own seed, so nothing is served from
the result cache.`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().StringVar(&benchURL, "url", "http://localhost:8080", "lossim base URL")
	benchCmd.Flags().StringVar(&benchTenant, "tenant", "benchmark-test", "tenant ID for requests")
	benchCmd.Flags().IntVar(&benchRequests, "requests", 200, "total requests")
	benchCmd.Flags().IntVar(&benchWorkers, "workers", 10, "concurrent clients")
	benchCmd.Flags().IntVar(&benchPaths, "paths", 10_000, "paths per request")
	benchCmd.Flags().BoolVar(&benchVarySeed, "vary-seed", false, "use a distinct seed per request")
}

// benchStats tracks results across workers.
type benchStats struct {
	ok     atomic.Int64
	errors atomic.Int64
	cached atomic.Int64

	mu        sync.Mutex
	latencies []float64
}

func (s *benchStats) observe(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, float64(d.Microseconds())/1000)
	s.mu.Unlock()
}

func runBench(cmd *cobra.Command, _ []string) error {
	if benchRequests <= 0 || benchWorkers <= 0 {
		return fmt.Errorf("--requests and --workers must be positive")
	}
	out := cmd.OutOrStdout()
	client := &http.Client{Timeout: 60 * time.Second}

	if err := checkHealth(cmd.Context(), client, benchURL); err != nil {
		return fmt.Errorf("lossim not reachable at %s: %w", benchURL, err)
	}
	fmt.Fprintf(out, "target    %s (tenant %s)\n", benchURL, benchTenant)
	fmt.Fprintf(out, "load      %d requests, %d workers, %d paths each\n\n", benchRequests, benchWorkers, benchPaths)

	stats := &benchStats{latencies: make([]float64, 0, benchRequests)}
	var next atomic.Int64

	start := time.Now()
	g, ctx := errgroup.WithContext(cmd.Context())
	for range benchWorkers {
		g.Go(func() error {
			for {
				i := next.Add(1) - 1
				if i >= int64(benchRequests) {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}

				req := analysis.SimulateRequest{Paths: benchPaths}
				if benchVarySeed {
					seed := i + 1
					req.Seed = &seed
				}

				t0 := time.Now()
				report, err := postSimulate(ctx, client, req)
				stats.observe(time.Since(t0))
				if err != nil {
					stats.errors.Add(1)
					continue
				}
				stats.ok.Add(1)
				if report.Cached {
					stats.cached.Add(1)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Fprintf(out, "completed %d ok, %d errors, %d cached\n", stats.ok.Load(), stats.errors.Load(), stats.cached.Load())
	fmt.Fprintf(out, "duration  %s (%.1f req/s)\n", elapsed.Round(time.Millisecond), float64(benchRequests)/elapsed.Seconds())
	fmt.Fprintf(out, "latency   p50 %.1fms  p95 %.1fms  p99 %.1fms\n",
		montecarlo.Quantile(stats.latencies, 0.50),
		montecarlo.Quantile(stats.latencies, 0.95),
		montecarlo.Quantile(stats.latencies, 0.99),
	)
	return nil
}

func checkHealth(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func postSimulate(ctx context.Context, client *http.Client, sim analysis.SimulateRequest) (*domain.RunReport, error) {
	body, err := json.Marshal(sim)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, benchURL+"/simulate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.TenantIDHeader, benchTenant)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var report domain.RunReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}
