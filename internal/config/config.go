// Package config resolves the service configuration from defaults, an
// optional YAML file and LOSSIM_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/lossim/internal/domain"
)

// Load builds the configuration. The tier is read first (environment, then
// file) to pick the default set the file and environment are layered on.
// An empty path skips the file.
func Load(path string) (*domain.Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		data = b
	}

	tier, err := resolveTier(data)
	if err != nil {
		return nil, err
	}

	cfg := domain.DefaultConfig()
	if tier == domain.TierPro {
		cfg = domain.ProConfig()
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveTier(data []byte) (domain.Tier, error) {
	if t := os.Getenv("LOSSIM_TIER"); t != "" {
		return domain.Tier(strings.ToLower(t)), nil
	}
	if len(data) == 0 {
		return domain.TierCommunity, nil
	}
	var head struct {
		Tier domain.Tier `yaml:"tier"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("parse config tier: %w", err)
	}
	if head.Tier == "" {
		return domain.TierCommunity, nil
	}
	return head.Tier, nil
}

func applyEnv(cfg *domain.Config) error {
	if v := os.Getenv("LOSSIM_TIER"); v != "" {
		cfg.Tier = domain.Tier(strings.ToLower(v))
	}
	if os.Getenv("LOSSIM_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	if v := os.Getenv("LOSSIM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LOSSIM_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOSSIM_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LOSSIM_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("LOSSIM_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("LOSSIM_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("LOSSIM_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("LOSSIM_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("LOSSIM_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("LOSSIM_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("LOSSIM_TRACING"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOSSIM_TRACING: %w", err)
		}
		cfg.Tracing.Enabled = enabled
	}
	return nil
}

// Validate rejects configurations the service cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error

	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		errs = append(errs, fmt.Errorf("unknown tier %q", cfg.Tier))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", cfg.Server.Port))
	}

	sim := cfg.Simulation
	if sim.DefaultPaths <= 0 || sim.TornadoPaths <= 0 {
		errs = append(errs, errors.New("simulation paths must be positive"))
	}
	if sim.MaxPaths < sim.DefaultPaths || sim.MaxPaths < sim.TornadoPaths {
		errs = append(errs, errors.New("simulation max_paths is below the defaults"))
	}
	if sim.MaxSamples <= 0 {
		errs = append(errs, errors.New("simulation max_samples must be positive"))
	}
	if !(sim.Perturb > 0 && sim.Perturb < 1) {
		errs = append(errs, fmt.Errorf("simulation perturb %g must be in (0,1)", sim.Perturb))
	}

	return errors.Join(errs...)
}
