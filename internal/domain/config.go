package domain

import "time"

// Config holds the complete Lossim configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines which backends are used
	Tier Tier `json:"tier" yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"event_bus"`

	// Simulation defaults and limits
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Baseline model inputs used when a request omits parameters
	Baseline SimConfig `json:"baseline" yaml:"baseline"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout"` // seconds
}

// SimulationConfig bounds and defaults simulation requests.
type SimulationConfig struct {
	DefaultPaths int     `json:"defaultPaths" yaml:"default_paths"`
	TornadoPaths int     `json:"tornadoPaths" yaml:"tornado_paths"`
	MaxPaths     int     `json:"maxPaths" yaml:"max_paths"`
	MaxSamples   int     `json:"maxSamples" yaml:"max_samples"`
	Perturb      float64 `json:"perturb" yaml:"perturb"`

	// Workers bounds concurrent engine runs inside one tornado or sweep.
	// 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`

	// ResultTTL is how long a memoized run report stays cached. 0 disables caching.
	ResultTTL time.Duration `json:"resultTtl" yaml:"result_ttl"`

	// PathQuota caps simulated paths per tenant per QuotaWindow. 0 disables.
	PathQuota   int64         `json:"pathQuota" yaml:"path_quota"`
	QuotaWindow time.Duration `json:"quotaWindow" yaml:"quota_window"`

	// AppetiteThreshold is the weighted policy score that triggers BREACH.
	AppetiteThreshold float64 `json:"appetiteThreshold" yaml:"appetite_threshold"`
}

// SimConfig carries baseline model inputs as they appear in configuration.
type SimConfig struct {
	NTransactions     int64   `json:"n_transactions" yaml:"n_transactions"`
	AvgTicket         float64 `json:"avg_ticket" yaml:"avg_ticket"`
	BaseFraudRate     float64 `json:"base_fraud_rate" yaml:"base_fraud_rate"`
	DetectionRate     float64 `json:"detection_rate" yaml:"detection_rate"`
	FalsePositiveRate float64 `json:"false_positive_rate" yaml:"false_positive_rate"`
	SevMu             float64 `json:"sev_mu" yaml:"sev_mu"`
	SevSigma          float64 `json:"sev_sigma" yaml:"sev_sigma"`
	MonthlyLossBudget float64 `json:"monthly_loss_budget" yaml:"monthly_loss_budget"`
	Seed              int64   `json:"seed" yaml:"seed"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	ServiceName  string `json:"serviceName" yaml:"service_name"`
	ExporterType string `json:"exporterType" yaml:"exporter_type"` // stdout, none
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process LRU
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultSimConfig returns the reference portfolio.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		NTransactions:     1_000_000,
		AvgTicket:         85.0,
		BaseFraudRate:     0.004,
		DetectionRate:     0.72,
		FalsePositiveRate: 0.01,
		SevMu:             4.2,
		SevSigma:          0.9,
		MonthlyLossBudget: 350_000.0,
		Seed:              42,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 120,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./lossim.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 100,
		},
		Simulation: SimulationConfig{
			DefaultPaths:      20_000,
			TornadoPaths:      15_000,
			MaxPaths:          2_000_000,
			MaxSamples:        10_000,
			Perturb:           0.2,
			ResultTTL:         15 * time.Minute,
			QuotaWindow:       time.Minute,
			AppetiteThreshold: 0.7,
		},
		Baseline: DefaultSimConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "lossim",
			ExporterType: "stdout",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "lossim",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Simulation.PathQuota = 50_000_000
	cfg.Tracing.Enabled = true
	return cfg
}
