package domain

import (
	"context"
	"time"
)

// Repository defines the interface for configuration persistence.
// It stores saved scenarios and appetite policies; simulation output is
// never written here.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Scenario operations
	SaveScenario(ctx context.Context, tenantID string, scenario *Scenario) error
	GetScenario(ctx context.Context, tenantID string, scenarioID string) (*Scenario, error)
	ListScenarios(ctx context.Context, tenantID string) ([]*Scenario, error)
	DeleteScenario(ctx context.Context, tenantID string, scenarioID string) error

	// Appetite policy operations
	SavePolicy(ctx context.Context, tenantID string, policy *AppetitePolicy) error
	GetPolicy(ctx context.Context, tenantID string, policyID string) (*AppetitePolicy, error)
	ListPolicies(ctx context.Context, tenantID string) ([]*AppetitePolicy, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgres_port"`
	PostgresUser     string `json:"postgresUser" yaml:"postgres_user"`
	PostgresPassword string `json:"-" yaml:"postgres_password"`
	PostgresDB       string `json:"postgresDb" yaml:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"conn_max_lifetime"`
}
