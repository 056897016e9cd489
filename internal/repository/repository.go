// Package repository persists saved scenarios and appetite policies on
// SQLite (community) or PostgreSQL (pro).
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/lossim/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository on database/sql.
type SQLRepository struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// New opens the configured database and applies the schema.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	return nil
}

// SaveScenario inserts or replaces a scenario. CreatedAt is kept from the
// first save.
func (r *SQLRepository) SaveScenario(ctx context.Context, tenantID string, s *domain.Scenario) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: scenario id is required", ErrInvalidInput)
	}

	params, err := json.Marshal(s.Params)
	if err != nil {
		return fmt.Errorf("encode scenario params: %w", err)
	}

	now := r.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	s.TenantID = tenantID

	query := `
		INSERT INTO scenarios (
			id, tenant_id, name, description, params, seed, paths, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			params = excluded.params,
			seed = excluded.seed,
			paths = excluded.paths,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		s.ID, tenantID, s.Name, s.Description, string(params),
		s.Seed, s.Paths, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

const scenarioColumns = `id, tenant_id, name, description, params, seed, paths, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScenario(row rowScanner) (*domain.Scenario, error) {
	var s domain.Scenario
	var description sql.NullString
	var params string

	if err := row.Scan(
		&s.ID, &s.TenantID, &s.Name, &description, &params,
		&s.Seed, &s.Paths, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	s.Description = description.String
	if err := json.Unmarshal([]byte(params), &s.Params); err != nil {
		return nil, fmt.Errorf("decode params of scenario %s: %w", s.ID, err)
	}
	return &s, nil
}

// GetScenario retrieves a scenario by ID.
func (r *SQLRepository) GetScenario(ctx context.Context, tenantID string, scenarioID string) (*domain.Scenario, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + scenarioColumns + ` FROM scenarios WHERE tenant_id = ? AND id = ?`

	s, err := scanScenario(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, scenarioID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListScenarios returns a tenant's scenarios ordered by name.
func (r *SQLRepository) ListScenarios(ctx context.Context, tenantID string) ([]*domain.Scenario, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + scenarioColumns + ` FROM scenarios WHERE tenant_id = ? ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenarios []*domain.Scenario
	for rows.Next() {
		s, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, rows.Err()
}

// DeleteScenario removes a scenario, returning ErrNotFound if it is absent.
func (r *SQLRepository) DeleteScenario(ctx context.Context, tenantID string, scenarioID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM scenarios WHERE tenant_id = ? AND id = ?`), tenantID, scenarioID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SavePolicy inserts or replaces an appetite policy.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, p *domain.AppetitePolicy) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if p == nil || p.ID == "" || p.Expression == "" {
		return fmt.Errorf("%w: policy id and expression are required", ErrInvalidInput)
	}

	bands, err := json.Marshal(p.Bands)
	if err != nil {
		return fmt.Errorf("encode policy bands: %w", err)
	}

	enabled := 0
	if p.Enabled {
		enabled = 1
	}
	version := p.Version
	if version == "" {
		version = "1.0.0"
	}
	now := r.now()

	query := `
		INSERT INTO appetite_policies (
			id, tenant_id, name, description, version, expression, bands, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			bands = excluded.bands,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.Name, p.Description, version,
		p.Expression, string(bands), p.Weight, enabled, now, now,
	)
	if err == nil {
		p.TenantID = tenantID
		p.Version = version
	}
	return err
}

const policyColumns = `id, tenant_id, name, description, version, expression, bands, weight, enabled`

func scanPolicy(row rowScanner) (*domain.AppetitePolicy, error) {
	var p domain.AppetitePolicy
	var description sql.NullString
	var bands string
	var enabled int

	if err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &description, &p.Version,
		&p.Expression, &bands, &p.Weight, &enabled,
	); err != nil {
		return nil, err
	}

	p.Description = description.String
	p.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(bands), &p.Bands); err != nil {
		return nil, fmt.Errorf("decode bands of policy %s: %w", p.ID, err)
	}
	return &p, nil
}

// GetPolicy retrieves a policy by ID, enabled or not.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string, policyID string) (*domain.AppetitePolicy, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + policyColumns + ` FROM appetite_policies WHERE tenant_id = ? AND id = ?`

	p, err := scanPolicy(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, policyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListPolicies returns every policy of a tenant ordered by ID.
func (r *SQLRepository) ListPolicies(ctx context.Context, tenantID string) ([]*domain.AppetitePolicy, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + policyColumns + ` FROM appetite_policies WHERE tenant_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.AppetitePolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
