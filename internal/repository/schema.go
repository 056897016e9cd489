package repository

// Schema statements for the configuration store. They run unchanged on
// SQLite and PostgreSQL.

const schemaScenarios = `
CREATE TABLE IF NOT EXISTS scenarios (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    params TEXT NOT NULL,
    seed BIGINT NOT NULL,
    paths INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_scenarios_name ON scenarios(tenant_id, name);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS appetite_policies (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_appetite_policies_enabled ON appetite_policies(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaScenarios,
		schemaPolicies,
	}
}
