package repository

// Schema definitions for the ParsePay database.
// Compatible with both SQLite and PostgreSQL.

const schemaMessages = `
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    sender TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL,
    received_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_tenant ON messages(tenant_id);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(tenant_id, sender, created_at);
`

const schemaExtractions = `
CREATE TABLE IF NOT EXISTS extractions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    message_id TEXT NOT NULL,
    financial INTEGER NOT NULL,
    record TEXT NOT NULL,
    reference_time TIMESTAMP NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    gate_results TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_extractions_tenant ON extractions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_extractions_message ON extractions(tenant_id, message_id);
CREATE INDEX IF NOT EXISTS idx_extractions_timestamp ON extractions(tenant_id, timestamp);
`

// schemaGateRules keeps every version of a rule; the highest enabled
// version is the live one.
const schemaGateRules = `
CREATE TABLE IF NOT EXISTS gate_rules (
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
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_gate_rules_tenant ON gate_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_gate_rules_enabled ON gate_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaMessages,
		schemaExtractions,
		schemaGateRules,
	}
}
