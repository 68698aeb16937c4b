// Package domain defines the core interfaces and types for ParsePay.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Message operations
	SaveMessage(ctx context.Context, tenantID string, msg *Message) error
	GetMessage(ctx context.Context, tenantID string, msgID string) (*Message, error)
	ListMessagesBySender(ctx context.Context, tenantID string, sender string, since time.Time) ([]*Message, error)

	// Extraction results
	SaveExtraction(ctx context.Context, tenantID string, ext *Extraction) error
	GetExtraction(ctx context.Context, tenantID string, extID string) (*Extraction, error)
	GetExtractionByMessage(ctx context.Context, tenantID string, msgID string) (*Extraction, error)

	// Gate rule operations
	SaveGateRule(ctx context.Context, tenantID string, rule *GateRule) error
	GetGateRule(ctx context.Context, tenantID string, ruleID string) (*GateRule, error)
	ListGateRules(ctx context.Context, tenantID string) ([]*GateRule, error)
	DeleteGateRule(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath,omitempty"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost,omitempty"`
	PostgresPort     int    `json:"postgresPort,omitempty"`
	PostgresUser     string `json:"postgresUser,omitempty"`
	PostgresPassword string `json:"-"`
	PostgresDB       string `json:"postgresDb,omitempty"`
	PostgresSSLMode  string `json:"postgresSslMode,omitempty"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns,omitempty"`
	MaxIdleConns    int           `json:"maxIdleConns,omitempty"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime,omitempty"`
}
