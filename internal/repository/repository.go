// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/parsepay/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
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

	// Configure connection pool
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

// SaveMessage stores an inbound SMS with tenant isolation.
func (r *SQLRepository) SaveMessage(ctx context.Context, tenantID string, msg *domain.Message) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("%w: message id is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(msg.Metadata)

	query := `
		INSERT INTO messages (id, tenant_id, sender, body, received_at, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		msg.ID, tenantID, msg.Sender, msg.Text,
		msg.ReceivedAt.UTC(), msg.CreatedAt.UTC(), string(metadata),
	)
	return err
}

// GetMessage retrieves a message by ID with tenant isolation.
func (r *SQLRepository) GetMessage(ctx context.Context, tenantID string, msgID string) (*domain.Message, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, sender, body, received_at, created_at, metadata
		FROM messages
		WHERE tenant_id = ? AND id = ?
	`

	msg, err := scanMessage(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, msgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return msg, err
}

// ListMessagesBySender returns messages from sender stored at or after since,
// newest first.
func (r *SQLRepository) ListMessagesBySender(ctx context.Context, tenantID string, sender string, since time.Time) ([]*domain.Message, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, sender, body, received_at, created_at, metadata
		FROM messages
		WHERE tenant_id = ? AND sender = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, sender, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var metadata sql.NullString

	if err := row.Scan(
		&msg.ID, &msg.TenantID, &msg.Sender, &msg.Text,
		&msg.ReceivedAt, &msg.CreatedAt, &metadata,
	); err != nil {
		return nil, err
	}

	if metadata.Valid && metadata.String != "" {
		json.Unmarshal([]byte(metadata.String), &msg.Metadata)
	}
	return &msg, nil
}

// SaveExtraction stores an extraction result with tenant isolation.
func (r *SQLRepository) SaveExtraction(ctx context.Context, tenantID string, ext *domain.Extraction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if ext == nil || ext.ID == "" || ext.Record == nil {
		return fmt.Errorf("%w: extraction id and record are required", ErrInvalidInput)
	}

	record, err := json.Marshal(ext.Record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	gateResults, _ := json.Marshal(ext.GateResults)
	metadata, _ := json.Marshal(ext.Metadata)

	financial := 0
	if ext.Financial {
		financial = 1
	}

	query := `
		INSERT INTO extractions (
			id, tenant_id, message_id, financial, record,
			reference_time, timestamp, gate_results, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		ext.ID, tenantID, ext.MessageID, financial, string(record),
		ext.ReferenceTime.UTC(), ext.Timestamp.UTC(),
		string(gateResults), string(metadata),
	)
	return err
}

// GetExtraction retrieves an extraction by ID with tenant isolation.
func (r *SQLRepository) GetExtraction(ctx context.Context, tenantID string, extID string) (*domain.Extraction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, message_id, financial, record,
			   reference_time, timestamp, gate_results, metadata
		FROM extractions
		WHERE tenant_id = ? AND id = ?
	`

	return r.queryExtraction(ctx, query, tenantID, extID)
}

// GetExtractionByMessage returns the latest extraction of a message.
func (r *SQLRepository) GetExtractionByMessage(ctx context.Context, tenantID string, msgID string) (*domain.Extraction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, message_id, financial, record,
			   reference_time, timestamp, gate_results, metadata
		FROM extractions
		WHERE tenant_id = ? AND message_id = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	return r.queryExtraction(ctx, query, tenantID, msgID)
}

func (r *SQLRepository) queryExtraction(ctx context.Context, query string, args ...any) (*domain.Extraction, error) {
	var ext domain.Extraction
	var record, gateResults, metadata string
	var financial int

	err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(
		&ext.ID, &ext.TenantID, &ext.MessageID, &financial, &record,
		&ext.ReferenceTime, &ext.Timestamp, &gateResults, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	ext.Financial = financial == 1
	ext.Record = &domain.TransactionRecord{}
	if err := json.Unmarshal([]byte(record), ext.Record); err != nil {
		return nil, fmt.Errorf("failed to parse record for %s: %w", ext.ID, err)
	}
	json.Unmarshal([]byte(gateResults), &ext.GateResults)
	json.Unmarshal([]byte(metadata), &ext.Metadata)

	return &ext, nil
}

// SaveGateRule stores a gate rule with tenant isolation. Saving the same
// id and version again updates it in place.
func (r *SQLRepository) SaveGateRule(ctx context.Context, tenantID string, rule *domain.GateRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO gate_rules (
			id, tenant_id, name, description, version, expression, bands, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), rule.Weight, enabled,
		now, now,
	)
	return err
}

// GetGateRule retrieves the newest enabled version of a gate rule.
func (r *SQLRepository) GetGateRule(ctx context.Context, tenantID string, ruleID string) (*domain.GateRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, weight, enabled
		FROM gate_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	rule, err := scanGateRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListGateRules retrieves all enabled gate rules for a tenant, ordered by id.
func (r *SQLRepository) ListGateRules(ctx context.Context, tenantID string) ([]*domain.GateRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, weight, enabled
		FROM gate_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id, version
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Later versions of the same id replace earlier ones.
	var rules []*domain.GateRule
	for rows.Next() {
		rule, err := scanGateRule(rows)
		if err != nil {
			return nil, err
		}
		if n := len(rules); n > 0 && rules[n-1].ID == rule.ID {
			rules[n-1] = rule
			continue
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

func scanGateRule(row rowScanner) (*domain.GateRule, error) {
	var rule domain.GateRule
	var description sql.NullString
	var bands string
	var enabled int

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description,
		&rule.Version, &rule.Expression, &bands, &rule.Weight, &enabled,
	); err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(bands), &rule.Bands); err != nil {
		return nil, fmt.Errorf("failed to parse bands for %s: %w", rule.ID, err)
	}
	return &rule, nil
}

// DeleteGateRule soft-deletes every version of a gate rule.
func (r *SQLRepository) DeleteGateRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE gate_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
