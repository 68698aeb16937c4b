package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetRecord retrieves a cached extraction keyed by message fingerprint.
	GetRecord(ctx context.Context, tenantID string, fingerprint string) (*CachedRecord, error)

	// SetRecord caches an extraction keyed by message fingerprint.
	SetRecord(ctx context.Context, tenantID string, fingerprint string, rec *CachedRecord, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for sender velocity (messages per sender in a time window).
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CachedRecord is the cached outcome for one message fingerprint.
type CachedRecord struct {
	Financial   bool               `json:"fin"`
	GateScore   float64            `json:"score"`
	GateResults []GateResult       `json:"gate,omitempty"`
	Record      *TransactionRecord `json:"rec"`
	TaggerUsed  bool               `json:"tagger"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `json:"localMaxSize"`
	LocalTTL     time.Duration `json:"localTtl"`

	// RecordTTL is how long extraction results stay cached.
	RecordTTL time.Duration `json:"recordTtl"`

	// Redis settings (Pro tier)
	RedisAddr     string `json:"redisAddr,omitempty"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redisDb,omitempty"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase"` // If true, check local first, then Redis
}
