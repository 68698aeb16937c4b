package domain

import (
	"fmt"
	"time"
)

// Config holds the complete ParsePay configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Extraction settings
	Extraction ExtractionConfig `json:"extraction"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ExtractionConfig controls the gate and the tagger.
type ExtractionConfig struct {
	// GateThreshold is the minimum weighted gate score for a financial verdict.
	GateThreshold float64 `json:"gateThreshold"`

	// GateWorkers bounds concurrent gate rule evaluation.
	GateWorkers int `json:"gateWorkers"`

	// TaggerURL is the external NER service; empty disables the tagger.
	TaggerURL     string        `json:"taggerUrl,omitempty"`
	TaggerTimeout time.Duration `json:"taggerTimeout"`

	// VelocityWindow is the sender_count window for gate rules.
	VelocityWindow time.Duration `json:"velocityWindow"`

	// Timezone is the IANA zone relative dates resolve in when a message
	// carries no receive time.
	Timezone string `json:"timezone"`
}

// DefaultTimezone is the extraction timezone when none is configured.
const DefaultTimezone = "Asia/Kolkata"

// indiaStandardTime stands in for Asia/Kolkata when no zone database is installed.
var indiaStandardTime = time.FixedZone("IST", 5*60*60+30*60)

// LoadLocation resolves an extraction timezone. Empty selects DefaultTimezone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == DefaultTimezone {
			return indiaStandardTime, nil
		}
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// DefaultLocation returns the location of DefaultTimezone.
func DefaultLocation() *time.Location {
	loc, _ := LoadLocation(DefaultTimezone)
	return loc
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Extraction: ExtractionConfig{
			GateThreshold:  0.5,
			GateWorkers:    8,
			TaggerTimeout:  2 * time.Second,
			VelocityWindow: time.Hour,
			Timezone:       DefaultTimezone,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./parsepay.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			RecordTTL:    time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "parsepay",
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
		PostgresDB:   "parsepay",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		RecordTTL:      24 * time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
