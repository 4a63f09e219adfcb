package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds runtime settings for the logsync client.
type Config struct {
	Store        StoreConfig        `yaml:"store" json:"store"`
	Backend      BackendConfig      `yaml:"backend" json:"backend"`
	Sync         SyncConfig         `yaml:"sync" json:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity" json:"connectivity"`
	Integrity    IntegrityConfig    `yaml:"integrity" json:"integrity"`
	API          APIConfig          `yaml:"api" json:"api"`
	Log          LogConfig          `yaml:"log" json:"log"`
}

// StoreConfig locates the local SQLite database.
type StoreConfig struct {
	Path string `yaml:"path" json:"path" env:"LOGSYNC_STORE_PATH"`
}

// BackendConfig holds the PostgreSQL connection and the session identity.
type BackendConfig struct {
	DSN          string `yaml:"dsn" json:"dsn" env:"LOGSYNC_BACKEND_DSN"`
	AccessToken  string `yaml:"access_token" json:"access_token" env:"LOGSYNC_BACKEND_ACCESS_TOKEN"`
	TokenSecret  string `yaml:"token_secret" json:"token_secret" env:"LOGSYNC_BACKEND_TOKEN_SECRET"`
	OwnerID      string `yaml:"owner_id" json:"owner_id" env:"LOGSYNC_BACKEND_OWNER_ID"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns" env:"LOGSYNC_BACKEND_MAX_OPEN_CONNS"`
}

type SyncConfig struct {
	RetryCeiling   int           `yaml:"retry_ceiling" json:"retry_ceiling" env:"LOGSYNC_SYNC_RETRY_CEILING"`
	BaseDelay      time.Duration `yaml:"base_delay" json:"base_delay" env:"LOGSYNC_SYNC_BASE_DELAY"`
	ItemDelay      time.Duration `yaml:"item_delay" json:"item_delay" env:"LOGSYNC_SYNC_ITEM_DELAY"`
	TickInterval   time.Duration `yaml:"tick_interval" json:"tick_interval" env:"LOGSYNC_SYNC_TICK_INTERVAL"`
	RedrainDelay   time.Duration `yaml:"redrain_delay" json:"redrain_delay" env:"LOGSYNC_SYNC_REDRAIN_DELAY"`
	CandidateLimit int           `yaml:"candidate_limit" json:"candidate_limit" env:"LOGSYNC_SYNC_CANDIDATE_LIMIT"`
	ResolveCache   int           `yaml:"resolve_cache" json:"resolve_cache" env:"LOGSYNC_SYNC_RESOLVE_CACHE"`
}

type ConnectivityConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval" json:"probe_interval" env:"LOGSYNC_CONNECTIVITY_PROBE_INTERVAL"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" json:"probe_timeout" env:"LOGSYNC_CONNECTIVITY_PROBE_TIMEOUT"`
	// WatchInterfaces turns network interface changes into connectivity
	// events.
	WatchInterfaces bool          `yaml:"watch_interfaces" json:"watch_interfaces" env:"LOGSYNC_CONNECTIVITY_WATCH_INTERFACES"`
	WatchInterval   time.Duration `yaml:"watch_interval" json:"watch_interval" env:"LOGSYNC_CONNECTIVITY_WATCH_INTERVAL"`
}

type IntegrityConfig struct {
	CacheTTL    time.Duration `yaml:"cache_ttl" json:"cache_ttl" env:"LOGSYNC_INTEGRITY_CACHE_TTL"`
	CacheSize   int           `yaml:"cache_size" json:"cache_size" env:"LOGSYNC_INTEGRITY_CACHE_SIZE"`
	Concurrency int           `yaml:"concurrency" json:"concurrency" env:"LOGSYNC_INTEGRITY_CONCURRENCY"`
	// AuditMode is one of mismatch, always or never.
	AuditMode string `yaml:"audit_mode" json:"audit_mode" env:"LOGSYNC_INTEGRITY_AUDIT_MODE"`
}

// APIConfig configures the local control API and the gRPC health listener.
// An empty address disables the listener.
type APIConfig struct {
	Addr            string        `yaml:"addr" json:"addr" env:"LOGSYNC_API_ADDR"`
	HealthAddr      string        `yaml:"health_addr" json:"health_addr" env:"LOGSYNC_API_HEALTH_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" env:"LOGSYNC_API_READ_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"LOGSYNC_API_SHUTDOWN_TIMEOUT"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" env:"LOGSYNC_LOG_LEVEL"`
	Format string `yaml:"format" json:"format" env:"LOGSYNC_LOG_FORMAT"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Store.Path = "logsync.db"

	c.Backend.MaxOpenConns = 4

	c.Sync.RetryCeiling = 3
	c.Sync.BaseDelay = time.Second
	c.Sync.ItemDelay = 100 * time.Millisecond
	c.Sync.TickInterval = 10 * time.Second
	c.Sync.RedrainDelay = 2 * time.Second
	c.Sync.CandidateLimit = 5
	c.Sync.ResolveCache = 1024

	c.Connectivity.ProbeInterval = 30 * time.Second
	c.Connectivity.ProbeTimeout = 5 * time.Second
	c.Connectivity.WatchInterfaces = true
	c.Connectivity.WatchInterval = 5 * time.Second

	c.Integrity.CacheTTL = 5 * time.Minute
	c.Integrity.CacheSize = 1024
	c.Integrity.Concurrency = 4
	c.Integrity.AuditMode = "mismatch"

	c.API.Addr = "127.0.0.1:8420"
	c.API.ReadTimeout = 10 * time.Second
	c.API.ShutdownTimeout = 10 * time.Second

	c.Log.Level = "info"
	c.Log.Format = "text"
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Sync.RetryCeiling < 1 {
		errs = append(errs, fmt.Errorf("sync.retry_ceiling must be at least 1, got %d", c.Sync.RetryCeiling))
	}
	if c.Sync.BaseDelay <= 0 {
		errs = append(errs, errors.New("sync.base_delay must be positive"))
	}
	if c.Sync.ItemDelay < 0 {
		errs = append(errs, errors.New("sync.item_delay must not be negative"))
	}
	if c.Connectivity.ProbeTimeout <= 0 || c.Connectivity.ProbeInterval <= 0 {
		errs = append(errs, errors.New("connectivity probe interval and timeout must be positive"))
	}
	if c.Integrity.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("integrity.concurrency must be at least 1, got %d", c.Integrity.Concurrency))
	}
	switch c.Integrity.AuditMode {
	case "mismatch", "always", "never":
	default:
		errs = append(errs, fmt.Errorf("integrity.audit_mode %q is not one of mismatch, always, never", c.Integrity.AuditMode))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	return errors.Join(errs...)
}
