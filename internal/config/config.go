// Package config provides application configuration loaded from environment
// variables (optionally seeded by a YAML file) with defaults and validation.
// It centralizes server timeouts, logging, upstream fetch policy, the cache
// substrate binding, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported cache substrates.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheValkey = "valkey"
	CacheBadger = "badger"
	CacheSQLite = "sqlite"
)

// UpstreamConfig defines how the proxy talks to the content API.
type UpstreamConfig struct {
	BaseURL    string        // canonical origin, e.g. https://www.reddit.com
	Domain     string        // root domain accepted for thread URLs
	UserAgent  string        // identifying User-Agent sent upstream
	Timeout    time.Duration // per-attempt HTTP timeout
	MaxRetries int           // retries after the first attempt
	RetryDelay time.Duration // base backoff delay
}

// CacheConfig selects and configures the response cache substrate.
type CacheConfig struct {
	Backend      string        // memory|redis|valkey|badger|sqlite
	TTL          time.Duration // flat entry lifetime
	Namespace    string        // key prefix (named cache binding)
	Addr         string        // redis/valkey address
	Password     string        // redis/valkey password
	DB           int           // redis/valkey logical DB
	MaxEntries   int           // memory backend capacity
	StoreTimeout time.Duration // bound for background stores
	BadgerPath   string        // badger directory ("" = in-memory)
	DBPath       string        // SQLite path
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	MaxAge time.Duration
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 30s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test
	ShutdownTimeout   time.Duration // drain window for requests and pending stores

	// Logging / Docs / Metrics
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	MetricsAddr    string // separate listener for /metrics ("" disables)

	Upstream UpstreamConfig
	Cache    CacheConfig

	// Rate limiting (inbound, per client IP)
	RateRPS   float64 // tokens per second (0 disables)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults
// (from CONFIG_FILE when set), normalizes values, and validates the result.
func Load() (Config, error) {
	src := source{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src = file
	}

	cfg := Config{
		// Server
		Port:              src.str("PORT", "8080"),
		ReadTimeout:       src.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: src.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      src.dur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       src.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    src.int("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(src.str("GIN_MODE", "release")),
		ShutdownTimeout:   src.dur("SHUTDOWN_TIMEOUT", 15*time.Second),

		// Logging / Docs / Metrics
		LogLevel:       strings.ToLower(src.str("LOG_LEVEL", "info")),
		LogPretty:      src.bool("LOG_PRETTY", false),
		SwaggerEnabled: src.bool("SWAGGER_ENABLED", false),
		MetricsAddr:    src.str("METRICS_ADDR", ":9090"),

		Upstream: UpstreamConfig{
			BaseURL:    strings.TrimRight(src.str("UPSTREAM_BASE_URL", "https://www.reddit.com"), "/"),
			Domain:     strings.ToLower(src.str("UPSTREAM_DOMAIN", "reddit.com")),
			UserAgent:  src.str("UPSTREAM_USER_AGENT", "Mozilla/5.0 (compatible; Redditify/1.0; +https://github.com/pronskiy/redditify)"),
			Timeout:    src.dur("UPSTREAM_TIMEOUT", 10*time.Second),
			MaxRetries: src.int("UPSTREAM_MAX_RETRIES", 2),
			RetryDelay: src.dur("UPSTREAM_RETRY_DELAY", time.Second),
		},

		Cache: CacheConfig{
			Backend:      strings.ToLower(src.str("CACHE_BACKEND", CacheMemory)),
			TTL:          src.dur("CACHE_TTL", 300*time.Second),
			Namespace:    src.str("CACHE_NAMESPACE", "redditify"),
			Addr:         src.str("CACHE_ADDR", ""),
			Password:     src.str("CACHE_PASSWORD", ""),
			DB:           src.int("CACHE_DB", 0),
			MaxEntries:   src.int("CACHE_MAX_ENTRIES", 10000),
			StoreTimeout: src.dur("CACHE_STORE_TIMEOUT", 5*time.Second),
			BadgerPath:   src.str("BADGER_PATH", ""),
			DBPath:       src.str("DB_PATH", "cache.db"),
		},

		// Rate limiting
		RateRPS:   src.float("RATE_RPS", 5.0),
		RateBurst: src.int("RATE_BURST", 20),

		// Web protection
		CORS: CORSConfig{
			MaxAge: src.dur("CORS_MAX_AGE", 24*time.Hour),
		},
		Security: SecurityConfig{
			EnableHSTS: src.bool("ENABLE_HSTS", false),
			HSTSMaxAge: src.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     src.bool("OTEL_ENABLED", false),
			Endpoint:    src.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    src.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: src.str("OTEL_SERVICE_NAME", "redditify-proxy"),
			SampleRatio: src.float("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.Upstream.Domain = strings.TrimPrefix(cfg.Upstream.Domain, ".")

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("SHUTDOWN_TIMEOUT must be > 0")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if err := validateUpstream(cfg.Upstream); err != nil {
		return cfg, err
	}
	if err := validateCache(cfg.Cache); err != nil {
		return cfg, err
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.CORS.MaxAge < 0 {
		return cfg, errors.New("CORS_MAX_AGE must be >= 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

func validateUpstream(u UpstreamConfig) error {
	base, err := url.Parse(u.BaseURL)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return errors.New("UPSTREAM_BASE_URL must be an absolute http(s) URL")
	}
	if u.Domain == "" {
		return errors.New("UPSTREAM_DOMAIN must not be empty")
	}
	host := strings.ToLower(base.Hostname())
	if host != u.Domain && !strings.HasSuffix(host, "."+u.Domain) {
		return fmt.Errorf("UPSTREAM_BASE_URL host %q is outside UPSTREAM_DOMAIN %q", host, u.Domain)
	}
	if u.MaxRetries < 0 {
		return errors.New("UPSTREAM_MAX_RETRIES must be >= 0")
	}
	if u.RetryDelay <= 0 || u.Timeout <= 0 {
		return errors.New("UPSTREAM_RETRY_DELAY and UPSTREAM_TIMEOUT must be > 0")
	}
	return nil
}

func validateCache(c CacheConfig) error {
	switch c.Backend {
	case CacheMemory, CacheBadger:
	case CacheRedis, CacheValkey:
		if strings.TrimSpace(c.Addr) == "" {
			return fmt.Errorf("CACHE_ADDR is required for the %s backend", c.Backend)
		}
	case CacheSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	default:
		return errors.New("CACHE_BACKEND must be one of: memory, redis, valkey, badger, sqlite")
	}
	if c.TTL <= 0 {
		return errors.New("CACHE_TTL must be > 0")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("CACHE_STORE_TIMEOUT must be > 0")
	}
	if c.MaxEntries < 1 {
		return errors.New("CACHE_MAX_ENTRIES must be >= 1")
	}
	return nil
}

// ---- file seed ----

// fileConfig mirrors the YAML layout accepted through CONFIG_FILE.
type fileConfig struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		GinMode         string `yaml:"gin_mode"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty string `yaml:"pretty"`
	} `yaml:"log"`
	Upstream struct {
		BaseURL    string `yaml:"base_url"`
		Domain     string `yaml:"domain"`
		UserAgent  string `yaml:"user_agent"`
		Timeout    string `yaml:"timeout"`
		MaxRetries string `yaml:"max_retries"`
		RetryDelay string `yaml:"retry_delay"`
	} `yaml:"upstream"`
	Cache struct {
		Backend    string `yaml:"backend"`
		TTL        string `yaml:"ttl"`
		Namespace  string `yaml:"namespace"`
		Addr       string `yaml:"addr"`
		Password   string `yaml:"password"`
		DB         string `yaml:"db"`
		MaxEntries string `yaml:"max_entries"`
		BadgerPath string `yaml:"badger_path"`
		DBPath     string `yaml:"db_path"`
	} `yaml:"cache"`
	RateLimit struct {
		RPS   string `yaml:"rps"`
		Burst string `yaml:"burst"`
	} `yaml:"rate_limit"`
}

func readFile(path string) (source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return source{
		"PORT":                 fc.Server.Port,
		"SHUTDOWN_TIMEOUT":     fc.Server.ShutdownTimeout,
		"GIN_MODE":             fc.Server.GinMode,
		"LOG_LEVEL":            fc.Log.Level,
		"LOG_PRETTY":           fc.Log.Pretty,
		"UPSTREAM_BASE_URL":    fc.Upstream.BaseURL,
		"UPSTREAM_DOMAIN":      fc.Upstream.Domain,
		"UPSTREAM_USER_AGENT":  fc.Upstream.UserAgent,
		"UPSTREAM_TIMEOUT":     fc.Upstream.Timeout,
		"UPSTREAM_MAX_RETRIES": fc.Upstream.MaxRetries,
		"UPSTREAM_RETRY_DELAY": fc.Upstream.RetryDelay,
		"CACHE_BACKEND":        fc.Cache.Backend,
		"CACHE_TTL":            fc.Cache.TTL,
		"CACHE_NAMESPACE":      fc.Cache.Namespace,
		"CACHE_ADDR":           fc.Cache.Addr,
		"CACHE_PASSWORD":       fc.Cache.Password,
		"CACHE_DB":             fc.Cache.DB,
		"CACHE_MAX_ENTRIES":    fc.Cache.MaxEntries,
		"BADGER_PATH":          fc.Cache.BadgerPath,
		"DB_PATH":              fc.Cache.DBPath,
		"RATE_RPS":             fc.RateLimit.RPS,
		"RATE_BURST":           fc.RateLimit.Burst,
	}, nil
}

// ---- helpers ----

// source resolves a key from the environment first, then from file values.
type source map[string]string

func (s source) lookup(k string) (string, bool) {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v, true
	}
	if v := strings.TrimSpace(s[k]); v != "" {
		return v, true
	}
	return "", false
}

func (s source) str(k, def string) string {
	if v, ok := s.lookup(k); ok {
		return v
	}
	return def
}

func (s source) float(k string, def float64) float64 {
	if v, ok := s.lookup(k); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (s source) int(k string, def int) int {
	if v, ok := s.lookup(k); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (s source) bool(k string, def bool) bool {
	if v, ok := s.lookup(k); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func (s source) dur(k string, def time.Duration) time.Duration {
	if v, ok := s.lookup(k); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
