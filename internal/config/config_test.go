package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load defaults ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("server defaults unexpected: %+v", cfg)
	}
	up := cfg.Upstream
	if up.BaseURL != "https://www.reddit.com" || up.Domain != "reddit.com" ||
		up.MaxRetries != 2 || up.RetryDelay != time.Second || up.Timeout != 10*time.Second {
		t.Fatalf("upstream defaults unexpected: %+v", up)
	}
	if !strings.Contains(up.UserAgent, "Redditify") {
		t.Fatalf("user agent default unexpected: %q", up.UserAgent)
	}
	c := cfg.Cache
	if c.Backend != CacheMemory || c.TTL != 300*time.Second || c.Namespace != "redditify" {
		t.Fatalf("cache defaults unexpected: %+v", c)
	}
	if cfg.CORS.MaxAge != 24*time.Hour {
		t.Fatalf("cors max age default = %v", cfg.CORS.MaxAge)
	}
}

// --- Load overrides + normalization ---

func TestLoad_Success_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("GIN_MODE", "weird")    // normalizes to "release"
	t.Setenv("LOG_LEVEL", "warning") // normalizes to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("UPSTREAM_BASE_URL", "https://old.site.example/")
	t.Setenv("UPSTREAM_DOMAIN", ".Site.Example")
	t.Setenv("UPSTREAM_MAX_RETRIES", "4")
	t.Setenv("UPSTREAM_RETRY_DELAY", "250ms")
	t.Setenv("CACHE_BACKEND", "REDIS")
	t.Setenv("CACHE_ADDR", "localhost:6379")
	t.Setenv("CACHE_DB", "3")
	t.Setenv("CACHE_TTL", "1m")
	t.Setenv("RATE_RPS", "x") // parse failure -> default
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled {
		t.Fatalf("logging fields unexpected: %+v", cfg)
	}
	if cfg.Upstream.BaseURL != "https://old.site.example" || cfg.Upstream.Domain != "site.example" {
		t.Fatalf("upstream normalization unexpected: %+v", cfg.Upstream)
	}
	if cfg.Upstream.MaxRetries != 4 || cfg.Upstream.RetryDelay != 250*time.Millisecond {
		t.Fatalf("upstream retry fields unexpected: %+v", cfg.Upstream)
	}
	if cfg.Cache.Backend != CacheRedis || cfg.Cache.DB != 3 || cfg.Cache.TTL != time.Minute {
		t.Fatalf("cache fields unexpected: %+v", cfg.Cache)
	}
	if cfg.RateRPS != 5.0 {
		t.Fatalf("RATE_RPS fallback = %v", cfg.RateRPS)
	}
	if cfg.OTEL.SampleRatio != 0.25 {
		t.Fatalf("sample ratio = %v", cfg.OTEL.SampleRatio)
	}
}

// --- validation failures ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"empty port", map[string]string{"PORT": " "}, "PORT"},
		{"bad timeout", map[string]string{"READ_TIMEOUT": "-1s"}, "timeouts"},
		{"bad shutdown", map[string]string{"SHUTDOWN_TIMEOUT": "0s"}, "SHUTDOWN_TIMEOUT"},
		{"relative base", map[string]string{"UPSTREAM_BASE_URL": "/just/a/path"}, "UPSTREAM_BASE_URL"},
		{"foreign base", map[string]string{"UPSTREAM_BASE_URL": "https://evil.example"}, "outside"},
		{"lookalike base", map[string]string{"UPSTREAM_BASE_URL": "https://evilreddit.com"}, "outside"},
		{"negative retries", map[string]string{"UPSTREAM_MAX_RETRIES": "-1"}, "UPSTREAM_MAX_RETRIES"},
		{"zero delay", map[string]string{"UPSTREAM_RETRY_DELAY": "0s"}, "UPSTREAM_RETRY_DELAY"},
		{"unknown backend", map[string]string{"CACHE_BACKEND": "memcached"}, "CACHE_BACKEND"},
		{"redis without addr", map[string]string{"CACHE_BACKEND": "redis"}, "CACHE_ADDR"},
		{"valkey without addr", map[string]string{"CACHE_BACKEND": "valkey"}, "CACHE_ADDR"},
		{"zero ttl", map[string]string{"CACHE_TTL": "0s"}, "CACHE_TTL"},
		{"zero entries", map[string]string{"CACHE_MAX_ENTRIES": "0"}, "CACHE_MAX_ENTRIES"},
		{"negative rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"zero burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"negative hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "2"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

// --- YAML seed ---

func TestLoad_ConfigFile_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.yaml")
	body := `
server:
  port: "9000"
upstream:
  retry_delay: "500ms"
cache:
  backend: "valkey"
  addr: "cache:6379"
  ttl: "2m"
rate_limit:
  burst: "7"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CACHE_TTL", "30s") // env wins

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9000" || cfg.Upstream.RetryDelay != 500*time.Millisecond {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Cache.Backend != CacheValkey || cfg.Cache.Addr != "cache:6379" || cfg.RateBurst != 7 {
		t.Fatalf("file cache values not applied: %+v", cfg.Cache)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Fatalf("env should override file, got TTL %v", cfg.Cache.TTL)
	}
}

func TestLoad_ConfigFile_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "read config") {
			t.Fatalf("expected read error, got %v", err)
		}
	})
	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		t.Setenv("CONFIG_FILE", path)
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse config") {
			t.Fatalf("expected parse error, got %v", err)
		}
	})
}

// --- helpers ---

func TestSource_BoolParsing(t *testing.T) {
	s := source{"FILE_ONLY": "on"}
	if !s.bool("FILE_ONLY", false) {
		t.Fatalf("file value should be used")
	}
	t.Setenv("FILE_ONLY", "off")
	if s.bool("FILE_ONLY", true) {
		t.Fatalf("env value should win")
	}
	t.Setenv("GARBAGE", "maybe")
	if !s.bool("GARBAGE", true) {
		t.Fatalf("unparsable bool should fall back to default")
	}
}
