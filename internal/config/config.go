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

type Config struct {
	App struct {
		// dev | prod
		Env     string `yaml:"app_env"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		ReadTimeout        string   `yaml:"read_timeout"`
		WriteTimeout       string   `yaml:"write_timeout"`
		ShutdownTimeout    string   `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"` // vacío = solo stderr
	} `yaml:"log"`

	Upstream struct {
		BaseURL       string `yaml:"base_url"`
		Timeout       string `yaml:"timeout"`        // per-call
		BatchInterval string `yaml:"batch_interval"` // gate entre items del batch
		UserAgent     string `yaml:"user_agent"`
		Cookie        string `yaml:"cookie"` // opcional (buvid3/SESSDATA)
	} `yaml:"upstream"`

	Cache struct {
		Kind     string `yaml:"kind"` // memory | redis
		TTL      string `yaml:"ttl"`
		StaleTTL string `yaml:"stale_ttl"` // copia para responder junto a errores; "0" deshabilita
		Redis    struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	WBI struct {
		KeyTTL   string `yaml:"key_ttl"`
		MaxStale string `yaml:"max_stale"` // "0" = servir claves vencidas sin límite
	} `yaml:"wbi"`

	Rate struct {
		Enabled     bool   `yaml:"enabled"`
		Window      string `yaml:"window"`
		MaxRequests int    `yaml:"max_requests"`

		// Solo detrás de un reverse proxy que controle X-Forwarded-For.
		TrustForwardedHeaders bool `yaml:"trust_forwarded_headers"`
	} `yaml:"rate"`

	Batch struct {
		MaxItems int `yaml:"max_items"`
	} `yaml:"batch"`
}

// Load lee el YAML, completa defaults, aplica overrides de entorno y valida.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return c.finish()
}

// LoadOrDefault es como Load pero si el archivo no existe arranca de defaults + env.
func LoadOrDefault(path string) (*Config, error) {
	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	var c Config
	return c.finish()
}

func (c *Config) finish() (*Config, error) {
	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{"*"}
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		// el batch de 50 items con gate de 200ms + upstream puede tardar
		c.Server.WriteTimeout = "120s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "15s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://api.bilibili.com"
	}
	if c.Upstream.Timeout == "" {
		c.Upstream.Timeout = "10s"
	}
	if c.Upstream.BatchInterval == "" {
		c.Upstream.BatchInterval = "200ms"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "300s"
	}
	if c.Cache.StaleTTL == "" {
		c.Cache.StaleTTL = "24h"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "biliproxy"
	}
	if c.WBI.KeyTTL == "" {
		c.WBI.KeyTTL = "1h"
	}
	if c.WBI.MaxStale == "" {
		c.WBI.MaxStale = "24h"
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.MaxRequests == 0 {
		c.Rate.MaxRequests = 120
	}
	if c.Batch.MaxItems == 0 {
		c.Batch.MaxItems = 50
	}
}

// ---- Helpers env ----

const envPrefix = "BILIPROXY_"

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

// applyEnvOverrides: pisa el YAML con variables BILIPROXY_*.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("VERSION"); ok {
		c.App.Version = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	// LOG
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("LOG_FILE"); ok {
		c.Log.File = v
	}

	// UPSTREAM
	if v, ok := getEnvStr("UPSTREAM_BASE_URL"); ok {
		c.Upstream.BaseURL = v
	}
	if v, ok := getEnvStr("UPSTREAM_TIMEOUT"); ok {
		c.Upstream.Timeout = v
	}
	if v, ok := getEnvStr("UPSTREAM_BATCH_INTERVAL"); ok {
		c.Upstream.BatchInterval = v
	}
	if v, ok := getEnvStr("UPSTREAM_COOKIE"); ok {
		c.Upstream.Cookie = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("CACHE_TTL"); ok {
		c.Cache.TTL = v
	}
	if v, ok := getEnvStr("CACHE_STALE_TTL"); ok {
		c.Cache.StaleTTL = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// WBI
	if v, ok := getEnvStr("WBI_KEY_TTL"); ok {
		c.WBI.KeyTTL = v
	}
	if v, ok := getEnvStr("WBI_MAX_STALE"); ok {
		c.WBI.MaxStale = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
	if v, ok := getEnvInt("RATE_MAX_REQUESTS"); ok {
		c.Rate.MaxRequests = v
	}
	if v, ok := getEnvBool("RATE_TRUST_FORWARDED_HEADERS"); ok {
		c.Rate.TrustForwardedHeaders = v
	}
}

// Validate chequea duraciones, URLs y rangos.
func (c *Config) Validate() error {
	durations := map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"upstream.timeout":        c.Upstream.Timeout,
		"upstream.batch_interval": c.Upstream.BatchInterval,
		"cache.ttl":               c.Cache.TTL,
		"cache.stale_ttl":         c.Cache.StaleTTL,
		"wbi.key_ttl":             c.WBI.KeyTTL,
		"wbi.max_stale":           c.WBI.MaxStale,
		"rate.window":             c.Rate.Window,
	}
	for name, v := range durations {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("config: %s must not be negative", name)
		}
	}
	if mustDur(c.Upstream.Timeout) == 0 {
		return errors.New("config: upstream.timeout must be > 0")
	}
	if mustDur(c.Cache.TTL) == 0 {
		return errors.New("config: cache.ttl must be > 0")
	}
	if mustDur(c.WBI.KeyTTL) == 0 {
		return errors.New("config: wbi.key_ttl must be > 0")
	}

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: upstream.base_url %q is not an absolute URL", c.Upstream.BaseURL)
	}

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return errors.New("config: cache.redis.addr required when cache.kind=redis")
		}
	default:
		return fmt.Errorf("config: unknown cache.kind %q", c.Cache.Kind)
	}

	if c.Batch.MaxItems < 1 {
		return errors.New("config: batch.max_items must be >= 1")
	}
	if c.Rate.MaxRequests < 1 {
		return errors.New("config: rate.max_requests must be >= 1")
	}
	return nil
}

// mustDur parsea una duración ya validada.
func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Accessors tipados (valores ya validados) ----

func (c *Config) ReadTimeout() time.Duration     { return mustDur(c.Server.ReadTimeout) }
func (c *Config) WriteTimeout() time.Duration    { return mustDur(c.Server.WriteTimeout) }
func (c *Config) ShutdownTimeout() time.Duration { return mustDur(c.Server.ShutdownTimeout) }
func (c *Config) UpstreamTimeout() time.Duration { return mustDur(c.Upstream.Timeout) }
func (c *Config) BatchInterval() time.Duration   { return mustDur(c.Upstream.BatchInterval) }
func (c *Config) CacheTTL() time.Duration        { return mustDur(c.Cache.TTL) }
func (c *Config) StaleTTL() time.Duration        { return mustDur(c.Cache.StaleTTL) }
func (c *Config) KeyTTL() time.Duration          { return mustDur(c.WBI.KeyTTL) }
func (c *Config) KeyMaxStale() time.Duration     { return mustDur(c.WBI.MaxStale) }
func (c *Config) RateWindow() time.Duration      { return mustDur(c.Rate.Window) }
