// Package config loads service settings from an optional YAML file overlaid
// with environment variables, using viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	CatalogStatic   = "static"
	CatalogDatabase = "database"
)

type Config struct {
	Server struct {
		Host         string   `mapstructure:"host" yaml:"host"`
		Port         int      `mapstructure:"port" yaml:"port"`
		Debug        bool     `mapstructure:"debug" yaml:"debug"`
		CORSOrigins  []string `mapstructure:"cors_origins" yaml:"cors_origins"`
		AllowedHosts []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`
		// APIKeys maps a client name to its key; empty disables auth.
		APIKeys   map[string]string `mapstructure:"api_keys" yaml:"api_keys"`
		RateLimit struct {
			RPS   float64 `mapstructure:"rps" yaml:"rps"`
			Burst int     `mapstructure:"burst" yaml:"burst"`
		} `mapstructure:"rate_limit" yaml:"rate_limit"`
	} `mapstructure:"server" yaml:"server"`

	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	Database struct {
		// URL wins over the discrete fields: postgres://... or mysql://...
		URL      string `mapstructure:"url" yaml:"url"`
		Driver   string `mapstructure:"driver" yaml:"driver"`
		Host     string `mapstructure:"host" yaml:"host"`
		Port     int    `mapstructure:"port" yaml:"port"`
		User     string `mapstructure:"user" yaml:"user"`
		Password string `mapstructure:"password" yaml:"password"`
		Name     string `mapstructure:"name" yaml:"name"`
	} `mapstructure:"database" yaml:"database"`

	Redis struct {
		URL string `mapstructure:"url" yaml:"url"`
	} `mapstructure:"redis" yaml:"redis"`

	Cache struct {
		Backend string        `mapstructure:"backend" yaml:"backend"`
		Size    int           `mapstructure:"size" yaml:"size"`
		TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
	} `mapstructure:"cache" yaml:"cache"`

	LLM struct {
		APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
		BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
		Model       string        `mapstructure:"model" yaml:"model"`
		MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
		Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
		Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	} `mapstructure:"llm" yaml:"llm"`

	Catalog struct {
		Source string `mapstructure:"source" yaml:"source"`
	} `mapstructure:"catalog" yaml:"catalog"`

	Minio struct {
		Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
		Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
		AccessKey  string `mapstructure:"access_key" yaml:"access_key"`
		SecretKey  string `mapstructure:"secret_key" yaml:"secret_key"`
		BucketName string `mapstructure:"bucket" yaml:"bucket"`
		Region     string `mapstructure:"region" yaml:"region"`
		UseSSL     bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	} `mapstructure:"minio" yaml:"minio"`
}

// envBindings maps config keys to the flat variable names used in deployments.
var envBindings = map[string]string{
	"server.host":             "HOST",
	"server.port":             "PORT",
	"server.debug":            "DEBUG",
	"server.cors_origins":     "CORS_ORIGINS",
	"server.allowed_hosts":    "ALLOWED_HOSTS",
	"server.api_keys":         "API_KEYS",
	"server.rate_limit.rps":   "RATE_LIMIT_RPS",
	"server.rate_limit.burst": "RATE_LIMIT_BURST",

	"log.level":  "LOG_LEVEL",
	"log.format": "LOG_FORMAT",

	"database.url": "DATABASE_URL",
	"redis.url":    "REDIS_URL",

	"cache.backend": "CACHE_BACKEND",
	"cache.size":    "CACHE_SIZE",
	"cache.ttl":     "CACHE_TTL",

	"llm.api_key":     "DEEPSEEK_API_KEY",
	"llm.base_url":    "DEEPSEEK_BASE_URL",
	"llm.model":       "DEEPSEEK_MODEL",
	"llm.max_tokens":  "DEEPSEEK_MAX_TOKENS",
	"llm.temperature": "DEEPSEEK_TEMPERATURE",
	"llm.timeout":     "DEEPSEEK_TIMEOUT",

	"catalog.source": "CATALOG_SOURCE",

	"minio.enabled":    "MINIO_ENABLED",
	"minio.endpoint":   "MINIO_ENDPOINT",
	"minio.access_key": "MINIO_ACCESS_KEY",
	"minio.secret_key": "MINIO_SECRET_KEY",
	"minio.bucket":     "MINIO_BUCKET",
	"minio.region":     "MINIO_REGION",
	"minio.use_ssl":    "MINIO_USE_SSL",
}

// setDefaults holds the settings used when neither file nor environment say otherwise.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.allowed_hosts", []string{"*"})
	// 0 disables the limiter
	v.SetDefault("server.rate_limit.rps", 0.0)
	v.SetDefault("server.rate_limit.burst", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("llm.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("catalog.source", CatalogStatic)

	v.SetDefault("minio.bucket", "supplement-advisor")
	v.SetDefault("minio.region", "us-east-1")
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Default returns the built-in settings, ignoring file and environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads the YAML file at path (a missing file is fine), overlays the
// environment and validates the result.
func Load(path string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
		}
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook,
		listHook,
		apiKeysHook,
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	listType     = reflect.TypeOf([]string(nil))
	keysType     = reflect.TypeOf(map[string]string(nil))
)

// durationHook accepts Go durations ("90s") or plain seconds ("30").
func durationHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != durationType {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// listHook splits "a, b" into trimmed, non-empty items.
func listHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != listType {
		return data, nil
	}
	return splitList(data.(string)), nil
}

func apiKeysHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != keysType {
		return data, nil
	}
	return parseAPIKeys(data.(string)), nil
}

// parseAPIKeys reads "name:key,key2"; unnamed keys get a positional name.
func parseAPIKeys(v string) map[string]string {
	keys := make(map[string]string)
	for i, item := range splitList(v) {
		name, key, found := strings.Cut(item, ":")
		if !found {
			name, key = fmt.Sprintf("key%d", i+1), item
		}
		if key = strings.TrimSpace(key); key != "" {
			keys[strings.TrimSpace(name)] = key
		}
	}
	return keys
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("cache backend redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.Size <= 0 {
		errs = append(errs, fmt.Errorf("cache size must be positive, got %d", c.Cache.Size))
	}
	switch c.Catalog.Source {
	case CatalogStatic:
	case CatalogDatabase:
		if c.DatabaseDriver() == DriverMemory {
			errs = append(errs, errors.New("catalog source database requires a database"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown catalog source %q", c.Catalog.Source))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm timeout must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DatabaseDriver picks the repository backend from the URL scheme or the
// explicit driver; without either the in-memory repository is used.
func (c *Config) DatabaseDriver() string {
	if u := c.Database.URL; u != "" {
		switch {
		case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
			return DriverPostgres
		case strings.HasPrefix(u, "mysql://"):
			return DriverMySQL
		}
	}
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Database.Host != "" || c.Database.URL != "" {
			return c.Database.Driver
		}
	}
	return DriverMemory
}

// DatabaseDSN renders the connection string for DatabaseDriver.
func (c *Config) DatabaseDSN() string {
	switch c.DatabaseDriver() {
	case DriverPostgres:
		if c.Database.URL != "" {
			return c.Database.URL
		}
		return c.PostgresDSN()
	case DriverMySQL:
		if c.Database.URL != "" {
			return withMySQLParams(strings.TrimPrefix(c.Database.URL, "mysql://"))
		}
		return c.MySQLDSN()
	}
	return ""
}

// MySQLDSN builds the DSN from discrete fields. multiStatements is needed by
// the migrations.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC&multiStatements=true",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func withMySQLParams(dsn string) string {
	for _, p := range []string{"parseTime=true", "multiStatements=true"} {
		key := p[:strings.IndexByte(p, '=')+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}
	return dsn
}
