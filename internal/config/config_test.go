package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every bound variable; viper treats empty values as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envBindings {
		t.Setenv(name, "")
	}
}

func absent(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.yaml")
}

func TestDefaults(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "0.0.0.0:8000", c.Addr())
	assert.Equal(t, []string{"*"}, c.Server.CORSOrigins)
	assert.Zero(t, c.Server.RateLimit.RPS)
	assert.Equal(t, DriverMemory, c.DatabaseDriver())
	assert.Empty(t, c.DatabaseDSN())
	assert.Equal(t, "deepseek-chat", c.LLM.Model)
	assert.Equal(t, 0.7, c.LLM.Temperature)
	assert.Equal(t, 30*time.Second, c.LLM.Timeout)
	assert.Equal(t, 24*time.Hour, c.Cache.TTL)
	assert.Equal(t, "supplement-advisor", c.Minio.BucketName)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("DEBUG", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("API_KEYS", "web:k1, k2")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CACHE_TTL", "3600")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	t.Setenv("DEEPSEEK_TEMPERATURE", "0.2")
	t.Setenv("DEEPSEEK_TIMEOUT", "45s")
	t.Setenv("MINIO_ENABLED", "1")

	c, err := Load(absent(t))
	require.NoError(t, err)

	assert.Equal(t, 9000, c.Server.Port)
	assert.True(t, c.Server.Debug)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.Server.CORSOrigins)
	assert.Equal(t, map[string]string{"web": "k1", "key2": "k2"}, c.Server.APIKeys)
	assert.Equal(t, 2.5, c.Server.RateLimit.RPS)
	assert.Equal(t, CacheRedis, c.Cache.Backend)
	assert.Equal(t, time.Hour, c.Cache.TTL)
	assert.Equal(t, "sk-test", c.LLM.APIKey)
	assert.Equal(t, 0.2, c.LLM.Temperature)
	assert.Equal(t, 45*time.Second, c.LLM.Timeout)
	assert.True(t, c.Minio.Enabled)
	assert.Equal(t, "deepseek-chat", c.LLM.Model, "unset variables keep defaults")
}

func TestLoadReportsBadEnvValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")
	t.Setenv("DEBUG", "maybe")
	t.Setenv("DEEPSEEK_TIMEOUT", "soon")

	_, err := Load(absent(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "server.debug")
	assert.Contains(t, err.Error(), "llm.timeout")
}

func TestLoadValidates(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_BACKEND", "redis")

	_, err := Load(absent(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "invalid port"},
		{"redis without url", func(c *Config) { c.Cache.Backend = CacheRedis }, "REDIS_URL"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "unknown cache backend"},
		{"db catalog without db", func(c *Config) { c.Catalog.Source = CatalogDatabase }, "requires a database"},
		{"timeout", func(c *Config) { c.LLM.Timeout = 0 }, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	c := Default()
	c.Database.URL = "postgresql://app:pw@db:5432/advisor?sslmode=require"
	assert.Equal(t, DriverPostgres, c.DatabaseDriver())
	assert.Equal(t, c.Database.URL, c.DatabaseDSN())

	c.Database.URL = "mysql://app:pw@tcp(db:3306)/advisor"
	assert.Equal(t, DriverMySQL, c.DatabaseDriver())
	assert.Equal(t, "app:pw@tcp(db:3306)/advisor?parseTime=true&multiStatements=true", c.DatabaseDSN())

	c.Database.URL = "app:pw@tcp(db:3306)/advisor?parseTime=true"
	c.Database.Driver = DriverMySQL
	assert.Equal(t, "app:pw@tcp(db:3306)/advisor?parseTime=true&multiStatements=true", c.DatabaseDSN())

	c = Default()
	c.Database.Driver = DriverPostgres
	assert.Equal(t, DriverMemory, c.DatabaseDriver(), "driver without host stays in memory")
	c.Database.Host = "db"
	c.Database.Port = 5432
	c.Database.User = "app"
	c.Database.Password = "pw"
	c.Database.Name = "advisor"
	assert.Equal(t, "postgres://app:pw@db:5432/advisor?sslmode=disable", c.DatabaseDSN())

	c.Database.Driver = DriverMySQL
	assert.Equal(t, "app:pw@tcp(db:5432)/advisor?parseTime=true&charset=utf8mb4&loc=UTC&multiStatements=true", c.DatabaseDSN())
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8081
  cors_origins: [https://shop.example]
cache:
  size: 64
  ttl: 2h
llm:
  model: deepseek-reasoner
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8081, c.Server.Port)
	assert.Equal(t, []string{"https://shop.example"}, c.Server.CORSOrigins)
	assert.Equal(t, 64, c.Cache.Size)
	assert.Equal(t, 2*time.Hour, c.Cache.TTL)
	assert.Equal(t, "deepseek-reasoner", c.LLM.Model)
	assert.Equal(t, "https://api.deepseek.com/v1", c.LLM.BaseURL)

	t.Setenv("PORT", "7000")
	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, c.Server.Port, "environment wins over the file")
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	c, err := Load(absent(t))
	require.NoError(t, err)
	assert.Equal(t, CacheMemory, c.Cache.Backend)
}

func TestYAMLMasksSecretsAndRoundTrips(t *testing.T) {
	clearEnv(t)
	c := Default()
	c.LLM.APIKey = "sk-live"
	c.Database.URL = "postgres://app:hunter2@db:5432/advisor"
	c.Server.APIKeys = map[string]string{"web": "k1"}

	out, err := c.YAML()
	require.NoError(t, err)
	text := string(out)
	assert.NotContains(t, text, "sk-live")
	assert.NotContains(t, text, "hunter2")
	assert.NotContains(t, text, "k1")

	path := filepath.Join(t.TempDir(), "effective.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o600))
	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.Cache.TTL, back.Cache.TTL)
	assert.Equal(t, c.LLM.Timeout, back.LLM.Timeout)
	assert.Equal(t, DriverPostgres, back.DatabaseDriver())
}
