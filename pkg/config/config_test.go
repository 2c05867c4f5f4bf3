package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-conciliacao/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_STORAGE", "memory")
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.NegativeStockAdvisory, cfg.Import.NegativeStockPolicy)
	assert.False(t, cfg.Import.BlockOnNegativeStock())
	assert.Equal(t, int64(10<<20), cfg.Import.MaxFileBytes())
	assert.Equal(t, 4, cfg.Import.BatchWorkers)
	assert.Equal(t, 15*time.Minute, cfg.Import.StaleAfter())
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("APP_STORAGE", "memory")
	t.Setenv("IMPORT_NEGATIVE_STOCK_POLICY", "block")
	t.Setenv("IMPORT_MAX_FILE_MB", "2")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("IMPORT_STALE_MINUTES", "0")
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Zero(t, cfg.Import.StaleAfter())

	assert.True(t, cfg.Import.BlockOnNegativeStock())
	assert.Equal(t, int64(2<<20), cfg.Import.MaxFileBytes())
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoad_PoliticaInvalida(t *testing.T) {
	t.Setenv("APP_STORAGE", "memory")
	t.Setenv("IMPORT_NEGATIVE_STOCK_POLICY", "ignorar")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestDBConfig_DSN(t *testing.T) {
	c := config.DBConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss/word", DBName: "nfe", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/nfe?sslmode=disable", c.ConnectionString())

	c.DatabaseURL = "postgres://otro"
	assert.Equal(t, "postgres://otro", c.ConnectionString())
}
