package bootstrap

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/afterhours/nightlife-core/config"
)

func TestPostgresConfig(t *testing.T) {
	pg := PostgresConfig(config.DatabaseConfig{
		URL:             "postgres://u:p@db:5432/nightlife",
		MaxConns:        20,
		MinConns:        4,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute,
		ConnectTimeout:  3 * time.Second,
	})

	assert.Equal(t, "postgres://u:p@db:5432/nightlife", pg.URL)
	assert.EqualValues(t, 20, pg.MaxConns)
	assert.EqualValues(t, 4, pg.MinConns)
	assert.Equal(t, 3*time.Second, pg.ConnectTimeout)
}

func TestRedisConfig_KeepsRetryDefault(t *testing.T) {
	rc := RedisConfig(config.RedisConfig{Host: "cache", Port: 6380, PoolSize: 5})

	assert.Equal(t, "cache:6380", rc.Addr())
	assert.Equal(t, 5, rc.PoolSize)
	assert.Equal(t, 3, rc.MaxRetries)
}

func TestStorageConfig_PathStyleForCustomEndpoint(t *testing.T) {
	sc := StorageConfig(config.StorageConfig{Bucket: "cards", Endpoint: "https://r2.example"})
	assert.True(t, sc.UsePathStyle)
	assert.Equal(t, "flex", sc.Prefix)

	assert.False(t, StorageConfig(config.StorageConfig{Bucket: "cards"}).UsePathStyle)
}

func TestNewLogger_Level(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := &config.Config{
		App:           config.AppConfig{Name: "test", Environment: config.EnvStaging},
		Observability: config.ObservabilityConfig{LogLevel: "warn", LogFormat: "text"},
	}
	log := NewLogger(cfg)

	assert.False(t, log.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, log.Enabled(context.Background(), slog.LevelWarn))

	cfg.App.Debug = true
	assert.True(t, NewLogger(cfg).Enabled(context.Background(), slog.LevelDebug))
}
