package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "db"
	cfg.Password = "secret"

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "host=db")
	assert.Contains(t, dsn, "dbname=nightlife")
	assert.Contains(t, dsn, "connect_timeout=10")

	cfg.URL = "postgres://u:p@localhost:5432/x"
	assert.Equal(t, cfg.URL, cfg.DSN())
}

func TestConfig_PoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "localhost"
	cfg.MaxConns = 7
	cfg.MaxConnIdleTime = time.Minute

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, time.Minute, pc.MaxConnIdleTime)
}

func TestGetMigrations_OrderedAndReversible(t *testing.T) {
	migs := GetMigrations()
	require.NotEmpty(t, migs)
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL, m.Name)
		assert.NotEmpty(t, m.DownSQL, m.Name)
		assert.False(t, m.IsApplied())
	}
}

func TestMigrations_UniquenessConstraints(t *testing.T) {
	var all strings.Builder
	for _, m := range GetMigrations() {
		all.WriteString(m.UpSQL)
	}
	schema := all.String()

	for _, c := range []string{
		"UNIQUE (user_id, achievement_id)",
		"UNIQUE (user_id, quest_id)",
		"UNIQUE (user_id, milestone_type, milestone_value)",
		"UNIQUE (user_id, week_start)",
		"share_code VARCHAR(64) NOT NULL UNIQUE",
	} {
		assert.Contains(t, schema, c)
	}
}

func TestIncrementXPSQL_IsServerSideIncrement(t *testing.T) {
	assert.Contains(t, incrementXPSQL, "total_xp = user_xp.total_xp + EXCLUDED.total_xp")
	assert.Contains(t, incrementXPSQL, "RETURNING total_xp, current_level")
	assert.NotContains(t, incrementXPSQL, "FOR UPDATE")
}

func TestErrorHelpers(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.True(t, IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("boom")))
}
