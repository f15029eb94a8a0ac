package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsPerService(t *testing.T) {
	t.Setenv("SERVICE_NAME", "entry-service")
	cfg := Load()
	assert.Equal(t, "8083", cfg.HTTPPort)
	assert.Equal(t, "9099", cfg.MetricsPort)
	assert.Equal(t, int64(5000), cfg.MinWagerCents)
	assert.Equal(t, int64(200000), cfg.MaxWagerCents)
	assert.Equal(t, "entry_placed", cfg.TopicEntryPlaced)
	assert.Equal(t, 3, cfg.TxMaxRetries)

	t.Setenv("SERVICE_NAME", "settlement-worker")
	cfg = Load()
	assert.Empty(t, cfg.HTTPPort)
	assert.Equal(t, "9097", cfg.MetricsPort)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("MIN_WAGER_CENTS", "100")
	t.Setenv("MAX_WAGER_CENTS", "not-a-number")
	t.Setenv("TX_BACKOFF", "250ms")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("ENV", "local")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, int64(100), cfg.MinWagerCents)
	assert.Equal(t, int64(200000), cfg.MaxWagerCents) // valor inválido cai no default
	assert.Equal(t, 250*time.Millisecond, cfg.TxBackoff)
	assert.False(t, cfg.AutoMigrate)
}
