package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faersignal/domain/core"
	"faersignal/domain/signal"
	apperrors "faersignal/internal/errors"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "SIGNAL_MODE", "RANKING", "MIN_A", "BATCH_WORKERS", "PORT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, signal.ModeBalanced, cfg.Signal.Mode)
	assert.Equal(t, signal.RankIC025, cfg.Signal.Ranking)
	assert.Equal(t, signal.DefaultMinA, cfg.Signal.MinA)
	assert.True(t, cfg.Signal.SuspectOnly)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/faers?sslmode=disable")
	t.Setenv("SIGNAL_MODE", "specific")
	t.Setenv("MIN_A", "5")
	t.Setenv("SUSPECT_ONLY", "false")
	t.Setenv("BATCH_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, signal.ModeSpecific, cfg.Signal.Mode)
	assert.Equal(t, 5, cfg.Signal.MinA)
	assert.False(t, cfg.Signal.SuspectOnly)
	assert.Equal(t, 8, cfg.Signal.Workers)
}

func TestLoad_UnknownSignalModeRejected(t *testing.T) {
	t.Setenv("SIGNAL_MODE", "balnced")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
	assert.True(t, errors.Is(err, core.ErrUnknownSignalMode))
}

func TestLoad_InvalidWorkers(t *testing.T) {
	t.Setenv("SIGNAL_MODE", "")
	t.Setenv("BATCH_WORKERS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
}

func TestLoad_OpenFDA(t *testing.T) {
	t.Setenv("SIGNAL_MODE", "")
	t.Setenv("OPENFDA_BASE_URL", "")
	t.Setenv("OPENFDA_API_KEY", "key-123")
	t.Setenv("OPENFDA_RPS", "2")
	t.Setenv("OPENFDA_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.fda.gov/drug/event.json", cfg.OpenFDA.BaseURL)
	assert.Equal(t, "key-123", cfg.OpenFDA.APIKey)
	assert.Equal(t, 2.0, cfg.OpenFDA.RPS)
	assert.Equal(t, 5*time.Second, cfg.OpenFDA.Timeout)
	assert.Equal(t, 3, cfg.OpenFDA.Retries)

	t.Setenv("OPENFDA_RETRIES", "-1")
	_, err = Load()
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
}
