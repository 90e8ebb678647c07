package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithMockAPI(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/test")
	t.Setenv("USE_MOCK_API", "true")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 150, s.DefaultBatchSize)
	assert.Equal(t, 20, s.DefaultConcurrency)
	assert.Equal(t, 50.0, s.DailyBudgetUSD)
}

func TestLoadRequiresStoreLocator(t *testing.T) {
	t.Setenv("PG_DSN", "")
	t.Setenv("BIGQUERY_PROJECT_ID", "")
	t.Setenv("BIGQUERY_DATASET", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresAPIKeyWithoutMock(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/test")
	t.Setenv("USE_MOCK_API", "false")
	t.Setenv("SERPER_API_KEY", "")
	_, err := Load()
	require.Error(t, err)
}

func TestEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("DEFAULT_BATCH_SIZE", "not-a-number")
	assert.Equal(t, 150, envInt("DEFAULT_BATCH_SIZE", 150))
}
