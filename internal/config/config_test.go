package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Harshitk-cp/protomind/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"SERVER_PORT", "STORE_BACKEND", "EMBEDDING_PROVIDER", "DECAY_INTERVAL", "SEARCH_DEFAULT_TOP_K", "WTA_HALF_LIFE"} {
		t.Setenv(k, "")
	}

	assert.Equal(t, ":8080", ServerAddr())
	assert.Equal(t, "memory", StoreBackend())
	assert.Equal(t, "mock", EmbeddingProvider())
	assert.Equal(t, time.Duration(0), DecayInterval())
	assert.Equal(t, 10, SearchDefaultTopK())
	assert.Equal(t, service.DefaultScoringPolicy(), ScoringPolicy())
	assert.Equal(t, service.DefaultHebbianConfig(), HebbianConfig())
}

func TestScoringPolicyFromEnv(t *testing.T) {
	t.Setenv("WTA_WEIGHT_TRUTH", "0.6")
	t.Setenv("WTA_WEIGHT_VOTE", "not-a-number")
	t.Setenv("WTA_HALF_LIFE", "48h")

	p := ScoringPolicy()
	assert.Equal(t, 0.6, p.WeightTruth)
	assert.Equal(t, service.DefaultScoringPolicy().WeightVote, p.WeightVote)
	assert.Equal(t, 48*time.Hour, p.HalfLife)
}

func TestDurationEnvAcceptsSeconds(t *testing.T) {
	t.Setenv("DECAY_INTERVAL", "90")
	assert.Equal(t, 90*time.Second, DecayInterval())
}

func TestLoadReadsEnvAndSecret(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("HEBBIAN_MAX_WEIGHT=42\n"), 0o600))
	require.NoError(t, os.WriteFile(envFile+".secret", []byte("API_KEY=s3cret\n"), 0o600))

	t.Setenv("PROTOMIND_ENV", envFile)
	t.Setenv("HEBBIAN_MAX_WEIGHT", "")
	t.Setenv("API_KEY", "")
	os.Unsetenv("HEBBIAN_MAX_WEIGHT")
	os.Unsetenv("API_KEY")

	require.NoError(t, Load())
	assert.Equal(t, 42.0, HebbianConfig().MaxWeight)
	assert.Equal(t, "s3cret", APIKey())
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	logger, err := NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	t.Setenv("LOG_LEVEL", "loud")
	_, err = NewLogger()
	assert.Error(t, err)
}
