package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, 1000, cfg.Pipeline.MaxQueueSize)
	assert.Equal(t, 2.0, cfg.Pipeline.MessagesPerSecond)
	assert.Equal(t, 1800, cfg.Pipeline.ReputationIntervalSecs)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.HistoricalPriceTimeout)
	assert.Equal(t, 1e-6, cfg.Filter.MinPrice)
	assert.Equal(t, 10_000.0, cfg.Filter.MinMarketCap)
	assert.Equal(t, 25.0, cfg.Scorer.MaxIC)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, "data/cache", cfg.Historical.CacheDir)
	assert.Equal(t, ":8090", cfg.Source.ListenAddr)
	assert.Equal(t, 256, cfg.Source.Buffer)
}

func TestTelegramValidation(t *testing.T) {
	valid := TelegramConfig{APIID: 12345, APIHash: "0123456789abcdef0123456789abcdef", Phone: "+14155550100"}
	assert.NoError(t, valid.Validate())

	empty := TelegramConfig{}
	assert.NoError(t, empty.Validate(), "bridge-only deployments carry no credentials")

	badID := valid
	badID.APIID = -1
	assert.ErrorContains(t, badID.Validate(), "api_id")

	badHash := valid
	badHash.APIHash = "short"
	assert.ErrorContains(t, badHash.Validate(), "api_hash")

	badPhone := valid
	badPhone.Phone = "415-555-0100"
	assert.ErrorContains(t, badPhone.Validate(), "E.164")
}

func TestLoadRejectsBadCredentials(t *testing.T) {
	_, err := Load(writeConfig(t, `
telegram:
  api_id: 12345
  api_hash: tooshort
  phone: "+14155550100"
`))
	assert.ErrorContains(t, err, "api_hash")
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "pipeline: [not a map"))
	assert.Error(t, err)
}

func TestNormalizeLogLevel(t *testing.T) {
	assert.Equal(t, "INFO", NormalizeLogLevel(""))
	assert.Equal(t, "INFO", NormalizeLogLevel("verbose"))
	assert.Equal(t, "WARNING", NormalizeLogLevel("warn"))
	assert.Equal(t, "ERROR", NormalizeLogLevel(" error "))
	assert.Equal(t, "CRITICAL", NormalizeLogLevel("critical"))
}

func TestExplicitValuesKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
pipeline:
  confidence_threshold: 0.5
  max_queue_size: 50
  messages_per_second: 10
filter:
  min_market_cap: 5000
`))
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, 50, cfg.Pipeline.MaxQueueSize)
	assert.Equal(t, 10.0, cfg.Pipeline.MessagesPerSecond)
	assert.Equal(t, 5000.0, cfg.Filter.MinMarketCap)
}
