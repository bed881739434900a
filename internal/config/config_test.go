package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("ALERT_RECIPIENT", "-100123")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Stream.Brokers)
	assert.Equal(t, 5, cfg.Stream.MaxConcurrentOperations)
	assert.Equal(t, time.Second, cfg.Stream.PollTimeout)
	assert.Equal(t, 5*time.Second, cfg.Stream.AcquireTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Alerting.AlertTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Alerting.WarningTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Alerting.HistoryTTL)
	assert.Equal(t, 3, cfg.Delivery.MaxRetryAttempts)
	assert.Equal(t, ":9191", cfg.API.Port)

	limits, ok := cfg.Alerting.Indicators.Lookup(" Pulse ")
	require.True(t, ok)
	assert.Equal(t, 60.0, limits.Min)
	assert.Equal(t, 100.0, limits.Max)
}

func TestLoadReportsMissingAndInvalid(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("ALERT_RECIPIENT", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
	assert.Contains(t, err.Error(), "ALERT_RECIPIENT")

	setBaseEnv(t)
	t.Setenv("MAX_RETRY_ATTEMPTS", "three")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_RETRY_ATTEMPTS")

	t.Setenv("MAX_RETRY_ATTEMPTS", "3")
	t.Setenv("WARNING_THRESHOLD_PERCENT", "30")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadReadsEnvFileAndIndicators(t *testing.T) {
	dir := t.TempDir()
	indicators := filepath.Join(dir, "indicators.toml")
	require.NoError(t, os.WriteFile(indicators, []byte(`
[[indicator]]
name = "Pulse"
min = 50
max = 110
`), 0o600))
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("STREAM_DRIVER=nats\nINDICATORS_FILE="+indicators+"\nALERT_RECIPIENT=ops@example.org\n"), 0o600))

	t.Setenv("ENV_FILE", envFile)
	t.Setenv("KAFKA_BROKERS", "")
	for _, key := range []string{"STREAM_DRIVER", "INDICATORS_FILE", "ALERT_RECIPIENT"} {
		// godotenv never overrides variables that are already set.
		prev, had := os.LookupEnv(key)
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(key, prev)
			} else {
				_ = os.Unsetenv(key)
			}
		})
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "nats", cfg.Stream.Driver)
	assert.Equal(t, []string{"pulse"}, cfg.Alerting.Indicators.Names())
	limits, _ := cfg.Alerting.Indicators.Lookup("PULSE")
	assert.Equal(t, 110.0, limits.Max)
}

func TestParseIndicators(t *testing.T) {
	got, err := ParseIndicators([]byte(`
[[indicator]]
name = "Temperature"
min = 36.0
max = 37.5

[[indicator]]
name = "Weight"
`))
	require.NoError(t, err)

	limits, ok := got.Lookup("temperature")
	require.True(t, ok)
	assert.Equal(t, 37.5, limits.Max)

	limits, ok = got.Lookup("weight")
	assert.True(t, ok)
	assert.Nil(t, limits)

	_, ok = got.Lookup("pulse")
	assert.False(t, ok)
}

func TestParseIndicatorsErrors(t *testing.T) {
	cases := map[string]string{
		"half limits": "[[indicator]]\nname = \"Pulse\"\nmin = 60\n",
		"inverted":    "[[indicator]]\nname = \"Pulse\"\nmin = 100\nmax = 60\n",
		"duplicate":   "[[indicator]]\nname = \"Pulse\"\n[[indicator]]\nname = \"pulse\"\n",
		"empty":       "",
		"no name":     "[[indicator]]\nmin = 1\nmax = 2\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseIndicators([]byte(raw))
			assert.Error(t, err)
		})
	}
}
