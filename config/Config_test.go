package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultBackendURL, cfg.BackendURL)
	assert.Equal(t, DefaultNatsURL, cfg.NatsURL)
	assert.Equal(t, DefaultStepDelay, cfg.StepDelay)
	assert.Equal(t, DefaultMeterTick, cfg.MeterTick)
	assert.Zero(t, cfg.ChargePointID)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
backend_url: http://records:8001
nats_url: nats://bus:4222
charge_point_id: 12
log_level: debug
step_delay: 500ms
meter_tick: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://records:8001", cfg.BackendURL)
	assert.Equal(t, "nats://bus:4222", cfg.NatsURL)
	assert.Equal(t, 12, cfg.ChargePointID)
	assert.Equal(t, 500*time.Millisecond, cfg.StepDelay)
	assert.Equal(t, 250*time.Millisecond, cfg.MeterTick)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, DefaultQueueSize, cfg.QueueSize)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "backend_url: http://records:8001\ncharge_point_id: 12\n")
	t.Setenv(envVarBackendURL, "http://override:9000")
	t.Setenv(envVarChargePointID, "44")
	t.Setenv(envVarStepDelay, "0s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://override:9000", cfg.BackendURL)
	assert.Equal(t, 44, cfg.ChargePointID)
	assert.Zero(t, cfg.StepDelay)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown log level", content: "log_level: chatty\n"},
		{name: "bad backend url", content: "backend_url: not a url\n"},
		{name: "negative charge point", content: "charge_point_id: -1\n"},
		{name: "malformed yaml", content: "backend_url: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnvRejectsMalformedNumbers(t *testing.T) {
	t.Parallel()

	lookup := func(values map[string]string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			v, ok := values[key]
			return v, ok
		}
	}

	cfg := Default()
	assert.Error(t, cfg.applyEnv(lookup(map[string]string{envVarChargePointID: "twelve"})))
	assert.Error(t, cfg.applyEnv(lookup(map[string]string{envVarMeterTick: "often"})))

	require.NoError(t, cfg.applyEnv(lookup(map[string]string{envVarNatsUser: "twin", envVarNatsPassword: "pw"})))
	assert.Equal(t, "twin", cfg.NatsUser)
	assert.Equal(t, "pw", cfg.NatsPassword)
}
