package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinfoilhat/hatscore/internal/plan"
	"github.com/tinfoilhat/hatscore/internal/sampler"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "dev", cfg.Server.Env)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, CacheDriverPostgres, cfg.Cache.Driver)
	assert.Equal(t, 0, cfg.Scanner.RetryAttempts)
	assert.Equal(t, sampler.DefaultCaptureTimeout, cfg.Scanner.CaptureTimeout)
	assert.Equal(t, int64(sampler.DefaultNumSamples), cfg.Scanner.NumSamples)
	assert.Equal(t, sampler.DefaultCalibrationOffsetDB, cfg.Scanner.CalibrationOffsetDB)
	assert.True(t, cfg.Scanner.EnableAmp)
	assert.Equal(t, plan.DefaultNumFrequencies, cfg.Plan.NumFrequencies)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.AWS.ArchiveEnabled)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "http://display.local, http://operator.local")
	t.Setenv("CACHE_DRIVER", "SQLite")
	t.Setenv("CACHE_SQLITE_PATH", "/var/lib/hatscore/cache.db")
	t.Setenv("SCAN_RETRY_ATTEMPTS", "2")
	t.Setenv("SCAN_RETRY_DELAY", "250ms")
	t.Setenv("HACKRF_CAPTURE_TIMEOUT", "3s")
	t.Setenv("HACKRF_SERIAL", "0000000000000000a06063c8234e925f")
	t.Setenv("HACKRF_ENABLE_AMP", "false")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"http://display.local", "http://operator.local"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, CacheDriverSQLite, cfg.Cache.Driver)
	assert.Equal(t, "/var/lib/hatscore/cache.db", cfg.Cache.SQLitePath)
	assert.Equal(t, 2, cfg.Scanner.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Scanner.RetryDelay)
	assert.Equal(t, 3*time.Second, cfg.Scanner.CaptureTimeout)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, 1, cfg.MQTT.QoS)

	sc := cfg.SamplerConfig()
	assert.Equal(t, "0000000000000000a06063c8234e925f", sc.Serial)
	assert.False(t, sc.EnableAmp)
	assert.NoError(t, sc.Validate())
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ENVIRONMENT", "test")

	content := "PORT=7070\nPLAN_NUM_FREQUENCIES=12\nMETRICS_ENABLED=false\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test"), []byte(content), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Server.Env)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 12, cfg.Plan.NumFrequencies)
	assert.False(t, cfg.Metrics.Enabled)

	// the environment still wins over the file
	t.Setenv("PORT", "6060")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "6060", cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown cache driver", map[string]string{"CACHE_DRIVER": "redis"}},
		{"negative retries", map[string]string{"SCAN_RETRY_ATTEMPTS": "-1"}},
		{"inverted plan range", map[string]string{"PLAN_MIN_MHZ": "3000", "PLAN_MAX_MHZ": "100"}},
		{"bad qos", map[string]string{"MQTT_QOS": "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{URL: "postgres://localhost/hatscore"},
			Scanner:  ScannerConfig{CaptureTimeout: time.Second},
			Plan:     PlanConfig{NumFrequencies: 50, MinMHz: 2, MaxMHz: 5900},
			Cache:    CacheConfig{Driver: CacheDriverSQLite, SQLitePath: "cache.db"},
		}
	}
	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Cache.SQLitePath = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.AWS.ArchiveEnabled = true
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Database.URL = ""
	assert.Error(t, cfg.Validate())

	// a plan file replaces the generated range
	cfg = valid()
	cfg.Plan = PlanConfig{File: "plan.yaml"}
	assert.NoError(t, cfg.Validate())
}

func TestLoadPlan(t *testing.T) {
	cfg := &Config{Plan: PlanConfig{NumFrequencies: 10, MinMHz: 2, MaxMHz: 5900}}
	p, err := cfg.LoadPlan()
	require.NoError(t, err)
	assert.LessOrEqual(t, p.Len(), 10)
	assert.Greater(t, p.Len(), 0)

	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	yaml := "frequencies:\n  - frequency_hz: 88000000\n    band: FM\n  - frequency_hz: 2400000000\n    band: WiFi\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg.Plan.File = path
	p, err = cfg.LoadPlan()
	require.NoError(t, err)
	assert.Equal(t, []int64{88_000_000, 2_400_000_000}, p.Frequencies())
}
