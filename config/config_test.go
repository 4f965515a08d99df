package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"agent-attendance/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "LOG_LEVEL", "LOG_FORMAT", "ALLOWED_ORIGINS", "SCHEDULE_FILE", "ACTUALS_FILE",
	"DATABASE_URL", "DB_PATH", "OVERRIDE_CODES", "TOLERANCE_MINUTES", "TIMEZONE",
	"WATCH_FILES", "METRICS_PUSH_URL", "CONFIG_FILE",
}

// clearEnv blanks every key for the duration of the test. An empty value is
// treated as unset by Load.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, "schedule.csv", cfg.ScheduleFile)
	assert.Equal(t, "actuals.csv", cfg.ActualsFile)
	assert.Equal(t, "attendance.db", cfg.DBPath)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, []string{"A", "J", "V", "U", "D", "H", "C", "ML"}, cfg.OverrideCodes)
	assert.Equal(t, 2, cfg.ToleranceMinutes)
	assert.True(t, cfg.WatchFiles)
	assert.Equal(t, "UTC", cfg.Location.String())
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("OVERRIDE_CODES", "a, j ,x")
	t.Setenv("TOLERANCE_MINUTES", "5")
	t.Setenv("WATCH_FILES", "false")
	t.Setenv("TIMEZONE", "America/Bogota")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"a", "j", "x"}, cfg.OverrideCodes)
	assert.Equal(t, 5, cfg.ToleranceMinutes)
	assert.False(t, cfg.WatchFiles)
	assert.Equal(t, "America/Bogota", cfg.Location.String())
}

func TestLoad_FileOverlay(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7070"
schedule_file: /data/schedule.csv
tolerance_minutes: 0
watch_files: false
override_codes: [A, V]
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "6060")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "6060", cfg.Port, "environment wins over the file")
	assert.Equal(t, "/data/schedule.csv", cfg.ScheduleFile)
	assert.Equal(t, 0, cfg.ToleranceMinutes)
	assert.False(t, cfg.WatchFiles)
	assert.Equal(t, []string{"A", "V"}, cfg.OverrideCodes)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]struct {
		key, value string
	}{
		"BadPort":           {key: "PORT", value: "http"},
		"PortOutOfRange":    {key: "PORT", value: "70000"},
		"BadLogLevel":       {key: "LOG_LEVEL", value: "loud"},
		"BadLogFormat":      {key: "LOG_FORMAT", value: "xml"},
		"BadTolerance":      {key: "TOLERANCE_MINUTES", value: "two"},
		"NegativeTolerance": {key: "TOLERANCE_MINUTES", value: "-1"},
		"BadWatchFiles":     {key: "WATCH_FILES", value: "maybe"},
		"BadTimezone":       {key: "TIMEZONE", value: "Mars/Olympus"},
		"MissingConfigFile": {key: "CONFIG_FILE", value: "/does/not/exist.yaml"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
