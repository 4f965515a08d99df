// Package config loads service settings from the environment, an optional
// .env file and an optional YAML file. Environment variables win over the
// file, and the file wins over defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Port           string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string

	ScheduleFile string
	ActualsFile  string
	WatchFiles   bool

	DatabaseURL string
	DBPath      string

	OverrideCodes    []string
	ToleranceMinutes int
	Timezone         string
	Location         *time.Location

	MetricsPushURL string
}

type fileConfig struct {
	Port             string   `yaml:"port"`
	LogLevel         string   `yaml:"log_level"`
	LogFormat        string   `yaml:"log_format"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	ScheduleFile     string   `yaml:"schedule_file"`
	ActualsFile      string   `yaml:"actuals_file"`
	WatchFiles       *bool    `yaml:"watch_files"`
	DatabaseURL      string   `yaml:"database_url"`
	DBPath           string   `yaml:"db_path"`
	OverrideCodes    []string `yaml:"override_codes"`
	ToleranceMinutes *int     `yaml:"tolerance_minutes"`
	Timezone         string   `yaml:"timezone"`
	MetricsPushURL   string   `yaml:"metrics_push_url"`
}

const (
	defaultPort          = "8080"
	defaultLogLevel      = "info"
	defaultLogFormat     = "console"
	defaultOrigins       = "http://localhost:5173"
	defaultScheduleFile  = "schedule.csv"
	defaultActualsFile   = "actuals.csv"
	defaultDBPath        = "attendance.db"
	defaultOverrideCodes = "A,J,V,U,D,H,C,ML"
	defaultTolerance     = 2
	defaultTimezone      = "UTC"
)

// Load reads the configuration. A missing .env file is ignored; a missing
// CONFIG_FILE is an error because it was asked for explicitly.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var file fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	cfg := &Config{
		Port:         firstNonEmpty(os.Getenv("PORT"), file.Port, defaultPort),
		LogLevel:     strings.ToLower(firstNonEmpty(os.Getenv("LOG_LEVEL"), file.LogLevel, defaultLogLevel)),
		LogFormat:    strings.ToLower(firstNonEmpty(os.Getenv("LOG_FORMAT"), file.LogFormat, defaultLogFormat)),
		ScheduleFile: firstNonEmpty(os.Getenv("SCHEDULE_FILE"), file.ScheduleFile, defaultScheduleFile),
		ActualsFile:  firstNonEmpty(os.Getenv("ACTUALS_FILE"), file.ActualsFile, defaultActualsFile),
		DatabaseURL:  firstNonEmpty(os.Getenv("DATABASE_URL"), file.DatabaseURL),
		DBPath:       firstNonEmpty(os.Getenv("DB_PATH"), file.DBPath, defaultDBPath),
		Timezone:     firstNonEmpty(os.Getenv("TIMEZONE"), file.Timezone, defaultTimezone),

		MetricsPushURL: firstNonEmpty(os.Getenv("METRICS_PUSH_URL"), file.MetricsPushURL),
	}

	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = trimAll(file.AllowedOrigins)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = splitList(defaultOrigins)
	}

	cfg.OverrideCodes = splitList(os.Getenv("OVERRIDE_CODES"))
	if len(cfg.OverrideCodes) == 0 {
		cfg.OverrideCodes = trimAll(file.OverrideCodes)
	}
	if len(cfg.OverrideCodes) == 0 {
		cfg.OverrideCodes = splitList(defaultOverrideCodes)
	}

	cfg.WatchFiles = true
	if file.WatchFiles != nil {
		cfg.WatchFiles = *file.WatchFiles
	}
	if v := os.Getenv("WATCH_FILES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WATCH_FILES: %w", err)
		}
		cfg.WatchFiles = b
	}

	cfg.ToleranceMinutes = defaultTolerance
	if file.ToleranceMinutes != nil {
		cfg.ToleranceMinutes = *file.ToleranceMinutes
	}
	if v := os.Getenv("TOLERANCE_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TOLERANCE_MINUTES: %w", err)
		}
		cfg.ToleranceMinutes = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values and resolves the timezone.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(strings.TrimPrefix(c.Port, ":"))
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid PORT %q", c.Port)
	}

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q (use console or json)", c.LogFormat)
	}

	if c.ToleranceMinutes < 0 {
		return errors.New("TOLERANCE_MINUTES must not be negative")
	}
	if len(c.OverrideCodes) == 0 {
		return errors.New("OVERRIDE_CODES must list at least one code")
	}
	if c.ScheduleFile == "" {
		return errors.New("SCHEDULE_FILE is required")
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	c.Location = loc
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

func loadFile(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return trimAll(strings.Split(v, ","))
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
