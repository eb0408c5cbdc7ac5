package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is read from an optional YAML file; environment variables win over
// the file.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Viewer  ViewerConfig  `yaml:"viewer"`
}

type ServiceConfig struct {
	Port            string        `yaml:"port"`
	DatabaseURL     string        `yaml:"database_url"`
	RedisURL        string        `yaml:"redis_url"`
	FrontendBaseURL string        `yaml:"frontend_base_url"`
	JWTSecret       string        `yaml:"jwt_secret"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	AutoAdvance     bool          `yaml:"auto_advance"`
}

type ViewerConfig struct {
	ServerURL      string        `yaml:"server_url"`
	TeamID         string        `yaml:"team_id"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
	DriftThreshold float64       `yaml:"drift_threshold"`
}

func defaults() Config {
	return Config{
		Service: ServiceConfig{
			Port:            "3002",
			FrontendBaseURL: "http://localhost:5175",
			TickInterval:    time.Second,
			AutoAdvance:     true,
		},
		Viewer: ViewerConfig{
			ServerURL:      "ws://localhost:3002/ws",
			PollInterval:   time.Second,
			ResyncInterval: 10 * time.Second,
			DriftThreshold: 2,
		},
	}
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	s := &cfg.Service
	s.Port = getenv("PORT", s.Port)
	s.DatabaseURL = getenv("DATABASE_URL", s.DatabaseURL)
	s.RedisURL = getenv("REDIS_URL", s.RedisURL)
	s.FrontendBaseURL = getenv("FRONTEND_BASE_URL", s.FrontendBaseURL)
	s.JWTSecret = getenv("JWT_SECRET", s.JWTSecret)
	s.TickInterval = getDuration("TICK_INTERVAL", s.TickInterval)
	s.AutoAdvance = getBool("AUTO_ADVANCE", s.AutoAdvance)

	v := &cfg.Viewer
	v.ServerURL = getenv("SERVER_URL", v.ServerURL)
	v.TeamID = getenv("TEAM_ID", v.TeamID)
	v.PollInterval = getDuration("POLL_INTERVAL", v.PollInterval)
	v.ResyncInterval = getDuration("RESYNC_INTERVAL", v.ResyncInterval)
	v.DriftThreshold = getFloat("DRIFT_THRESHOLD", v.DriftThreshold)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Service.TickInterval <= 0 {
		return errors.New("config: tick_interval must be positive")
	}
	if c.Viewer.PollInterval <= 0 || c.Viewer.ResyncInterval <= 0 {
		return errors.New("config: viewer intervals must be positive")
	}
	if c.Viewer.DriftThreshold <= 0 {
		return errors.New("config: drift_threshold must be positive")
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// getDuration accepts Go duration strings ("1500ms") or plain seconds.
func getDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs := getenvInt(k, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func getBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getFloat(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
