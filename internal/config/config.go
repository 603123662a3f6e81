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

type AppConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	DGTVendorID          string        `yaml:"dgt_vendor_id"`
	DGTBaudRate          int           `yaml:"dgt_baud"`
	DGTDiscoveryInterval time.Duration `yaml:"dgt_discovery_interval"`
	DGTRetryDelay        time.Duration `yaml:"dgt_retry_delay"`
	DGTMaxRetryDelay     time.Duration `yaml:"dgt_max_retry_delay"`
	DGTDumpInterval      time.Duration `yaml:"dgt_dump_interval"`

	RedisURL      string `yaml:"redis_url"`
	RedisStateKey string `yaml:"redis_state_key"`
}

func defaults() *AppConfig {
	return &AppConfig{
		Host:                 "localhost",
		Port:                 3000,
		DGTVendorID:          "045b",
		DGTBaudRate:          9600,
		DGTDiscoveryInterval: 500 * time.Millisecond,
		DGTRetryDelay:        time.Second,
		DGTMaxRetryDelay:     30 * time.Second,
		DGTDumpInterval:      5 * time.Second,
		RedisStateKey:        "dgt:state",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// DGTVIEWER_CONFIG (if any), then the environment.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("DGTVIEWER_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("HOST")); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Port = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("DGT_VENDOR_ID")); v != "" {
		cfg.DGTVendorID = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("DGT_BAUD")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DGTBaudRate = n
		}
	}
	envDuration("DGT_DISCOVERY_INTERVAL", &cfg.DGTDiscoveryInterval)
	envDuration("DGT_RETRY_DELAY", &cfg.DGTRetryDelay)
	envDuration("DGT_MAX_RETRY_DELAY", &cfg.DGTMaxRetryDelay)
	envDuration("DGT_DUMP_INTERVAL", &cfg.DGTDumpInterval)

	cfg.RedisURL = firstNonEmpty(strings.TrimSpace(os.Getenv("REDIS_URL")), cfg.RedisURL)
	if v := strings.TrimSpace(os.Getenv("REDIS_STATE_KEY")); v != "" {
		cfg.RedisStateKey = v
	}

	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c *AppConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("HOST is empty")
	}
	if strings.TrimSpace(c.DGTVendorID) == "" {
		return errors.New("DGT_VENDOR_ID is empty")
	}
	if c.DGTBaudRate <= 0 {
		return errors.New("DGT_BAUD must be positive")
	}
	if c.DGTDiscoveryInterval <= 0 || c.DGTRetryDelay <= 0 || c.DGTMaxRetryDelay <= 0 || c.DGTDumpInterval <= 0 {
		return errors.New("DGT delays must be positive")
	}
	if c.DGTMaxRetryDelay < c.DGTRetryDelay {
		return errors.New("DGT_MAX_RETRY_DELAY is below DGT_RETRY_DELAY")
	}
	return nil
}

// Accepts Go durations ("750ms") or plain milliseconds.
func envDuration(key string, dst *time.Duration) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Millisecond
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
