// Package config loads dashboard settings from an optional JSON file.
// Fields are pointers so a partial file only overrides what it names;
// everything else keeps its default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults applied for any field the config file omits.
const (
	DefaultBackendURL         = "http://localhost:8000"
	DefaultListen             = ":8080"
	DefaultPollIntervalMillis = 2000
	DefaultHistoryCapacity    = 30
	DefaultPrefsPath          = "gridwatch.db"
)

// Config is the root dashboard configuration.
type Config struct {
	BackendURL         *string `json:"backend_url,omitempty"`
	Listen             *string `json:"listen,omitempty"`
	PollIntervalMillis *int    `json:"poll_interval_millis,omitempty"`
	HistoryCapacity    *int    `json:"history_capacity,omitempty"`
	PrefsPath          *string `json:"prefs_path,omitempty"`
}

// Load reads a Config from a JSON file. Omitted fields stay nil, so partial
// configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", cleanPath, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cleanPath, err)
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.PollIntervalMillis != nil && *c.PollIntervalMillis < 1 {
		return fmt.Errorf("poll_interval_millis must be positive, got %d", *c.PollIntervalMillis)
	}
	if c.HistoryCapacity != nil && *c.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be positive, got %d", *c.HistoryCapacity)
	}
	return nil
}

// GetBackendURL returns the configured backend URL or its default.
func (c *Config) GetBackendURL() string {
	if c != nil && c.BackendURL != nil {
		return *c.BackendURL
	}
	return DefaultBackendURL
}

// GetListen returns the dashboard listen address or its default.
func (c *Config) GetListen() string {
	if c != nil && c.Listen != nil {
		return *c.Listen
	}
	return DefaultListen
}

// GetPollInterval returns the detection poll cadence or its default.
func (c *Config) GetPollInterval() time.Duration {
	if c != nil && c.PollIntervalMillis != nil {
		return time.Duration(*c.PollIntervalMillis) * time.Millisecond
	}
	return DefaultPollIntervalMillis * time.Millisecond
}

// GetHistoryCapacity returns the rolling history retention or its default.
func (c *Config) GetHistoryCapacity() int {
	if c != nil && c.HistoryCapacity != nil {
		return *c.HistoryCapacity
	}
	return DefaultHistoryCapacity
}

// GetPrefsPath returns the preference database path or its default.
func (c *Config) GetPrefsPath() string {
	if c != nil && c.PrefsPath != nil {
		return *c.PrefsPath
	}
	return DefaultPrefsPath
}
