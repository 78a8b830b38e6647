// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

// Package config provides layered configuration loading via Koanf v2.
//
// Sources, lowest to highest priority:
//  1. Built-in defaults
//  2. Config file (config.yaml, or CONFIG_PATH override)
//  3. Environment variables (PULSE_ prefix, e.g. PULSE_SERVER_PORT)
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Pulse server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	Session   SessionConfig   `koanf:"session"`
	Templates TemplatesConfig `koanf:"templates"`
	API       APIConfig       `koanf:"api"`
	Logging   LoggingConfig   `koanf:"logging"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

// ServerConfig captures HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig captures DuckDB settings for the event store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" is accepted for tests.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"maxmemory"`
	// Threads is the DuckDB thread count; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// AuthConfig captures the token registry settings.
//
// When Enabled is false the server runs single-tenant: no token header is
// required and partitions are keyed by page alone.
type AuthConfig struct {
	Enabled bool `koanf:"enabled"`
	// Store is the BadgerDB directory holding provisioned token records.
	Store string `koanf:"store"`
	// SeedFile is an optional YAML file of token records loaded into the
	// store at startup. Token provisioning itself happens out-of-band.
	SeedFile string `koanf:"seedfile"`
}

// SessionConfig captures session cookie behavior.
type SessionConfig struct {
	Cookie  string        `koanf:"cookie"`
	Consent string        `koanf:"consent"`
	TTL     time.Duration `koanf:"ttl"`
}

// TemplatesConfig locates the template-data files used to bootstrap empty
// partitions on first access.
type TemplatesConfig struct {
	Dir string `koanf:"dir"`
}

// APIConfig captures query result sizing.
type APIConfig struct {
	DefaultLimit int `koanf:"defaultlimit"`
	MaxLimit     int `koanf:"maxlimit"`
}

// LoggingConfig captures zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// CORSConfig captures cross-origin settings. Tracked sites call the ingest
// endpoint from the browser, so credentialed CORS is part of the product.
type CORSConfig struct {
	Origins []string `koanf:"origins"`
}

// RateLimitConfig captures per-IP request throttling.
type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Disabled bool          `koanf:"disabled"`
}

// defaultConfig returns a Config with all default values. These are applied
// first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    3001,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/pulse.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Auth: AuthConfig{
			Enabled:  true,
			Store:    "/data/tokens",
			SeedFile: "",
		},
		Session: SessionConfig{
			Cookie:  "sessionId",
			Consent: "cookiesAccepted",
			TTL:     30 * 24 * time.Hour,
		},
		Templates: TemplatesConfig{
			Dir: "/data/templates",
		},
		API: APIConfig{
			DefaultLimit: 100,
			MaxLimit:     1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			Origins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			Requests: 300,
			Window:   1 * time.Minute,
		},
	}
}

// Validate checks the configuration for values that cannot possibly work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Session.Cookie == "" || c.Session.Consent == "" {
		return fmt.Errorf("session cookie names must not be empty")
	}
	if c.API.DefaultLimit < 1 {
		return fmt.Errorf("api.defaultlimit must be at least 1")
	}
	if c.API.MaxLimit < c.API.DefaultLimit {
		return fmt.Errorf("api.maxlimit %d below api.defaultlimit %d", c.API.MaxLimit, c.API.DefaultLimit)
	}
	if c.Auth.Enabled && c.Auth.Store == "" {
		return fmt.Errorf("auth.store is required when auth is enabled")
	}
	return nil
}
