package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
)

// Config holds all configuration for the application. It is built exactly
// once at process start and passed by reference to every component; nothing
// mutates it afterwards.
type Config struct {
	// Enabled is the capability flag: true when the directory service is
	// configured and reachable in principle. Every external call checks it
	// first and short-circuits when false.
	Enabled bool

	// ServiceURL is the directory service's HTTP endpoint.
	ServiceURL string

	// StreamURL is the directory service's websocket stream endpoint.
	StreamURL string

	// AppID is the application namespace documents live under.
	AppID string

	// BootstrapToken is an optional credential supplied by the hosting
	// environment, exchanged best-effort for a session at startup.
	BootstrapToken string

	// Port is the local UI gateway port.
	Port int

	// CachePath is the SQLite file for the last-known snapshot cache.
	// Empty disables the cache.
	CachePath string

	// DemoMode runs against an in-process directory seeded with fake data
	// instead of a remote service.
	DemoMode bool
}

// connectionBlob is the JSON document the hosting environment supplies in
// CONNECTLITE_CONFIG.
type connectionBlob struct {
	ServiceURL string `json:"serviceUrl"`
	StreamURL  string `json:"streamUrl"`
	AppID      string `json:"appId"`
}

// Load reads configuration from the environment. The connection blob is
// optional: when it is absent or malformed the returned config has
// Enabled=false and the process runs offline. Load never fails; a bad blob
// is logged as a warning and degraded, not propagated.
func Load(logger *slog.Logger) *Config {
	cfg := &Config{
		Port:           3000,
		CachePath:      envOrDefault("CONNECTLITE_CACHE", "connectlite.db"),
		BootstrapToken: os.Getenv("CONNECTLITE_BOOTSTRAP_TOKEN"),
	}

	if p := os.Getenv("PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			logger.Warn("invalid PORT, using default", "value", p, "error", err)
		} else {
			cfg.Port = port
		}
	}

	if d := os.Getenv("CONNECTLITE_DEMO"); d == "1" || d == "true" {
		cfg.DemoMode = true
		cfg.Enabled = true
		return cfg
	}

	raw := os.Getenv("CONNECTLITE_CONFIG")
	if raw == "" {
		if path := os.Getenv("CONNECTLITE_CONFIG_FILE"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("cannot read connection config, running offline", "path", path, "error", err)
				return cfg
			}
			raw = string(data)
		}
	}
	if raw == "" {
		logger.Warn("no connection config provided, running offline")
		return cfg
	}

	var blob connectionBlob
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		logger.Warn("connection config parse failed, running offline", "error", err)
		return cfg
	}
	if blob.ServiceURL == "" || blob.StreamURL == "" {
		logger.Warn("connection config incomplete, running offline")
		return cfg
	}

	cfg.ServiceURL = blob.ServiceURL
	cfg.StreamURL = blob.StreamURL
	cfg.AppID = blob.AppID
	if cfg.AppID == "" {
		cfg.AppID = "default-app-id"
	}
	cfg.Enabled = true
	return cfg
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
