// Package config assembles process configuration from defaults, an optional
// TOML file, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Server captures process level configuration.
type Server struct {
	Addr          string `toml:"addr"`
	LogLevel      string `toml:"log_level"`
	AdminToken    string `toml:"admin_token"`
	UploadDir     string `toml:"upload_dir"`
	AuditLogPath  string `toml:"audit_log"`
	JWTSigningKey string `toml:"jwt_signing_key"`
	TokenTTL      time.Duration
	SweepInterval time.Duration
	SeedUsername  string `toml:"seed_username"`
	SeedPassword  string `toml:"seed_password"`

	// Defense holds initial overrides for the abuse policies, keyed by the
	// same names the admin config endpoint accepts.
	Defense map[string]any `toml:"defense"`

	// TOML-friendly duration fields, folded into the typed ones after decode.
	TokenTTLRaw      string `toml:"token_ttl"`
	SweepIntervalRaw string `toml:"sweep_interval"`
}

func defaults() Server {
	return Server{
		Addr:          ":8080",
		LogLevel:      "info",
		AdminToken:    "admintoken",
		UploadDir:     "data/uploads",
		AuditLogPath:  "data/logs/events.jsonl",
		JWTSigningKey: "dev-secret-key-change-in-production",
		TokenTTL:      15 * time.Minute,
		SweepInterval: 5 * time.Minute,
		SeedUsername:  "testuser",
		SeedPassword:  "Password123",
	}
}

// Load builds the configuration. A missing file path skips the file layer.
func Load(path string) (Server, error) {
	cfg := defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Server{}, fmt.Errorf("decoding config file %s: %w", path, err)
		}
		if err := cfg.foldDurations(); err != nil {
			return Server{}, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Server) foldDurations() error {
	if c.TokenTTLRaw != "" {
		d, err := time.ParseDuration(c.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("invalid token_ttl: %w", err)
		}
		c.TokenTTL = d
	}
	if c.SweepIntervalRaw != "" {
		d, err := time.ParseDuration(c.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("invalid sweep_interval: %w", err)
		}
		c.SweepInterval = d
	}
	return nil
}

func (c *Server) applyEnv() {
	setString(&c.Addr, "DOCHOST_ADDR")
	setString(&c.LogLevel, "DOCHOST_LOG_LEVEL")
	setString(&c.AdminToken, "DOCHOST_ADMIN_TOKEN")
	setString(&c.UploadDir, "DOCHOST_UPLOAD_DIR")
	setString(&c.AuditLogPath, "DOCHOST_AUDIT_LOG")
	setString(&c.JWTSigningKey, "JWT_SIGNING_KEY")
	setString(&c.SeedUsername, "DOCHOST_SEED_USERNAME")
	setString(&c.SeedPassword, "DOCHOST_SEED_PASSWORD")
	setDuration(&c.TokenTTL, "TOKEN_TTL")
	setDuration(&c.SweepInterval, "DOCHOST_SWEEP_INTERVAL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
