package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config collects everything the server reads from the environment. The
// shared admin password is an explicit value handed to the session manager
// at startup, never a hidden global.
type Config struct {
	Addr          string
	PGDSN         string
	SessionSecret string
	AdminPassword string
	Location      *time.Location
	RateBurst     int
	RatePerSecond int
	AuditBuffer   int
	NIP05Timeout  time.Duration
}

const envPrefix = "NOSTRGATE_"

// Load reads and validates configuration from the environment.
// NOSTRGATE_PG_DSN is optional: without it the server runs on the
// in-memory stores.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:          getenv("ADDR", ":8080"),
		PGDSN:         getenv("PG_DSN", ""),
		SessionSecret: getenv("SESSION_SECRET", ""),
		AdminPassword: getenv("AUTH_PASS", ""),
		Location:      time.UTC,
		RateBurst:     10,
		RatePerSecond: 5,
		AuditBuffer:   256,
		NIP05Timeout:  5 * time.Second,
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("%sSESSION_SECRET must be set", envPrefix)
	}
	if cfg.AdminPassword == "" {
		return nil, fmt.Errorf("%sAUTH_PASS must be set", envPrefix)
	}

	if tz := getenv("TIMEZONE", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("%sTIMEZONE: %w", envPrefix, err)
		}
		cfg.Location = loc
	}

	var err error
	if cfg.RateBurst, err = getenvInt("RATE_BURST", cfg.RateBurst); err != nil {
		return nil, err
	}
	if cfg.RatePerSecond, err = getenvInt("RATE_PER_SECOND", cfg.RatePerSecond); err != nil {
		return nil, err
	}
	if cfg.AuditBuffer, err = getenvInt("AUDIT_BUFFER", cfg.AuditBuffer); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s%s must be a positive integer", envPrefix, key)
	}
	return v, nil
}
