package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secret
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Quota scheduler
	if c.Quota.CycleLength <= 0 {
		errs = append(errs, "QUOTA_CYCLE must be a positive duration")
	}
	if c.Quota.Workers < 1 {
		errs = append(errs, fmt.Sprintf("QUOTA_WORKERS must be at least 1, got %d", c.Quota.Workers))
	}
	if c.Quota.LeaseTTL <= 0 {
		errs = append(errs, "QUOTA_LEASE_TTL must be a positive duration")
	}
	if c.Quota.RunTimeout > 0 && c.Quota.LeaseTTL < c.Quota.RunTimeout {
		errs = append(errs, "QUOTA_LEASE_TTL must not be shorter than QUOTA_RUN_TIMEOUT")
	}

	// Trigger secret: warn only, the endpoint rejects everything without it
	if c.Quota.TriggerSecret == "" {
		slog.Warn("QUOTA_TRIGGER_SECRET is empty — the reset trigger endpoint is disabled")
	}

	// Admission control
	if c.Admission.Backend != "memory" && c.Admission.Backend != "redis" {
		errs = append(errs, fmt.Sprintf("ADMISSION_BACKEND must be memory or redis, got %q", c.Admission.Backend))
	}
	for class, cl := range map[string]ClassLimit{
		"general": c.Admission.General,
		"batch":   c.Admission.Batch,
		"delete":  c.Admission.Delete,
	} {
		if cl.Limit < 1 {
			errs = append(errs, fmt.Sprintf("ADMISSION_%s_LIMIT must be at least 1, got %d", strings.ToUpper(class), cl.Limit))
		}
		if cl.Window <= 0 {
			errs = append(errs, fmt.Sprintf("ADMISSION_%s_WINDOW must be a positive duration", strings.ToUpper(class)))
		}
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
