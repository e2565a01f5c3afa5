package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"frachter/internal/token"
)

// ValidationError is one rejected setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator collects every problem so startup reports them all at once.
type Validator struct {
	errors []ValidationError
}

// AddError records a problem with field.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if anything was rejected.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Error formats all recorded problems.
func (v *Validator) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d error(s):\n", len(v.errors))
	for i, err := range v.errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidateRequired rejects an empty value.
func (v *Validator) ValidateRequired(key, value string) {
	if value == "" {
		v.AddError(key, "required environment variable not set")
	}
}

// ValidateMinLength rejects non-empty values shorter than minLen.
func (v *Validator) ValidateMinLength(key, value string, minLen int) {
	if value == "" {
		return
	}
	if len(value) < minLen {
		v.AddError(key, fmt.Sprintf("must be at least %d characters long (got %d)", minLen, len(value)))
	}
}

// ValidateEnum validates that a value is one of allowed options.
func (v *Validator) ValidateEnum(key, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}
	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

// ValidatePositiveDuration rejects zero and negative durations.
func (v *Validator) ValidatePositiveDuration(key string, d time.Duration) {
	if d <= 0 {
		v.AddError(key, "must be a positive duration")
	}
}

// Validate checks c and returns every problem found.
func (c Config) Validate() error {
	v := &Validator{}

	v.ValidateRequired("FRACHTER_TOKEN", c.Token)
	v.ValidateMinLength("FRACHTER_TOKEN", c.Token, 16)

	v.ValidateRequired("FRACHTER_JWT_SECRET", c.JWTSecret)
	if c.JWTSecret != "" {
		if key, encoded := token.DecodeSecret(c.JWTSecret); len(key) < 32 {
			msg := "must be at least 32 bytes"
			if encoded {
				msg = fmt.Sprintf("is read as base64 and decodes to %d bytes; at least 32 are required", len(key))
			}
			v.AddError("FRACHTER_JWT_SECRET", msg)
		}
	}

	v.ValidateEnum("FRACHTER_LOG_FORMAT", c.LogFormat, []string{"", "json", "text"})
	v.ValidateEnum("FRACHTER_LOG_LEVEL", c.LogLevel, []string{"debug", "info", "warn", "error"})
	v.ValidateEnum("FRACHTER_ENV", c.Env, []string{"development", "production", "staging"})

	if c.BridgeCapacity < 1 {
		v.AddError("FRACHTER_BRIDGE_CAPACITY", "must be at least 1")
	}
	if c.CreateRateLimit < 0 {
		v.AddError("FRACHTER_CREATE_RATE_LIMIT", "must not be negative")
	}

	v.ValidatePositiveDuration("FRACHTER_TOKEN_TTL", c.TokenTTL)
	v.ValidatePositiveDuration("FRACHTER_PENDING_TTL", c.PendingTTL)
	v.ValidatePositiveDuration("FRACHTER_STATUS_TTL", c.StatusTTL)
	v.ValidatePositiveDuration("FRACHTER_MIN_RECHECK", c.MinRecheck)
	v.ValidatePositiveDuration("FRACHTER_MAX_RECHECK", c.MaxRecheck)
	v.ValidatePositiveDuration("FRACHTER_WAIT_TIMEOUT", c.WaitTimeout)
	v.ValidatePositiveDuration("FRACHTER_RECEIVE_TIMEOUT", c.ReceiveTimeout)
	v.ValidatePositiveDuration("FRACHTER_SEND_TIMEOUT", c.SendTimeout)

	for _, p := range c.TrustedProxies {
		if !validProxy(strings.TrimSpace(p)) {
			v.AddError("FRACHTER_TRUSTED_PROXIES", fmt.Sprintf("%q is not an IP address or CIDR range", p))
		}
	}

	if c.DatabaseURL != "" {
		if !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
			v.AddError("FRACHTER_DATABASE_URL", "must be a valid PostgreSQL connection string")
		}
		v.ValidatePositiveDuration("FRACHTER_AUDIT_RETENTION", c.AuditRetention)
		v.ValidatePositiveDuration("FRACHTER_AUDIT_PRUNE_INTERVAL", c.AuditPruneInterval)
	}

	if v.HasErrors() {
		return v
	}
	return nil
}

func validProxy(s string) bool {
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
