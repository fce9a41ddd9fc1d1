package walletauth

import (
	"errors"
	"time"
)

// OTPConfig bounds one verification leg of a session.
type OTPConfig struct {
	// Expiry is the ephemeral session TTL. Both the login and phone-change
	// machines stamp expiresAt = createdAt + Expiry at session creation.
	Expiry time.Duration
	// MaxAttempts is the per-leg verification ceiling. Reaching it destroys
	// the session.
	MaxAttempts int
}

// RateLimitConfig tunes the fixed-window challenge-issuance limiter.
type RateLimitConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// SweepConfig controls the background eviction task.
type SweepConfig struct {
	Interval time.Duration
}

// Config carries the orchestrator constants. These are fixed at build time
// and not runtime-tunable.
type Config struct {
	OTP       OTPConfig
	RateLimit RateLimitConfig
	Sweep     SweepConfig
}

// DefaultConfig returns the production constants: 300s session expiry, 5 OTP
// attempts per leg, 3 challenge issuances per 300s window, 5 minute sweep.
func DefaultConfig() Config {
	return Config{
		OTP: OTPConfig{
			Expiry:      5 * time.Minute,
			MaxAttempts: 5,
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: 3,
			Window:      5 * time.Minute,
		},
		Sweep: SweepConfig{
			Interval: 5 * time.Minute,
		},
	}
}

// Validate checks internal consistency. Called by [Builder.Build].
func (c Config) Validate() error {
	if c.OTP.Expiry <= 0 {
		return errors.New("OTP.Expiry must be positive")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP.MaxAttempts must be positive")
	}
	if c.RateLimit.MaxAttempts <= 0 {
		return errors.New("RateLimit.MaxAttempts must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit.Window must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return errors.New("Sweep.Interval must be positive")
	}
	return nil
}
