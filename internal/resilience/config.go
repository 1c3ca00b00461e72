package resilience

import (
	"time"

	"github.com/sells-group/outreach-cli/internal/config"
)

// RetryFromConfig builds the whole-company retry policy from batch settings.
func RetryFromConfig(cfg config.BatchConfig) RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.RetryAttempts > 0 {
		rc.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBackoffMs > 0 {
		rc.InitialBackoff = time.Duration(cfg.RetryBackoffMs) * time.Millisecond
	}
	return rc
}

// BreakersFromConfig builds per-collaborator breakers from batch settings.
// A zero threshold disables breakers and returns nil.
func BreakersFromConfig(cfg config.BatchConfig) *ServiceBreakers {
	if cfg.BreakerThreshold <= 0 {
		return nil
	}
	cb := DefaultCircuitBreakerConfig()
	cb.FailureThreshold = cfg.BreakerThreshold
	if cfg.BreakerResetSecs > 0 {
		cb.ResetTimeout = time.Duration(cfg.BreakerResetSecs) * time.Second
	}
	return NewServiceBreakers(cb)
}
