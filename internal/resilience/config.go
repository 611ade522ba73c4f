package resilience

import "time"

func millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// FromRetryConfig builds a RetryConfig from config-file units. Non-positive
// values keep the defaults, except a zero jitter which disables jitter.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier, jitterFraction float64) RetryConfig {
	rc := DefaultRetryConfig()
	if maxAttempts > 0 {
		rc.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		rc.InitialBackoff = millis(initialBackoffMs)
	}
	if maxBackoffMs > 0 {
		rc.MaxBackoff = millis(maxBackoffMs)
	}
	if multiplier > 0 {
		rc.Multiplier = multiplier
	}
	if jitterFraction >= 0 {
		rc.JitterFraction = jitterFraction
	}
	return rc
}

// FromCircuitConfig builds a CircuitBreakerConfig from config-file units.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cc := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cc.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cc.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cc
}
