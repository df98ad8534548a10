package reqengine

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
)

// Strategy selects the delay formula computeDelay uses (spec §4.2).
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
	StrategyCustom      Strategy = "custom"
)

// CustomBackoffFunc computes a delay given the 1-based attempt number and
// the configured base delay, for Strategy == StrategyCustom.
type CustomBackoffFunc func(attempt int, base time.Duration) time.Duration

// RetryConfig controls the retry/backoff engine (spec §3).
type RetryConfig struct {
	Enabled       bool
	MaxAttempts   int
	Strategy      Strategy
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Jitter        bool
	RetryOn       []string // members: "network", "5xx", or a numeric status code
	CustomBackoff CustomBackoffFunc
}

// DefaultRetryConfig mirrors the teacher's DefaultRetryConfig defaults,
// translated onto the spec's exponential/fixed/linear/custom vocabulary.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:     true,
		MaxAttempts: 3,
		Strategy:    StrategyExponential,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
		RetryOn:     []string{"network", "5xx"},
	}
}

// computeDelay implements the four strategies from spec §4.2, caps at
// max, and — if jitter is set — multiplies by a uniformly-random factor
// in [0.5, 1.0) using a cryptographically strong source, the same way the
// teacher's RetryWrapper jitters its constant-backoff delay. Returns a
// floored millisecond-resolution duration.
func computeDelay(cfg RetryConfig, attempt int) time.Duration {
	var delay time.Duration

	switch cfg.Strategy {
	case StrategyFixed:
		delay = cfg.BaseDelay
	case StrategyLinear:
		delay = cfg.BaseDelay * time.Duration(attempt)
	case StrategyExponential:
		delay = cfg.BaseDelay * time.Duration(int64(1)<<uint(attempt-1))
	case StrategyCustom:
		if cfg.CustomBackoff != nil {
			delay = cfg.CustomBackoff(attempt, cfg.BaseDelay)
		}
	default:
		delay = cfg.BaseDelay
	}

	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}

	if cfg.Jitter && delay > 0 {
		delay = time.Duration(float64(delay) * jitterFactor())
	}

	return (delay / time.Millisecond) * time.Millisecond
}

// jitterFactor returns a uniformly-random float64 in [0.5, 1.0) using
// crypto/rand, the same source the teacher uses for its retry jitter.
func jitterFactor() float64 {
	const resolution = 1 << 20
	n, err := rand.Int(rand.Reader, big.NewInt(resolution))
	if err != nil {
		return 0.75
	}
	return 0.5 + (float64(n.Int64())/float64(resolution))*0.5
}

// shouldRetry reports whether a failed attempt is eligible for another
// try (spec §4.2, testable property #2). statusCode is nil for network
// failures (no response received at all).
func shouldRetry(cfg RetryConfig, statusCode *int, attempt int) bool {
	if !cfg.Enabled || attempt >= cfg.MaxAttempts {
		return false
	}

	for _, tag := range cfg.RetryOn {
		switch tag {
		case "network":
			if statusCode == nil {
				return true
			}
		case "5xx":
			if statusCode != nil && *statusCode >= 500 {
				return true
			}
		default:
			if code, err := strconv.Atoi(tag); err == nil && statusCode != nil && *statusCode == code {
				return true
			}
		}
	}
	return false
}

// asGoRetryBackoff exposes an engine RetryConfig as a retry.Backoff so the
// engine can drive its attempt loop with sethvargo/go-retry's retry.Do.
// Following retry.Backoff's contract, Next returns stop=false with
// computeDelay's delay while the call count is within MaxAttempts, and
// stop=true once it exceeds MaxAttempts.
func asGoRetryBackoff(cfg RetryConfig) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		if attempt > cfg.MaxAttempts {
			return 0, true
		}
		return computeDelay(cfg, attempt), false
	})
}
