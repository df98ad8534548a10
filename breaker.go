package reqengine

import (
	"errors"
	"log/slog"
	"time"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig controls the circuit breaker (spec §3).
type BreakerConfig struct {
	FailureThreshold uint32
	ResetTimeout     time.Duration
	HalfOpenMaxCalls uint32

	// OnStateChange is an additional, non-spec observer kept from the
	// teacher's WithStateChangeHandler (see SPEC_FULL.md §C.3). It fires
	// alongside, never instead of, the onCircuitOpen hook.
	OnStateChange func(from, to CircuitState)
	Logger        *slog.Logger
}

// DefaultBreakerConfig mirrors the teacher's DefaultCircuitBreakerConfig
// intent, translated onto the spec's failureThreshold/resetTimeoutMs/
// halfOpenMaxCalls vocabulary.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
		Logger:           slog.Default(),
	}
}

// CircuitState mirrors gobreaker's three states under the spec's naming.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	case CircuitOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker is the cross-request health gate (spec §4.3). It is
// backed by github.com/sony/gobreaker/v2's TwoStepCircuitBreaker, whose
// Allow()/done(success) split maps directly onto the spec's
// check()/recordSuccess()/recordFailure() triad — the same library the
// teacher wraps with CircuitBreakerWrapper, used here in its two-step
// form so the engine can run hooks and build the request between the
// gate check and the outcome record.
type CircuitBreaker struct {
	tcb    *gobreaker.TwoStepCircuitBreaker[struct{}]
	logger *slog.Logger
}

// NewCircuitBreaker constructs a breaker from cfg.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        "reqengine",
		MaxRequests: cfg.HalfOpenMaxCalls,
		Interval:    0, // never auto-clear in CLOSED; only success/transition clears (spec §4.3)
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromState := fromGobreakerState(from)
			toState := fromGobreakerState(to)
			logger.Warn("circuit breaker state changed",
				"name", name, "from", fromState, "to", toState)
			if cfg.OnStateChange != nil {
				func() {
					defer func() {
						if rec := recover(); rec != nil {
							logger.Debug("state-change handler panicked, suppressed", "recovered", rec)
						}
					}()
					cfg.OnStateChange(fromState, toState)
				}()
			}
		},
	}

	return &CircuitBreaker{
		tcb:    gobreaker.NewTwoStepCircuitBreaker[struct{}](settings),
		logger: logger,
	}
}

// Check gates an attempt (spec §4.3's check()). On success it returns a
// done function the caller MUST invoke exactly once with the attempt's
// outcome. On rejection it returns a *CircuitOpenError and a nil done.
func (b *CircuitBreaker) Check() (done func(success bool), err error) {
	done, allowErr := b.tcb.Allow()
	if allowErr == nil {
		return done, nil
	}

	counts := b.Counts()
	jpCounts := jperrors.CircuitCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}

	switch {
	case errors.Is(allowErr, gobreaker.ErrOpenState):
		return nil, wrapBreakerRejection("open", jpCounts, allowErr)
	case errors.Is(allowErr, gobreaker.ErrTooManyRequests):
		return nil, wrapBreakerRejection("half-open", jpCounts, allowErr)
	default:
		return nil, wrapBreakerRejection("open", jpCounts, allowErr)
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() CircuitState {
	return fromGobreakerState(b.tcb.State())
}

// BreakerCounts snapshots the breaker's internal counters.
type BreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Counts snapshots the breaker's internal counters.
func (b *CircuitBreaker) Counts() BreakerCounts {
	c := b.tcb.Counts()
	return BreakerCounts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

// Failures exposes the breaker's consecutive-failure counter for health
// reporting (spec §4.3's getFailures(), reported by Health() as
// RecentFailures per §9.2's resolved ambiguity).
func (b *CircuitBreaker) Failures() uint32 {
	return b.Counts().ConsecutiveFailures
}

func fromGobreakerState(s gobreaker.State) CircuitState {
	switch s {
	case gobreaker.StateClosed:
		return CircuitClosed
	case gobreaker.StateHalfOpen:
		return CircuitHalfOpen
	case gobreaker.StateOpen:
		return CircuitOpen
	default:
		return CircuitClosed
	}
}
