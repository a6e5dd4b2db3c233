package apiclient

import (
	"errors"
	"sync"
	"time"

	"github.com/xaviermatuz/formdesk/internal/config"
)

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("apiclient: circuit breaker is open")

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	case BreakerOpen:
		return "open"
	}
	return "unknown"
}

// minRateSamples is the number of calls a window needs before its error rate
// can trip the breaker.
const minRateSamples = 10

// Breaker guards the forms API. It opens after FailureThreshold consecutive
// failures, or when the error rate within ErrorRateWindow reaches
// ErrorRateThreshold, and closes again after SuccessThreshold consecutive
// successful trial calls. Safe for concurrent use.
type Breaker struct {
	cfg      config.CircuitBreakerConfig
	now      func() time.Time
	onChange func(BreakerState)

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time

	windowStart    time.Time
	windowCalls    int
	windowFailures int
}

// NewBreaker creates a closed breaker. Zero thresholds fall back to 5
// failures, 2 successes and a 30s open period. onChange, when non-nil, is
// called with the lock held whenever the state changes and must not block.
func NewBreaker(cfg config.CircuitBreakerConfig, onChange func(BreakerState)) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	b := &Breaker{cfg: cfg, now: time.Now, onChange: onChange}
	b.windowStart = b.now()
	return b
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expireOpen()
	if b.state == BreakerOpen {
		return ErrCircuitOpen
	}
	return nil
}

// Success records a call that reached the API and got a non-5xx answer.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
		b.count(false)
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.setState(BreakerClosed)
		}
	}
}

// Failure records a call that failed at the transport level or with a 5xx.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		b.count(true)
		if b.failures >= b.cfg.FailureThreshold || b.rateExceeded() {
			b.setState(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.setState(BreakerOpen)
	}
}

// State returns the current state, moving an expired open breaker to
// half-open.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireOpen()
	return b.state
}

func (b *Breaker) expireOpen() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.Timeout {
		b.setState(BreakerHalfOpen)
	}
}

func (b *Breaker) setState(s BreakerState) {
	if b.state == s {
		return
	}
	b.state = s
	b.failures, b.successes = 0, 0
	if s == BreakerOpen {
		b.openedAt = b.now()
	}
	b.resetWindow()
	if b.onChange != nil {
		b.onChange(s)
	}
}

func (b *Breaker) count(failed bool) {
	if b.cfg.ErrorRateWindow <= 0 {
		return
	}
	if b.now().Sub(b.windowStart) > b.cfg.ErrorRateWindow {
		b.resetWindow()
	}
	b.windowCalls++
	if failed {
		b.windowFailures++
	}
}

func (b *Breaker) resetWindow() {
	b.windowStart = b.now()
	b.windowCalls, b.windowFailures = 0, 0
}

func (b *Breaker) rateExceeded() bool {
	if b.cfg.ErrorRateThreshold <= 0 || b.cfg.ErrorRateWindow <= 0 || b.windowCalls < minRateSamples {
		return false
	}
	return float64(b.windowFailures)/float64(b.windowCalls) >= b.cfg.ErrorRateThreshold
}
