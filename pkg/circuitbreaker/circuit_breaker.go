// Package circuitbreaker guards calls to the remote history API so a
// struggling backend is not hammered while the live channel keeps running.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker trips after maxFailures consecutive failures and stays open for
// the cooldown. After the cooldown a single probe call is let through; its
// outcome closes the breaker or re-opens it.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	logger      *logrus.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a closed breaker.
func New(name string, maxFailures int, cooldown time.Duration, logger *logrus.Logger) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		logger:      logger,
	}
}

// Do runs fn unless the breaker is open. An open breaker fails fast with
// *OpenError without invoking fn.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return &OpenError{Name: b.name, RetryAfter: b.cooldown - time.Since(b.openedAt)}
		}
		b.state = StateHalfOpen
		b.probing = true
		b.logger.WithField("breaker", b.name).Info("Circuit breaker probing after cooldown")
		return nil
	case StateHalfOpen:
		if b.probing {
			return &OpenError{Name: b.name, RetryAfter: b.cooldown}
		}
		b.probing = true
		return nil
	default:
		return &OpenError{Name: b.name}
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state != StateClosed {
			b.logger.WithField("breaker", b.name).Info("Circuit breaker closed after successful probe")
		}
		b.state = StateClosed
		b.failures = 0
		b.probing = false
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.trip()
	case StateClosed:
		b.failures++
		if b.failures >= b.maxFailures {
			b.trip()
		}
	}
	b.probing = false
}

// trip must be called with the mutex held.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = time.Now()
	b.logger.WithFields(logrus.Fields{
		"breaker":  b.name,
		"failures": b.failures,
		"cooldown": b.cooldown,
	}).Warn("Circuit breaker opened")
}

// CurrentState returns the breaker state without side effects.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// OpenError reports a call rejected by an open breaker.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker %q is open, retry in %s", e.Name, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// IsOpenError reports whether err is a breaker rejection rather than a
// failure of the guarded call itself.
func IsOpenError(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}
