package retry

import (
	"time"

	"chatlink/internal/constants"
)

// Schedule is a fixed ascending reconnect backoff schedule. The last delay
// repeats once the attempt counter runs past the end of the list, up to
// MaxAttempts total attempts.
type Schedule struct {
	delays      []time.Duration
	maxAttempts int
}

// NewSchedule builds a schedule from per-attempt delays in seconds.
// Empty or invalid inputs fall back to the defaults.
func NewSchedule(delaysSec []int, maxAttempts int) *Schedule {
	if len(delaysSec) == 0 {
		delaysSec = constants.DefaultBackoffDelaysSec
	}
	if maxAttempts <= 0 {
		maxAttempts = constants.DefaultMaxReconnectAttempts
	}

	delays := make([]time.Duration, 0, len(delaysSec))
	for _, sec := range delaysSec {
		if sec < 0 {
			sec = 0
		}
		delays = append(delays, time.Duration(sec)*time.Second)
	}

	return &Schedule{
		delays:      delays,
		maxAttempts: maxAttempts,
	}
}

// NewScheduleFromDelays builds a schedule from explicit per-attempt delays.
// Empty or invalid inputs fall back to the defaults.
func NewScheduleFromDelays(delays []time.Duration, maxAttempts int) *Schedule {
	if len(delays) == 0 {
		return NewSchedule(nil, maxAttempts)
	}
	if maxAttempts <= 0 {
		maxAttempts = constants.DefaultMaxReconnectAttempts
	}

	clean := make([]time.Duration, 0, len(delays))
	for _, d := range delays {
		if d < 0 {
			d = 0
		}
		clean = append(clean, d)
	}

	return &Schedule{
		delays:      clean,
		maxAttempts: maxAttempts,
	}
}

// DefaultSchedule returns the stock schedule: 1s, 2s, 5s, 10s, 30s, capped at
// the default attempt ceiling.
func DefaultSchedule() *Schedule {
	return NewSchedule(constants.DefaultBackoffDelaysSec, constants.DefaultMaxReconnectAttempts)
}

// DelayFor returns the delay before the given attempt. Attempts are numbered
// from 1; attempts past the schedule length reuse the last delay.
func (s *Schedule) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(s.delays) {
		return s.delays[len(s.delays)-1]
	}
	return s.delays[attempt-1]
}

// Exhausted reports whether the given attempt count has reached the ceiling.
func (s *Schedule) Exhausted(attempt int) bool {
	return attempt >= s.maxAttempts
}

// MaxAttempts returns the attempt ceiling.
func (s *Schedule) MaxAttempts() int {
	return s.maxAttempts
}
