// Package retry decides what happens to a task whose simulated execution failed:
// requeue after a backoff, or dead-letter once the attempt cap is reached.
package retry

import (
	"time"

	"github.com/emkor/rmq-learning/internal/jobs"
)

const (
	DefaultThreshold   = 0.9
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
)

// Source drives the parity check of the failure injection rule.
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Uint64() uint64
}

// ClockSource uses the microsecond part of the wall clock as the parity source.
type ClockSource struct {
	Now func() time.Time
}

func (c ClockSource) Uint64() uint64 {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return uint64(now().Nanosecond() / 1000)
}

// Injector fails heavy tasks at random: param >= threshold and an even draw from src.
type Injector struct {
	threshold float64
	src       Source
}

func NewInjector(threshold float64, src Source) *Injector {
	return &Injector{threshold: threshold, src: src}
}

func (i *Injector) ShouldFail(task jobs.Task) bool {
	if task.Param < i.threshold {
		return false
	}
	return i.src.Uint64()%2 == 0
}

// Policy caps redeliveries of a failing task. MaxAttempts 0 retries forever.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Exhausted reports whether a task that failed for the attempt-th time should be dead-lettered.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}

// Delay is how long to hold a failed delivery before requeueing it.
func (p Policy) Delay(attempt int) time.Duration {
	return Delay(attempt, p.BaseDelay, p.MaxDelay)
}
