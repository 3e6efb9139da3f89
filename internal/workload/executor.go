// Package workload simulates task execution: CPU-proportional busy work followed by
// a random I/O pause.
package workload

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/emkor/rmq-learning/internal/jobs"
)

const (
	// OpsScale converts a task param into busy-loop iterations.
	OpsScale = 1_000_000

	DefaultMaxIOLatency = 100 * time.Millisecond
)

type Executor struct {
	identity     string
	maxIOLatency time.Duration
	rng          *rand.Rand
	now          func() time.Time
	sleep        func(time.Duration)
}

type Option func(*Executor)

// WithMaxIOLatency bounds the simulated I/O pause to [0, d). Zero disables it.
func WithMaxIOLatency(d time.Duration) Option {
	return func(e *Executor) { e.maxIOLatency = d }
}

func WithRand(rng *rand.Rand) Option {
	return func(e *Executor) { e.rng = rng }
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// New returns an executor that stamps completed tasks with identity.
func New(identity string, opts ...Option) *Executor {
	e := &Executor{
		identity:     identity,
		maxIOLatency: DefaultMaxIOLatency,
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:          time.Now,
		sleep:        time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OpsLimit is the number of busy-loop iterations a task param costs.
func OpsLimit(param float64) int64 {
	return int64(math.Floor(param * OpsScale))
}

// Run executes the task and returns its completion record. There is no timeout.
func (e *Executor) Run(task jobs.Task) jobs.DoneTask {
	got := e.stamp(task.Sent)

	result := busy(OpsLimit(task.Param))
	if e.maxIOLatency > 0 {
		e.sleep(time.Duration(e.rng.Float64() * float64(e.maxIOLatency)))
	}

	return jobs.DoneTask{
		Task:   task,
		Got:    got,
		Done:   e.stamp(got),
		Worker: e.identity,
		Result: result,
	}
}

// stamp reads the clock, never going back before floor. Producer and worker clocks
// may disagree, and a DoneTask must keep sent <= got <= done.
func (e *Executor) stamp(floor time.Time) time.Time {
	t := jobs.Timestamp(e.now())
	if t.Before(floor) {
		return floor
	}
	return t
}

func busy(limit int64) int64 {
	var result int64
	for ops := int64(0); ops < limit; ops++ {
		result++
	}
	return result
}
