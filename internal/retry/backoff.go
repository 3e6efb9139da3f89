package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delay returns base doubled once per attempt after the first, capped at maximum.
// A non-positive base means no delay.
func Delay(attempt int, base, maximum time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maximum/2 {
			return maximum
		}
		delay *= 2
	}
	return min(delay, maximum)
}

// Backoff produces exponentially growing delays with full jitter.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	Jitter  bool
	attempt int
	rng     *rand.Rand
}

func NewBackoff(base, maximum time.Duration, jitter bool) *Backoff {
	return &Backoff{
		Base:   base,
		Max:    maximum,
		Jitter: jitter,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Next returns the delay for the next attempt.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	d := Delay(b.attempt, b.Base, b.Max)
	if !b.Jitter || d <= 0 {
		return d
	}
	return d - time.Duration(b.rng.Int64N(int64(d)))
}

// Attempts is the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempt
}

func (b *Backoff) Reset() {
	b.attempt = 0
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
