// Package producer publishes a steady stream of random tasks.
package producer

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emkor/rmq-learning/internal/jobs"
	"github.com/emkor/rmq-learning/internal/retry"
)

const (
	// LogEvery is how often, in sent tasks, progress is logged.
	LogEvery = 10

	DefaultBackoff = 2 * time.Second
)

type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

type Stats struct {
	Sent   int
	Failed int
}

type Producer struct {
	pub      Publisher
	identity string
	pace     time.Duration
	backoff  time.Duration
	rng      *rand.Rand
	now      func() time.Time
	log      *logrus.Entry
}

type Option func(*Producer)

func WithRand(rng *rand.Rand) Option {
	return func(p *Producer) { p.rng = rng }
}

// WithBackoff sets the pause after a failed publish.
func WithBackoff(d time.Duration) Option {
	return func(p *Producer) { p.backoff = d }
}

func WithClock(now func() time.Time) Option {
	return func(p *Producer) { p.now = now }
}

// New returns a producer that pauses a random [0, pace) between tasks.
func New(pub Publisher, identity string, pace time.Duration, log *logrus.Entry, opts ...Option) *Producer {
	p := &Producer{
		pub:      pub,
		identity: identity,
		pace:     pace,
		backoff:  DefaultBackoff,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run publishes until ctx is cancelled. Publish failures are logged and retried
// with a fresh task after the backoff.
func (p *Producer) Run(ctx context.Context) Stats {
	var stats Stats
	for ctx.Err() == nil {
		task := jobs.NewTask(p.rng.Float64(), p.identity, p.now())
		if err := p.publish(ctx, task); err != nil {
			if ctx.Err() != nil {
				break
			}
			stats.Failed++
			p.log.WithError(err).WithField("uuid", task.UUID).Errorf("could not publish task, retrying in %s", p.backoff)
			if retry.Sleep(ctx, p.backoff) != nil {
				break
			}
			continue
		}

		stats.Sent++
		if stats.Sent%LogEvery == 0 {
			p.log.Infof("already sent %d tasks", stats.Sent)
		}

		pause := time.Duration(p.rng.Float64() * float64(p.pace))
		if retry.Sleep(ctx, pause) != nil {
			break
		}
	}
	return stats
}

func (p *Producer) publish(ctx context.Context, task jobs.Task) error {
	body, err := jobs.Encode(task)
	if err != nil {
		return err
	}
	return p.pub.Publish(ctx, body)
}
