package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emkor/rmq-learning/internal/queue"
	"github.com/emkor/rmq-learning/internal/retry"
)

// Prefetch keeps at most one unacknowledged message per worker.
const Prefetch = 1

var ErrReconnectsExhausted = errors.New("reconnect attempts exhausted")

// Dialer opens a fresh consumer connection.
type Dialer func(ctx context.Context) (queue.Consumer, error)

// StatusSetter is told whether the worker is currently consuming.
type StatusSetter interface {
	SetServing(serving bool)
}

type RunnerConfig struct {
	Queue string
	// MaxReconnects bounds consecutive failed reconnects. Zero retries forever.
	MaxReconnects int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
}

// Runner keeps a Worker consuming across connection losses.
type Runner struct {
	dial    Dialer
	worker  *Worker
	cfg     RunnerConfig
	status  StatusSetter
	backoff *retry.Backoff
	log     *logrus.Entry
}

func NewRunner(dial Dialer, w *Worker, cfg RunnerConfig, status StatusSetter, log *logrus.Entry) *Runner {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	return &Runner{
		dial:    dial,
		worker:  w,
		cfg:     cfg,
		status:  status,
		backoff: retry.NewBackoff(cfg.BackoffBase, cfg.BackoffMax, true),
		log:     log,
	}
}

// Run consumes until ctx is cancelled, reconnecting whenever the connection drops.
// It returns the stats summed over every connection.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var total Stats
	defer r.setServing(false)

	for {
		stats, consumed, err := r.session(ctx)
		total.Add(stats)

		if ctx.Err() != nil {
			return total, nil
		}
		if consumed {
			r.backoff.Reset()
		}
		if r.cfg.MaxReconnects > 0 && r.backoff.Attempts() >= r.cfg.MaxReconnects {
			return total, fmt.Errorf("%w after %d attempts: %v", ErrReconnectsExhausted, r.backoff.Attempts(), err)
		}

		delay := r.backoff.Next()
		r.log.WithError(err).WithField("delay", delay).Warn("connection lost, reconnecting")
		if retry.Sleep(ctx, delay) != nil {
			return total, nil
		}
	}
}

// session runs the worker over one connection. consumed reports whether it got as
// far as consuming, which resets the reconnect backoff.
func (r *Runner) session(ctx context.Context) (stats Stats, consumed bool, err error) {
	conn, err := r.dial(ctx)
	if err != nil {
		return Stats{}, false, fmt.Errorf("dial: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			r.log.WithError(err).Debug("close connection")
		}
	}()

	if err := conn.SetPrefetch(Prefetch); err != nil {
		return Stats{}, false, err
	}
	deliveries, err := conn.Consume(r.cfg.Queue)
	if err != nil {
		return Stats{}, false, err
	}

	r.log.WithField("queue", r.cfg.Queue).Info("consuming tasks")
	r.setServing(true)
	stats, err = r.worker.Run(ctx, deliveries)
	r.setServing(false)
	return stats, true, err
}

func (r *Runner) setServing(serving bool) {
	if r.status != nil {
		r.status.SetServing(serving)
	}
}
