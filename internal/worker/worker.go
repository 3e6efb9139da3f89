package worker

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/emkor/rmq-learning/internal/jobs"
	"github.com/emkor/rmq-learning/internal/queue"
	"github.com/emkor/rmq-learning/internal/record"
	"github.com/emkor/rmq-learning/internal/retry"
)

// Outcome is the terminal disposition of one delivery.
type Outcome int

const (
	Acked Outcome = iota
	Requeued
	DeadLettered
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Acked:
		return "acked"
	case Requeued:
		return "requeued"
	case DeadLettered:
		return "dead-lettered"
	case Discarded:
		return "discarded"
	}
	return "unknown"
}

// Stats are the per-loop counters, summarized once at shutdown.
type Stats struct {
	Received     int
	Acked        int
	Requeued     int
	DeadLettered int
	Discarded    int
}

func (s *Stats) count(o Outcome) {
	s.Received++
	switch o {
	case Acked:
		s.Acked++
	case Requeued:
		s.Requeued++
	case DeadLettered:
		s.DeadLettered++
	case Discarded:
		s.Discarded++
	}
}

func (s *Stats) Add(o Stats) {
	s.Received += o.Received
	s.Acked += o.Acked
	s.Requeued += o.Requeued
	s.DeadLettered += o.DeadLettered
	s.Discarded += o.Discarded
}

type Executor interface {
	Run(task jobs.Task) jobs.DoneTask
}

type Injector interface {
	ShouldFail(task jobs.Task) bool
}

// Worker runs the per-message state machine: decode, maybe fail, execute, settle.
type Worker struct {
	executor Executor
	injector Injector
	policy   retry.Policy
	ledger   retry.Ledger
	sink     record.Sink
	log      *logrus.Entry
}

func New(executor Executor, injector Injector, policy retry.Policy, ledger retry.Ledger, sink record.Sink, log *logrus.Entry) *Worker {
	return &Worker{
		executor: executor,
		injector: injector,
		policy:   policy,
		ledger:   ledger,
		sink:     sink,
		log:      log,
	}
}

// Run handles deliveries one at a time until ctx is cancelled or the channel closes.
// A closed channel means the connection was lost and is reported as queue.ErrClosed.
func (w *Worker) Run(ctx context.Context, deliveries <-chan queue.Delivery) (Stats, error) {
	var stats Stats
	for {
		select {
		case <-ctx.Done():
			return stats, nil
		case d, ok := <-deliveries:
			if !ok {
				return stats, queue.ErrClosed
			}
			stats.count(w.Handle(ctx, d))
		}
	}
}

// Handle settles d exactly once. ctx only shortens the retry backoff; execution
// itself always runs to completion.
func (w *Worker) Handle(ctx context.Context, d queue.Delivery) Outcome {
	task, err := jobs.DecodeTask(d.Body())
	if err != nil {
		w.log.WithError(err).WithField("redelivered", d.Redelivered()).Error("malformed task, rejecting without requeue")
		w.settle(d.Reject(false), "reject")
		return Discarded
	}

	log := w.log.WithFields(logrus.Fields{
		"uuid":   task.UUID,
		"sender": task.Sender,
		"param":  task.Param,
	})

	if w.injector.ShouldFail(task) {
		return w.fail(ctx, d, task, log)
	}

	// in-flight work finishes even during shutdown, so bookkeeping ignores cancellation
	bg := context.WithoutCancel(ctx)

	done := w.executor.Run(task)
	if err := w.sink.Record(bg, done); err != nil {
		log.WithError(err).Error("could not record done task")
	}
	log.WithFields(logrus.Fields{
		"took":   done.Took(),
		"waited": done.Waited(),
		"result": done.Result,
	}).Infof("task done in %.6fs", done.Took().Seconds())

	if d.Redelivered() {
		if err := w.ledger.Forget(bg, task.UUID); err != nil {
			log.WithError(err).Warn("could not clear retry ledger")
		}
	}
	w.settle(d.Ack(), "ack")
	return Acked
}

// fail handles a simulated failure. It is an expected outcome, not an error.
func (w *Worker) fail(ctx context.Context, d queue.Delivery, task jobs.Task, log *logrus.Entry) Outcome {
	bg := context.WithoutCancel(ctx)
	attempt, err := w.ledger.Incr(bg, task.UUID)
	if err != nil {
		log.WithError(err).Error("retry ledger unavailable, requeueing without cap")
		w.settle(d.Reject(true), "reject")
		return Requeued
	}
	log = log.WithField("attempt", attempt)

	if w.policy.Exhausted(attempt) {
		log.Warnf("task failed %d times, dead-lettering", attempt)
		if err := w.ledger.Forget(bg, task.UUID); err != nil {
			log.WithError(err).Warn("could not clear retry ledger")
		}
		w.settle(d.Reject(false), "reject")
		return DeadLettered
	}

	delay := w.policy.Delay(attempt)
	log.WithField("delay", delay).Info("simulated failure, requeueing")
	// cancellation cuts the wait short; the reject still happens
	_ = retry.Sleep(ctx, delay)
	w.settle(d.Reject(true), "reject")
	return Requeued
}

// settle logs a failed ack/reject. The broker redelivers anything left unacknowledged.
func (w *Worker) settle(err error, op string) {
	if err != nil {
		w.log.WithError(err).Errorf("%s failed", op)
	}
}
