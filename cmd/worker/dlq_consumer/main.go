package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/emkor/rmq-learning/internal/config"
	"github.com/emkor/rmq-learning/internal/jobs"
	"github.com/emkor/rmq-learning/internal/logging"
	"github.com/emkor/rmq-learning/internal/queue"
)

func main() {
	cfg, logCfg, err := config.LoadBroker()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	if err := logging.Setup(logCfg.Level, logCfg.Format); err != nil {
		logrus.Fatalf("logging: %v", err)
	}
	log := logging.For("dlq", jobs.ProcHost())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rmq, err := queue.NewRabbitMQ(cfg.QueueConfig())
	if err != nil {
		log.Fatalf("DLQ connect failed: %v", err)
	}
	defer rmq.Close()

	if err := rmq.SetPrefetch(10); err != nil {
		log.Fatalf("DLQ qos failed: %v", err)
	}
	msgs, err := rmq.Consume(cfg.DeadLetterQueue())
	if err != nil {
		log.Fatalf("DLQ consume failed: %v", err)
	}

	log.WithField("queue", cfg.DeadLetterQueue()).Info("DLQ consumer running")

	drained := drain(ctx, msgs, log)
	log.Infof("DLQ consumer stopped after %d dead tasks", drained)
}

// drain logs and acks every dead message until ctx is cancelled or msgs closes.
func drain(ctx context.Context, msgs <-chan queue.Delivery, log *logrus.Entry) int {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n
		case msg, ok := <-msgs:
			if !ok {
				log.Warn("DLQ connection closed")
				return n
			}
			handleDead(msg, log)
			n++
		}
	}
}

func handleDead(msg queue.Delivery, log *logrus.Entry) {
	rec, err := jobs.Decode(msg.Body())
	switch {
	case err != nil:
		log.WithError(err).WithField("body", string(msg.Body())).Warn("DEAD MESSAGE: malformed")
	default:
		switch r := rec.(type) {
		case jobs.Task:
			log.WithFields(logrus.Fields{
				"uuid":   r.UUID,
				"sender": r.Sender,
				"param":  r.Param,
				"sent":   r.Sent,
			}).Warn("DEAD TASK")
		case jobs.DoneTask:
			log.WithFields(logrus.Fields{
				"uuid":   r.UUID,
				"worker": r.Worker,
			}).Warn("DEAD TASK: already done")
		}
	}

	// ack so it doesn't loop forever
	if err := msg.Ack(); err != nil {
		log.WithError(err).Error("ack failed")
	}
}
