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
	"github.com/emkor/rmq-learning/internal/producer"
	"github.com/emkor/rmq-learning/internal/queue"
)

func main() {
	cfg, err := config.LoadProducer()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	if err := logging.Setup(cfg.Level, cfg.Format); err != nil {
		logrus.Fatalf("logging: %v", err)
	}

	identity := jobs.ProcHost()
	log := logging.For("producer", identity)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// -----------------------------
	// RabbitMQ Publisher Setup
	// -----------------------------
	rmq, err := queue.NewRabbitMQ(cfg.QueueConfig())
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer func() {
		if err := rmq.Close(); err != nil {
			log.WithError(err).Warn("close connection")
		}
	}()

	log.WithFields(logrus.Fields{
		"exchange": cfg.Exchange,
		"queue":    cfg.Queue,
		"pace":     cfg.Pace(),
	}).Info("producing tasks")

	stats := producer.New(rmq, identity, cfg.Pace(), log).Run(ctx)

	log.WithField("failed", stats.Failed).Infof("stopped after sending %d tasks", stats.Sent)
}
