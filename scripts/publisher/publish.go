package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emkor/rmq-learning/internal/config"
	"github.com/emkor/rmq-learning/internal/jobs"
	"github.com/emkor/rmq-learning/internal/queue"
)

// publishes a single task, e.g. -param 0.95 to watch the retry path
func main() {
	param := flag.Float64("param", 0.5, "task param in [0, 1)")
	flag.Parse()

	cfg, _, err := config.LoadBroker()
	if err != nil {
		logrus.Fatal(err)
	}

	rmq, err := queue.NewRabbitMQ(cfg.QueueConfig())
	if err != nil {
		logrus.Fatal(err)
	}
	defer rmq.Close()

	task := jobs.NewTask(*param, jobs.ProcHost(), time.Now())
	body, err := jobs.Encode(task)
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rmq.Publish(ctx, body); err != nil {
		logrus.Fatal(err)
	}

	logrus.WithField("uuid", task.UUID).Infof("task published: %s", body)
}
