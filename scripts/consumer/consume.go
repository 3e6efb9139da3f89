package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emkor/rmq-learning/internal/config"
	"github.com/emkor/rmq-learning/internal/jobs"
	"github.com/emkor/rmq-learning/internal/queue"
)

// peeks at up to -n messages of a queue and puts them back
func main() {
	n := flag.Int("n", 10, "max messages to show")
	dlq := flag.Bool("dlq", false, "peek the dead-letter queue instead")
	wait := flag.Duration("wait", 2*time.Second, "give up after this long without a message")
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

	name := cfg.Queue
	if *dlq {
		name = cfg.DeadLetterQueue()
	}

	// hold every peeked message unacked so none is shown twice
	if err := rmq.SetPrefetch(*n); err != nil {
		logrus.Fatal(err)
	}
	msgs, err := rmq.Consume(name)
	if err != nil {
		logrus.Fatal(err)
	}

	var held []queue.Delivery
	defer func() {
		for _, msg := range held {
			_ = msg.Reject(true)
		}
	}()

	for len(held) < *n {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			held = append(held, msg)
			fmt.Println(describe(msg))
		case <-time.After(*wait):
			return
		}
	}
}

func describe(msg queue.Delivery) string {
	rec, err := jobs.Decode(msg.Body())
	if err != nil {
		return fmt.Sprintf("malformed (%v): %s", err, msg.Body())
	}
	switch r := rec.(type) {
	case jobs.DoneTask:
		return fmt.Sprintf("done %s by %s took=%v", r.UUID, r.Worker, r.Took())
	case jobs.Task:
		return fmt.Sprintf("task %s from %s param=%.6f redelivered=%v", r.UUID, r.Sender, r.Param, msg.Redelivered())
	}
	return string(msg.Body())
}
