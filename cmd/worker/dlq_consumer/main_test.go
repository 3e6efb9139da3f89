package main

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/emkor/rmq-learning/internal/jobs"
	"github.com/emkor/rmq-learning/internal/queue"
)

func TestDrainAcksEverything(t *testing.T) {
	broker := queue.NewMemory()
	conn := broker.Dial()
	defer conn.Close()

	task := jobs.NewTask(0.97, "1@producer", time.Now())
	body, _ := jobs.Encode(task)
	_ = conn.Publish(context.Background(), body)
	_ = conn.Publish(context.Background(), []byte("not json"))

	msgs, err := conn.Consume("tasks.dlq")
	if err != nil {
		t.Fatalf("Consume() err=%v", err)
	}

	logger, hook := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- drain(ctx, msgs, logrus.NewEntry(logger)) }()

	deadline := time.Now().Add(5 * time.Second)
	for broker.Acked() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("acked %d of 2", broker.Acked())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if n := <-done; n != 2 {
		t.Fatalf("drain() = %d, want 2", n)
	}
	if broker.Ready() != 0 || len(broker.DeadLetters()) != 0 {
		t.Fatalf("ready=%d dead=%d after drain", broker.Ready(), len(broker.DeadLetters()))
	}

	var sawTask, sawMalformed bool
	for _, e := range hook.AllEntries() {
		switch e.Message {
		case "DEAD TASK":
			sawTask = e.Data["uuid"] == task.UUID
		case "DEAD MESSAGE: malformed":
			sawMalformed = true
		}
	}
	if !sawTask || !sawMalformed {
		t.Fatalf("task logged=%v malformed logged=%v", sawTask, sawMalformed)
	}
}
