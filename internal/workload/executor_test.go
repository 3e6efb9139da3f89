package workload

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/emkor/rmq-learning/internal/jobs"
)

func TestOpsLimit(t *testing.T) {
	tests := []struct {
		param float64
		want  int64
	}{
		{0, 0},
		{0.05, 50_000},
		{0.1, 100_000},
		{0.9, 900_000},
		{0.9999999, 999_999},
	}
	for _, tt := range tests {
		if got := OpsLimit(tt.param); got != tt.want {
			t.Errorf("OpsLimit(%v) = %d, want %d", tt.param, got, tt.want)
		}
	}
	if OpsLimit(0.9) <= OpsLimit(0.1) {
		t.Fatalf("OpsLimit(0.9) must exceed OpsLimit(0.1)")
	}
}

func TestRunResultAndStamps(t *testing.T) {
	var slept []time.Duration
	e := New("7@worker",
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithSleep(func(d time.Duration) { slept = append(slept, d) }),
	)

	task := jobs.NewTask(0.05, "1@producer", time.Now())
	done := e.Run(task)

	if done.Result != 50_000 {
		t.Fatalf("Result = %d, want 50000", done.Result)
	}
	if done.Worker != "7@worker" {
		t.Fatalf("Worker = %q", done.Worker)
	}
	if done.UUID != task.UUID || done.Param != task.Param || !done.Sent.Equal(task.Sent) {
		t.Fatalf("task fields not carried: %+v vs %+v", done.Task, task)
	}
	if done.Got.Before(done.Sent) || done.Done.Before(done.Got) {
		t.Fatalf("ordering broken: sent=%v got=%v done=%v", done.Sent, done.Got, done.Done)
	}
	if len(slept) != 1 {
		t.Fatalf("sleep called %d times, want 1", len(slept))
	}
	if slept[0] < 0 || slept[0] >= DefaultMaxIOLatency {
		t.Fatalf("slept %v, want [0, %v)", slept[0], DefaultMaxIOLatency)
	}
}

func TestRunClampsSkewedClock(t *testing.T) {
	sent := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	behind := sent.Add(-3 * time.Second)
	e := New("w", WithMaxIOLatency(0), WithClock(func() time.Time { return behind }))

	done := e.Run(jobs.Task{UUID: "u", Sender: "s", Sent: sent, Param: 0.01})

	if !done.Got.Equal(sent) || !done.Done.Equal(sent) {
		t.Fatalf("got=%v done=%v, want both clamped to %v", done.Got, done.Done, sent)
	}
}

func TestRunOrderingOverManyTasks(t *testing.T) {
	e := New("w", WithMaxIOLatency(time.Millisecond))
	r := rand.New(rand.NewPCG(3, 4))

	for i := 0; i < 50; i++ {
		task := jobs.NewTask(r.Float64()*0.01, "s", time.Now())
		done := e.Run(task)
		if done.Sent.After(done.Got) || done.Got.After(done.Done) {
			t.Fatalf("task %d: sent=%v got=%v done=%v", i, done.Sent, done.Got, done.Done)
		}
		if done.Result != OpsLimit(task.Param) {
			t.Fatalf("task %d: result=%d want %d", i, done.Result, OpsLimit(task.Param))
		}
	}
}

func TestRunNoSleepWhenLatencyDisabled(t *testing.T) {
	called := false
	e := New("w", WithMaxIOLatency(0), WithSleep(func(time.Duration) { called = true }))
	e.Run(jobs.Task{UUID: "u", Sender: "s", Sent: time.Now().UTC(), Param: 0})
	if called {
		t.Fatalf("sleep called with latency disabled")
	}
}
