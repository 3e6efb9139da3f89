package record

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/emkor/rmq-learning/internal/jobs"
)

var base = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func doneTask(worker string, sentOffset, wait, took time.Duration) jobs.DoneTask {
	sent := base.Add(sentOffset)
	got := sent.Add(wait)
	return jobs.DoneTask{
		Task:   jobs.Task{UUID: uuid.NewString(), Sender: "1@p", Sent: sent, Param: 0.5},
		Got:    got,
		Done:   got.Add(took),
		Worker: worker,
		Result: 500_000,
	}
}

func TestRedisSinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := NewRedisSink(client, "", 3)
	var written []jobs.DoneTask
	for i := 0; i < 5; i++ {
		d := doneTask("w1", time.Duration(i)*time.Second, time.Millisecond, 10*time.Millisecond)
		written = append(written, d)
		if err := sink.Record(ctx, d); err != nil {
			t.Fatalf("Record() err=%v", err)
		}
	}

	// malformed entry is skipped on load
	mr.Lpush(DefaultKey, "garbage")

	loaded, skipped, err := Load(ctx, client, DefaultKey)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
	if len(loaded) != 3 {
		t.Fatalf("loaded %d records, want 3 (capped)", len(loaded))
	}
	for i, d := range loaded {
		want := written[i+2]
		if d.UUID != want.UUID || !d.Done.Equal(want.Done) {
			t.Fatalf("record %d = %+v, want %+v", i, d, want)
		}
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	d := doneTask("w1", 0, 0, time.Second)
	if err := NewLogSink(logrus.NewEntry(logger)).Record(context.Background(), d); err != nil {
		t.Fatalf("Record() err=%v", err)
	}
	out := buf.String()
	if !strings.Contains(out, d.UUID) || !strings.Contains(out, "done_us") {
		t.Fatalf("log output %q missing encoded record", out)
	}
}

type failingSink struct{ err error }

func (f failingSink) Record(context.Context, jobs.DoneTask) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	called := 0
	counting := sinkFunc(func(context.Context, jobs.DoneTask) error { called++; return nil })

	err := Multi{failingSink{boom}, counting}.Record(context.Background(), doneTask("w", 0, 0, 0))
	if !errors.Is(err, boom) {
		t.Fatalf("Multi err=%v, want boom", err)
	}
	if called != 1 {
		t.Fatalf("second sink called %d times, want 1", called)
	}
}

type sinkFunc func(context.Context, jobs.DoneTask) error

func (f sinkFunc) Record(ctx context.Context, d jobs.DoneTask) error { return f(ctx, d) }

func TestSummarize(t *testing.T) {
	var done []jobs.DoneTask
	for i := 1; i <= 20; i++ {
		worker := "w1"
		if i%4 == 0 {
			worker = "w2"
		}
		done = append(done, doneTask(worker, time.Duration(i)*time.Second, time.Duration(i)*time.Millisecond, time.Duration(i)*10*time.Millisecond))
	}

	r := Summarize(done)

	if r.Count != 20 {
		t.Fatalf("Count = %d", r.Count)
	}
	if r.Wait.P50 != 10*time.Millisecond || r.Wait.P95 != 19*time.Millisecond || r.Wait.Max != 20*time.Millisecond {
		t.Fatalf("wait stats = %+v", r.Wait)
	}
	if r.Took.Mean != 105*time.Millisecond {
		t.Fatalf("took mean = %v, want 105ms", r.Took.Mean)
	}
	if r.PerWorker["w1"] != 15 || r.PerWorker["w2"] != 5 {
		t.Fatalf("per worker = %v", r.PerWorker)
	}
	wantSpan := 19*time.Second + 220*time.Millisecond
	if r.Span != wantSpan {
		t.Fatalf("Span = %v, want %v", r.Span, wantSpan)
	}
	if !strings.Contains(r.String(), "worker w2: 5") {
		t.Fatalf("String() = %q", r.String())
	}
}

func TestSummarizeEmpty(t *testing.T) {
	r := Summarize(nil)
	if r.Count != 0 || r.Throughput != 0 {
		t.Fatalf("empty report = %+v", r)
	}
}
