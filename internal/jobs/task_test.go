package jobs

import (
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestNewTaskUniqueIDs(t *testing.T) {
	const n = 100_000

	seen := make(map[string]struct{}, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		task := NewTask(0.5, "1@h", now)
		if _, dup := seen[task.UUID]; dup {
			t.Fatalf("duplicate uuid %s after %d tasks", task.UUID, i)
		}
		seen[task.UUID] = struct{}{}
	}
}

func TestNewTaskTimestampResolution(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 678901234, time.FixedZone("CET", 3600))
	task := NewTask(0.1, "1@h", now)

	if task.Sent.Location() != time.UTC {
		t.Fatalf("sent location = %v, want UTC", task.Sent.Location())
	}
	if task.Sent.Nanosecond() != 678901000 {
		t.Fatalf("sent nanos = %d, want 678901000", task.Sent.Nanosecond())
	}
	if !task.Sent.Equal(now.Truncate(time.Microsecond)) {
		t.Fatalf("sent = %v, want instant %v", task.Sent, now)
	}
}

func TestProcHost(t *testing.T) {
	id := ProcHost()

	pid, host, ok := strings.Cut(id, "@")
	if !ok {
		t.Fatalf("ProcHost() = %q, want pid@hostname", id)
	}
	if pid != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid = %s, want %d", pid, os.Getpid())
	}
	if host == "" {
		t.Fatalf("empty hostname in %q", id)
	}
}

func TestDoneTaskDurations(t *testing.T) {
	d := sampleDone()

	if got, want := d.Waited(), 1500*time.Microsecond; got != want {
		t.Fatalf("Waited() = %v, want %v", got, want)
	}
	if got, want := d.Took(), 2*time.Second+998499*time.Microsecond; got != want {
		t.Fatalf("Took() = %v, want %v", got, want)
	}
}
