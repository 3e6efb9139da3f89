package jobs

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Task is a unit of simulated work. Param in [0,1) is the workload intensity.
type Task struct {
	UUID   string
	Sender string
	Sent   time.Time
	Param  float64
}

// DoneTask is a Task completed by a worker. It is created once and never republished.
type DoneTask struct {
	Task
	Got    time.Time
	Done   time.Time
	Worker string
	Result int64
}

// Record is either a Task or a DoneTask.
type Record interface {
	ID() string
}

func (t Task) ID() string { return t.UUID }

// NewTask builds a task with a fresh uuid, stamped by sender at now.
func NewTask(param float64, sender string, now time.Time) Task {
	return Task{
		UUID:   uuid.NewString(),
		Sender: sender,
		Sent:   Timestamp(now),
		Param:  param,
	}
}

// Took is the execution time of the task.
func (d DoneTask) Took() time.Duration {
	return d.Done.Sub(d.Got)
}

// Waited is the time the task spent in the queue.
func (d DoneTask) Waited() time.Duration {
	return d.Got.Sub(d.Sent)
}

// Timestamp normalizes t to the resolution carried on the wire: UTC, whole microseconds.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ProcHost returns the "pid@hostname" identity of the current process.
func ProcHost() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return strconv.Itoa(os.Getpid()) + "@" + host
}
