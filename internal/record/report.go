package record

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/emkor/rmq-learning/internal/jobs"
)

type Stats struct {
	Mean time.Duration
	P50  time.Duration
	P95  time.Duration
	Max  time.Duration
}

type Report struct {
	Count int
	// Wait is time in queue (got - sent), Took is execution time (done - got).
	Wait       Stats
	Took       Stats
	PerWorker  map[string]int
	Span       time.Duration
	Throughput float64
}

func Summarize(done []jobs.DoneTask) Report {
	r := Report{Count: len(done), PerWorker: make(map[string]int)}
	if len(done) == 0 {
		return r
	}

	waits := make([]time.Duration, 0, len(done))
	tooks := make([]time.Duration, 0, len(done))
	first, last := done[0].Sent, done[0].Done
	for _, d := range done {
		waits = append(waits, d.Waited())
		tooks = append(tooks, d.Took())
		r.PerWorker[d.Worker]++
		if d.Sent.Before(first) {
			first = d.Sent
		}
		if d.Done.After(last) {
			last = d.Done
		}
	}

	r.Wait = stats(waits)
	r.Took = stats(tooks)
	r.Span = last.Sub(first)
	if r.Span > 0 {
		r.Throughput = float64(r.Count) / r.Span.Seconds()
	}
	return r
}

func stats(ds []time.Duration) Stats {
	slices.Sort(ds)

	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return Stats{
		Mean: sum / time.Duration(len(ds)),
		P50:  percentile(ds, 0.50),
		P95:  percentile(ds, 0.95),
		Max:  ds[len(ds)-1],
	}
}

// percentile uses the nearest-rank method on sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(math.Ceil(p * float64(len(sorted))))
	return sorted[max(rank-1, 0)]
}

func (s Stats) String() string {
	return fmt.Sprintf("mean=%v p50=%v p95=%v max=%v", s.Mean, s.P50, s.P95, s.Max)
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tasks=%d span=%v throughput=%.2f/s\n", r.Count, r.Span, r.Throughput)
	fmt.Fprintf(&b, "wait: %v\n", r.Wait)
	fmt.Fprintf(&b, "took: %v\n", r.Took)

	workers := make([]string, 0, len(r.PerWorker))
	for w := range r.PerWorker {
		workers = append(workers, w)
	}
	sort.Strings(workers)
	for _, w := range workers {
		fmt.Fprintf(&b, "worker %s: %d\n", w, r.PerWorker[w])
	}
	return b.String()
}
