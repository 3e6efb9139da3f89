package retry

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultLedgerTTL = time.Hour

// Ledger counts failed attempts per task uuid.
type Ledger interface {
	Incr(ctx context.Context, id string) (int, error)
	Forget(ctx context.Context, id string) error
}

type entry struct {
	attempts int
	lastSeen time.Time
}

// MemoryLedger is a process-local Ledger. Counts are only seen by the worker that
// recorded them, so with several workers the cap applies per worker.
type MemoryLedger struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func (l *MemoryLedger) Incr(_ context.Context, id string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[id]
	e.attempts++
	e.lastSeen = l.now()
	l.entries[id] = e
	return e.attempts, nil
}

func (l *MemoryLedger) Forget(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
	return nil
}

func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// CleanupExpired drops tasks not seen within the ttl, e.g. ones another worker finished.
func (l *MemoryLedger) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, e := range l.entries {
		if now.Sub(e.lastSeen) > l.ttl {
			logrus.WithField("uuid", id).Debug("retry ledger entry expired, removing")
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}
