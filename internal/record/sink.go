// Package record stores completed tasks for latency analysis.
package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/emkor/rmq-learning/internal/jobs"
)

const (
	DefaultKey    = "rmq:done"
	DefaultMaxLen = 100_000
)

// Sink receives every DoneTask a worker produces.
type Sink interface {
	Record(ctx context.Context, done jobs.DoneTask) error
}

// LogSink writes the encoded DoneTask to the log.
type LogSink struct {
	log *logrus.Entry
}

func NewLogSink(log *logrus.Entry) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Record(_ context.Context, done jobs.DoneTask) error {
	body, err := jobs.EncodeDone(done)
	if err != nil {
		return fmt.Errorf("encode done task %s: %w", done.UUID, err)
	}
	s.log.WithField("uuid", done.UUID).Infof("record %s", body)
	return nil
}

// RedisSink appends encoded DoneTasks to a capped Redis list.
type RedisSink struct {
	client redis.Cmdable
	key    string
	maxLen int64
}

func NewRedisSink(client redis.Cmdable, key string, maxLen int64) *RedisSink {
	if key == "" {
		key = DefaultKey
	}
	return &RedisSink{client: client, key: key, maxLen: maxLen}
}

func (s *RedisSink) Record(ctx context.Context, done jobs.DoneTask) error {
	body, err := jobs.EncodeDone(done)
	if err != nil {
		return fmt.Errorf("encode done task %s: %w", done.UUID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, body)
	if s.maxLen > 0 {
		pipe.LTrim(ctx, s.key, -s.maxLen, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record done task %s: %w", done.UUID, err)
	}
	return nil
}

// Multi fans a record out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, done jobs.DoneTask) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, done); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load reads back every record stored under key. Bodies that fail to decode are
// counted in skipped.
func Load(ctx context.Context, client redis.Cmdable, key string) (done []jobs.DoneTask, skipped int, err error) {
	bodies, err := client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("load records %s: %w", key, err)
	}

	done = make([]jobs.DoneTask, 0, len(bodies))
	for _, b := range bodies {
		d, err := jobs.DecodeDone([]byte(b))
		if err != nil {
			skipped++
			continue
		}
		done = append(done, d)
	}
	return done, skipped, nil
}
