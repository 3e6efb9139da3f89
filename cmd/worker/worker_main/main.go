package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/emkor/rmq-learning/internal/config"
	"github.com/emkor/rmq-learning/internal/jobs"
	"github.com/emkor/rmq-learning/internal/logging"
	"github.com/emkor/rmq-learning/internal/queue"
	"github.com/emkor/rmq-learning/internal/record"
	"github.com/emkor/rmq-learning/internal/retry"
	"github.com/emkor/rmq-learning/internal/worker"
	"github.com/emkor/rmq-learning/internal/workload"
)

const ledgerCleanupInterval = time.Minute

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	if err := logging.Setup(cfg.Level, cfg.Format); err != nil {
		logrus.Fatalf("logging: %v", err)
	}

	identity := jobs.ProcHost()
	log := logging.For("worker", identity)

	if err := run(cfg, identity, log); err != nil {
		log.WithError(err).Error("worker stopped")
		os.Exit(1)
	}
}

func run(cfg config.Worker, identity string, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// -----------------------------------
	// Retry ledger and completion sinks
	// -----------------------------------
	var ledger retry.Ledger
	sinks := record.Multi{record.NewLogSink(log)}

	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, retries fall back to uncapped requeue until it is back")
		}
		ledger = retry.NewRedisLedger(rdb, retry.DefaultLedgerPrefix, retry.DefaultLedgerTTL)
		sinks = append(sinks, record.NewRedisSink(rdb, cfg.RecordsKey, cfg.RecordsMax))
	} else {
		mem := retry.NewMemoryLedger(retry.DefaultLedgerTTL)
		ledger = mem

		go func() {
			ticker := time.NewTicker(ledgerCleanupInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					mem.CleanupExpired()
				}
			}
		}()
	}

	// -----------------------------------
	// Health server
	// -----------------------------------
	lis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		return err
	}
	health := worker.NewHealthServer()
	go func() {
		log.Infof("health server listening on %s", cfg.HealthAddr)
		if err := health.Serve(lis); err != nil {
			log.WithError(err).Error("health server stopped")
		}
	}()
	defer health.Stop()

	// -----------------------------------
	// Consume
	// -----------------------------------
	w := worker.New(
		workload.New(identity, workload.WithMaxIOLatency(cfg.WorkDuration())),
		retry.NewInjector(retry.DefaultThreshold, retry.ClockSource{}),
		cfg.RetryPolicy(),
		ledger,
		sinks,
		log,
	)

	dial := func(context.Context) (queue.Consumer, error) {
		rmq, err := queue.NewRabbitMQ(cfg.QueueConfig())
		if err != nil {
			return nil, err
		}
		return rmq, nil
	}

	runner := worker.NewRunner(dial, w, worker.RunnerConfig{
		Queue:         cfg.Queue,
		MaxReconnects: cfg.ReconnectMax,
		BackoffBase:   retry.DefaultBaseDelay,
		BackoffMax:    retry.DefaultMaxDelay,
	}, health, log)

	stats, err := runner.Run(ctx)
	log.WithFields(logrus.Fields{
		"acked":         stats.Acked,
		"requeued":      stats.Requeued,
		"dead_lettered": stats.DeadLettered,
		"discarded":     stats.Discarded,
	}).Infof("stopped after receiving %d tasks", stats.Received)
	return err
}
