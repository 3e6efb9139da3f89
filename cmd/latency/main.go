package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/emkor/rmq-learning/internal/config"
	"github.com/emkor/rmq-learning/internal/logging"
	"github.com/emkor/rmq-learning/internal/record"
)

func main() {
	cfg, err := config.LoadLatency()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	if err := logging.Setup(cfg.Level, cfg.Format); err != nil {
		logrus.Fatalf("logging: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	defer rdb.Close()

	done, skipped, err := record.Load(ctx, rdb, cfg.RecordsKey)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	if skipped > 0 {
		logrus.WithField("key", cfg.RecordsKey).Warnf("skipped %d undecodable records", skipped)
	}

	fmt.Print(record.Summarize(done))
}
