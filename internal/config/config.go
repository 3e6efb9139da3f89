package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/emkor/rmq-learning/internal/queue"
	"github.com/emkor/rmq-learning/internal/retry"
)

type Broker struct {
	Host     string `envconfig:"RMQ_HOST" required:"true"`
	Port     int    `envconfig:"RMQ_PORT" default:"5672"`
	User     string `envconfig:"RMQ_USER" required:"true"`
	Password string `envconfig:"RMQ_PASS" required:"true"`
	Vhost    string `envconfig:"RMQ_VHOST" default:"/"`
	// Exchange must be set but may be empty, meaning the default exchange.
	Exchange string `envconfig:"RMQ_EXCHANGE" required:"true"`
	Queue    string `envconfig:"RMQ_QUEUE" required:"true"`
	DLQ      string `envconfig:"RMQ_DLQ"`
}

type Log struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

type Redis struct {
	Addr       string `envconfig:"REDIS_ADDR"`
	Password   string `envconfig:"REDIS_PASSWORD"`
	DB         int    `envconfig:"REDIS_DB" default:"0"`
	RecordsKey string `envconfig:"RECORDS_KEY" default:"rmq:done"`
	RecordsMax int64  `envconfig:"RECORDS_MAX" default:"100000"`
}

type Producer struct {
	Broker
	Log
	ProduceMS int `envconfig:"PRODUCE_MS" required:"true"`
}

type Worker struct {
	Broker
	Log
	Redis
	ConsumeMS    int    `envconfig:"CONSUME_MS" required:"true"`
	RetryMax     int    `envconfig:"RETRY_MAX" default:"5"`
	RetryBaseMS  int    `envconfig:"RETRY_BASE_MS" default:"500"`
	RetryMaxMS   int    `envconfig:"RETRY_MAX_MS" default:"30000"`
	ReconnectMax int    `envconfig:"RECONNECT_MAX" default:"0"`
	HealthAddr   string `envconfig:"HEALTH_ADDR" default:":50051"`
}

// Latency is what the report tool needs: only Redis.
type Latency struct {
	Log
	Redis
}

func LoadProducer() (Producer, error) {
	var c Producer
	if err := envconfig.Process("", &c); err != nil {
		return Producer{}, err
	}
	if c.ProduceMS < 0 {
		return Producer{}, fmt.Errorf("PRODUCE_MS must be >= 0, got %d", c.ProduceMS)
	}
	return c, nil
}

func LoadWorker() (Worker, error) {
	var c Worker
	if err := envconfig.Process("", &c); err != nil {
		return Worker{}, err
	}
	if c.ConsumeMS < 0 {
		return Worker{}, fmt.Errorf("CONSUME_MS must be >= 0, got %d", c.ConsumeMS)
	}
	if c.RetryMax < 0 {
		return Worker{}, fmt.Errorf("RETRY_MAX must be >= 0, got %d", c.RetryMax)
	}
	if c.RetryBaseMS < 0 {
		return Worker{}, fmt.Errorf("RETRY_BASE_MS must be >= 0, got %d", c.RetryBaseMS)
	}
	if c.RetryMaxMS < 0 {
		return Worker{}, fmt.Errorf("RETRY_MAX_MS must be >= 0, got %d", c.RetryMaxMS)
	}
	return c, nil
}

// LoadBroker reads only the broker settings, for the operator tools.
func LoadBroker() (Broker, Log, error) {
	var c struct {
		Broker
		Log
	}
	if err := envconfig.Process("", &c); err != nil {
		return Broker{}, Log{}, err
	}
	return c.Broker, c.Log, nil
}

func LoadLatency() (Latency, error) {
	var c Latency
	if err := envconfig.Process("", &c); err != nil {
		return Latency{}, err
	}
	if c.Addr == "" {
		return Latency{}, fmt.Errorf("required key REDIS_ADDR missing value")
	}
	return c, nil
}

func (b Broker) URL() string {
	return amqp.URI{
		Scheme:   "amqp",
		Host:     b.Host,
		Port:     b.Port,
		Username: b.User,
		Password: b.Password,
		Vhost:    b.Vhost,
	}.String()
}

// DeadLetterQueue defaults to "<queue>.dlq".
func (b Broker) DeadLetterQueue() string {
	if b.DLQ != "" {
		return b.DLQ
	}
	return b.Queue + ".dlq"
}

func (b Broker) QueueConfig() *queue.Config {
	return &queue.Config{
		URL:             b.URL(),
		Exchange:        b.Exchange,
		QueueName:       b.Queue,
		DeadLetterQueue: b.DeadLetterQueue(),
	}
}

func (p Producer) Pace() time.Duration {
	return time.Duration(p.ProduceMS) * time.Millisecond
}

func (w Worker) WorkDuration() time.Duration {
	return time.Duration(w.ConsumeMS) * time.Millisecond
}

func (w Worker) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: w.RetryMax,
		BaseDelay:   time.Duration(w.RetryBaseMS) * time.Millisecond,
		MaxDelay:    time.Duration(w.RetryMaxMS) * time.Millisecond,
	}
}

func (r Redis) Enabled() bool {
	return r.Addr != ""
}
