package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const contentTypeJSON = "application/json"

type Config struct {
	URL       string
	Exchange  string
	QueueName string
	// DeadLetterQueue receives messages rejected without requeue. Empty disables it.
	DeadLetterQueue string
}

type RabbitMQ struct {
	cfg Config

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	done      chan struct{}
	closeOnce sync.Once
}

// NewRabbitMQ connects and declares the exchange, task queue and dead-letter queue.
func NewRabbitMQ(cfg *Config) (*RabbitMQ, error) {
	r := &RabbitMQ{cfg: *cfg, done: make(chan struct{})}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) open() error {
	//create tcp connection to rabbitmq
	conn, err := amqp.Dial(r.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	//create logical channel inside the tcp connection to rabbitmq
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	r.conn, r.ch = conn, ch
	if err := r.declareTopology(); err != nil {
		ch.Close()
		conn.Close()
		r.conn, r.ch = nil, nil
		return err
	}
	return nil
}

func (r *RabbitMQ) declareTopology() error {
	var args amqp.Table
	if r.cfg.DeadLetterQueue != "" {
		if err := r.declareQueue(r.cfg.DeadLetterQueue, true, nil); err != nil {
			return err
		}
		args = amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": r.cfg.DeadLetterQueue,
		}
	}

	if err := r.declareQueue(r.cfg.QueueName, true, args); err != nil {
		return err
	}

	if r.cfg.Exchange == "" {
		return nil
	}
	if err := r.ch.ExchangeDeclare(r.cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", r.cfg.Exchange, err)
	}
	if err := r.ch.QueueBind(r.cfg.QueueName, r.cfg.QueueName, r.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", r.cfg.QueueName, r.cfg.Exchange, err)
	}
	return nil
}

func (r *RabbitMQ) declareQueue(name string, durable bool, args amqp.Table) error {
	if _, err := r.ch.QueueDeclare(name, durable, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// ensureOpen re-dials a connection or channel the broker has closed.
func (r *RabbitMQ) ensureOpen() error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	if r.conn != nil && !r.conn.IsClosed() && r.ch != nil && !r.ch.IsClosed() {
		return nil
	}
	if r.conn != nil && !r.conn.IsClosed() {
		r.conn.Close()
	}
	return r.open()
}

// Publish sends a persistent JSON message routed to the task queue.
func (r *RabbitMQ) Publish(ctx context.Context, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureOpen(); err != nil {
		return err
	}

	err := r.ch.PublishWithContext(
		ctx,
		r.cfg.Exchange,
		r.cfg.QueueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", r.cfg.QueueName, err)
	}
	return nil
}

func (r *RabbitMQ) SetPrefetch(count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ch.Qos(count, 0, false); err != nil {
		return fmt.Errorf("set prefetch %d: %w", count, err)
	}
	return nil
}

// Consume starts a manual-ack consumer on queue.
func (r *RabbitMQ) Consume(queue string) (<-chan Delivery, error) {
	r.mu.Lock()
	msgs, err := r.ch.Consume(
		queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for msg := range msgs {
			select {
			case out <- rabbitDelivery{msg: msg}:
			case <-r.done:
				return
			}
		}
	}()
	return out, nil
}

func (r *RabbitMQ) Close() error {
	r.closeOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return err
		}
	}
	if r.conn.IsClosed() {
		return nil
	}
	return r.conn.Close()
}

type rabbitDelivery struct {
	msg amqp.Delivery
}

func (d rabbitDelivery) Body() []byte      { return d.msg.Body }
func (d rabbitDelivery) Redelivered() bool { return d.msg.Redelivered }
func (d rabbitDelivery) Ack() error        { return d.msg.Ack(false) }

func (d rabbitDelivery) Reject(requeue bool) error {
	return d.msg.Reject(requeue)
}
