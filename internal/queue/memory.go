package queue

import (
	"context"
	"sync"
)

type message struct {
	tag         uint64
	body        []byte
	redelivered bool
}

// Memory is an in-process broker with a single queue. It follows the broker
// semantics the worker relies on: prefetch limits, requeue on reject with the
// redelivered flag set, dead-lettering on reject without requeue, and unacked
// messages returned to the queue when a connection closes.
type Memory struct {
	mu      sync.Mutex
	cond    *sync.Cond
	nextTag uint64
	ready   []*message
	dead    [][]byte
	acked   int
}

func NewMemory() *Memory {
	m := &Memory{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *Memory) publish(body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextTag++
	m.ready = append(m.ready, &message{tag: m.nextTag, body: append([]byte(nil), body...)})
	m.cond.Broadcast()
}

// Ready is the number of messages waiting for a consumer.
func (m *Memory) Ready() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ready)
}

func (m *Memory) Acked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}

// DeadLetters returns the bodies rejected without requeue.
func (m *Memory) DeadLetters() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.dead...)
}

// Dial opens a connection to the broker.
func (m *Memory) Dial() *MemoryConn {
	return &MemoryConn{
		broker:  m,
		unacked: make(map[uint64]*message),
		done:    make(chan struct{}),
	}
}

// MemoryConn implements Publisher and Consumer against a Memory broker.
type MemoryConn struct {
	broker   *Memory
	prefetch int
	inflight int
	unacked  map[uint64]*message
	closed   bool
	done     chan struct{}
}

func (c *MemoryConn) Publish(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.broker.mu.Lock()
	closed := c.closed
	c.broker.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.broker.publish(body)
	return nil
}

// SetPrefetch limits unacknowledged deliveries on this connection. Zero means unlimited.
func (c *MemoryConn) SetPrefetch(count int) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.prefetch = count
	return nil
}

func (c *MemoryConn) Consume(string) (<-chan Delivery, error) {
	c.broker.mu.Lock()
	closed := c.closed
	c.broker.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	out := make(chan Delivery)
	go c.pump(out)
	return out, nil
}

func (c *MemoryConn) pump(out chan<- Delivery) {
	defer close(out)
	m := c.broker

	for {
		m.mu.Lock()
		for !c.closed && (len(m.ready) == 0 || (c.prefetch > 0 && c.inflight >= c.prefetch)) {
			m.cond.Wait()
		}
		if c.closed {
			m.mu.Unlock()
			return
		}
		msg := m.ready[0]
		m.ready = m.ready[1:]
		c.inflight++
		c.unacked[msg.tag] = msg
		d := &memoryDelivery{conn: c, msg: msg, redelivered: msg.redelivered}
		m.mu.Unlock()

		select {
		case out <- d:
		case <-c.done:
			return
		}
	}
}

// Close drops the connection. Its unacknowledged messages go back to the queue.
func (c *MemoryConn) Close() error {
	m := c.broker
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	for tag, msg := range c.unacked {
		msg.redelivered = true
		m.ready = append([]*message{msg}, m.ready...)
		delete(c.unacked, tag)
	}
	c.inflight = 0
	m.cond.Broadcast()
	return nil
}

func (c *MemoryConn) settle(tag uint64) (*message, error) {
	if c.closed {
		return nil, ErrClosed
	}
	msg, ok := c.unacked[tag]
	if !ok {
		return nil, ErrUnknownDelivery
	}
	delete(c.unacked, tag)
	c.inflight--
	return msg, nil
}

type memoryDelivery struct {
	conn        *MemoryConn
	msg         *message
	redelivered bool
}

func (d *memoryDelivery) Body() []byte      { return d.msg.body }
func (d *memoryDelivery) Redelivered() bool { return d.redelivered }

func (d *memoryDelivery) Ack() error {
	m := d.conn.broker
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := d.conn.settle(d.msg.tag); err != nil {
		return err
	}
	m.acked++
	m.cond.Broadcast()
	return nil
}

func (d *memoryDelivery) Reject(requeue bool) error {
	m := d.conn.broker
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, err := d.conn.settle(d.msg.tag)
	if err != nil {
		return err
	}
	if requeue {
		msg.redelivered = true
		m.ready = append(m.ready, msg)
	} else {
		m.dead = append(m.dead, msg.body)
	}
	m.cond.Broadcast()
	return nil
}
