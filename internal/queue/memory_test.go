package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()

	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatalf("delivery channel closed")
		}
		return d
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for delivery")
	}
	return nil
}

func expectNone(t *testing.T, ch <-chan Delivery) {
	t.Helper()

	select {
	case d, ok := <-ch:
		if ok {
			t.Fatalf("unexpected delivery %s", d.Body())
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryPrefetchOne(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	conn := m.Dial()
	defer conn.Close()

	for _, b := range []string{"a", "b"} {
		if err := conn.Publish(ctx, []byte(b)); err != nil {
			t.Fatalf("Publish() err=%v", err)
		}
	}
	if err := conn.SetPrefetch(1); err != nil {
		t.Fatalf("SetPrefetch() err=%v", err)
	}
	ch, err := conn.Consume("tasks")
	if err != nil {
		t.Fatalf("Consume() err=%v", err)
	}

	first := recv(t, ch)
	if string(first.Body()) != "a" {
		t.Fatalf("first body = %s, want a", first.Body())
	}
	expectNone(t, ch)

	if err := first.Ack(); err != nil {
		t.Fatalf("Ack() err=%v", err)
	}
	second := recv(t, ch)
	if string(second.Body()) != "b" {
		t.Fatalf("second body = %s, want b", second.Body())
	}
	if err := second.Ack(); err != nil {
		t.Fatalf("Ack() err=%v", err)
	}
	if m.Acked() != 2 || m.Ready() != 0 {
		t.Fatalf("acked=%d ready=%d, want 2 and 0", m.Acked(), m.Ready())
	}
}

func TestMemoryRejectRequeueRedelivers(t *testing.T) {
	m := NewMemory()
	conn := m.Dial()
	defer conn.Close()
	_ = conn.Publish(context.Background(), []byte("x"))
	_ = conn.SetPrefetch(1)
	ch, _ := conn.Consume("tasks")

	d := recv(t, ch)
	if d.Redelivered() {
		t.Fatalf("first delivery marked redelivered")
	}
	if err := d.Reject(true); err != nil {
		t.Fatalf("Reject(true) err=%v", err)
	}

	again := recv(t, ch)
	if string(again.Body()) != "x" || !again.Redelivered() {
		t.Fatalf("redelivery = %s redelivered=%v", again.Body(), again.Redelivered())
	}
	_ = again.Ack()
}

func TestMemoryRejectWithoutRequeueDeadLetters(t *testing.T) {
	m := NewMemory()
	conn := m.Dial()
	defer conn.Close()
	_ = conn.Publish(context.Background(), []byte("poison"))
	ch, _ := conn.Consume("tasks")

	d := recv(t, ch)
	if err := d.Reject(false); err != nil {
		t.Fatalf("Reject(false) err=%v", err)
	}
	dead := m.DeadLetters()
	if len(dead) != 1 || string(dead[0]) != "poison" {
		t.Fatalf("dead letters = %q", dead)
	}
	if m.Ready() != 0 {
		t.Fatalf("Ready() = %d, want 0", m.Ready())
	}
}

func TestMemoryDoubleSettleFails(t *testing.T) {
	m := NewMemory()
	conn := m.Dial()
	defer conn.Close()
	_ = conn.Publish(context.Background(), []byte("x"))
	ch, _ := conn.Consume("tasks")

	d := recv(t, ch)
	if err := d.Ack(); err != nil {
		t.Fatalf("Ack() err=%v", err)
	}
	if err := d.Ack(); !errors.Is(err, ErrUnknownDelivery) {
		t.Fatalf("second Ack() err=%v, want ErrUnknownDelivery", err)
	}
	if err := d.Reject(true); !errors.Is(err, ErrUnknownDelivery) {
		t.Fatalf("Reject after Ack err=%v, want ErrUnknownDelivery", err)
	}
}

func TestMemoryCloseReturnsUnacked(t *testing.T) {
	m := NewMemory()
	conn := m.Dial()
	_ = conn.Publish(context.Background(), []byte("x"))
	ch, _ := conn.Consume("tasks")

	d := recv(t, ch)
	if err := conn.Close(); err != nil {
		t.Fatalf("Close() err=%v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel open after Close")
	}
	if err := d.Ack(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Ack on closed conn err=%v, want ErrClosed", err)
	}
	if m.Ready() != 1 {
		t.Fatalf("Ready() = %d, want 1", m.Ready())
	}

	other := m.Dial()
	defer other.Close()
	ch2, _ := other.Consume("tasks")
	again := recv(t, ch2)
	if !again.Redelivered() {
		t.Fatalf("message returned on close not marked redelivered")
	}
	_ = again.Ack()
}

func TestMemoryPublishOnClosedConn(t *testing.T) {
	conn := NewMemory().Dial()
	_ = conn.Close()

	if err := conn.Publish(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish() err=%v, want ErrClosed", err)
	}
	if _, err := conn.Consume("tasks"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Consume() err=%v, want ErrClosed", err)
	}
}
