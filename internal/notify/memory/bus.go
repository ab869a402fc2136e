// Package memory provides an in-process notification bus for the single
// process run mode and for tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Envelope wraps one published payload with its topic.
type Envelope struct {
	Topic   string
	Payload any
}

// Bus implements orchestrator.Publisher over a buffered channel. Subscribers
// drain the channel; publishes never block the caller once the buffer is
// full, they fail instead.
type Bus struct {
	ch     chan Envelope
	mu     sync.RWMutex
	seq    int
	closed bool
}

// NewBus constructs a bus with the provided buffer capacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{ch: make(chan Envelope, capacity)}
}

// Publish pushes the payload onto the bus. The mutex is held across the
// send so Close cannot close the channel between the closed check and the
// select; every select arm is non-blocking, so the lock is never held while
// waiting.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", fmt.Errorf("bus is closed")
	}

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("publish canceled: %w", ctx.Err())
	case b.ch <- Envelope{Topic: topic, Payload: payload}:
		b.seq++
		return fmt.Sprintf("mem-%d", b.seq), nil
	default:
		return "", fmt.Errorf("bus buffer full, dropping %s event", topic)
	}
}

// Receive pops the next envelope, respecting context cancellation.
func (b *Bus) Receive(ctx context.Context) (Envelope, error) {
	select {
	case <-ctx.Done():
		return Envelope{}, fmt.Errorf("receive canceled: %w", ctx.Err())
	case env, ok := <-b.ch:
		if !ok {
			return Envelope{}, fmt.Errorf("bus is closed")
		}
		return env, nil
	}
}

// Close shuts the bus down for consumers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
