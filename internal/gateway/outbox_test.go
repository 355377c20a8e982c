package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type flakyMirror struct {
	mu        sync.Mutex
	failFirst int
	attempts  int
	done      chan struct{}
}

func (m *flakyMirror) Fetch(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrNotFound
}

func (m *flakyMirror) Upsert(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.attempts <= m.failFirst {
		return errors.New("mirror unavailable")
	}
	close(m.done)
	return nil
}

func (m *flakyMirror) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func TestOutboxRetriesUntilDelivery(t *testing.T) {
	mirror := &flakyMirror{failFirst: 2, done: make(chan struct{})}
	o := NewOutbox(mirror, 8, 5)
	o.baseDelay = time.Millisecond
	defer o.Close()

	o.Enqueue("stockflow_data_v10_alice", []byte(`{}`))

	select {
	case <-mirror.done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never succeeded")
	}
	if got := mirror.attemptCount(); got != 3 {
		t.Fatalf("expected 3 attempts (2 failures then success), got %d", got)
	}
}

func TestOutboxGivesUpAfterMaxRetries(t *testing.T) {
	mirror := &flakyMirror{failFirst: 100, done: make(chan struct{})}
	o := NewOutbox(mirror, 8, 3)
	o.baseDelay = time.Millisecond
	defer o.Close()

	o.Enqueue("stockflow_data_v10_alice", []byte(`{}`))

	deadline := time.Now().Add(2 * time.Second)
	for mirror.attemptCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Give the worker a moment to prove it stopped.
	time.Sleep(20 * time.Millisecond)
	if got := mirror.attemptCount(); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}

type countingMirror struct {
	mu       sync.Mutex
	upserted []string
}

func (m *countingMirror) Fetch(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrNotFound
}

func (m *countingMirror) Upsert(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, key)
	return nil
}

func TestOutboxCloseDrainsQueuedWrites(t *testing.T) {
	mirror := &countingMirror{}
	o := NewOutbox(mirror, 8, 3)
	o.baseDelay = time.Millisecond

	for i := 0; i < 5; i++ {
		o.Enqueue("stockflow_data_v10_alice", []byte(`{}`))
	}
	o.Close()

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	if len(mirror.upserted) != 5 {
		t.Fatalf("all queued writes must be delivered before Close returns, got %d of 5", len(mirror.upserted))
	}
}
