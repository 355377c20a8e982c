package gateway

import (
	"context"
	"log"
	"sync"
	"time"
)

type mirrorJob struct {
	key  string
	data []byte
}

// Outbox delivers mirror writes from a single worker goroutine with retry
// and exponential backoff. Delivery failures are logged and eventually
// dropped; the local store stays authoritative either way.
type Outbox struct {
	mirror     Mirror
	queue      chan mirrorJob
	maxRetries int
	baseDelay  time.Duration
	stop       chan struct{}
	wg         sync.WaitGroup
}

func NewOutbox(mirror Mirror, queueSize, maxRetries int) *Outbox {
	o := &Outbox{
		mirror:     mirror,
		queue:      make(chan mirrorJob, queueSize),
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
		stop:       make(chan struct{}),
	}
	o.wg.Add(1)
	go o.run()
	return o
}

// Enqueue never blocks. When the queue is full the write is dropped with a
// warning; the mirror upsert is last-writer-wins, so a later save for the
// same key repairs the gap.
func (o *Outbox) Enqueue(key string, data []byte) {
	select {
	case o.queue <- mirrorJob{key: key, data: data}:
	default:
		log.Printf("[outbox] WARN: queue full, dropping mirror write for %s", key)
	}
}

// Close stops the worker. Writes still queued get one final delivery
// attempt each, without backoff, before Close returns.
func (o *Outbox) Close() {
	close(o.stop)
	o.wg.Wait()
}

func (o *Outbox) run() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stop:
			o.drain()
			return
		case job := <-o.queue:
			o.deliver(job)
		}
	}
}

func (o *Outbox) drain() {
	for {
		select {
		case job := <-o.queue:
			o.deliver(job)
		default:
			return
		}
	}
}

func (o *Outbox) deliver(job mirrorJob) {
	delay := o.baseDelay
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := o.mirror.Upsert(ctx, job.key, job.data)
		cancel()
		if err == nil {
			return
		}
		if attempt >= o.maxRetries {
			log.Printf("[outbox] WARN: giving up on %s after %d attempts: %v", job.key, attempt, err)
			return
		}
		log.Printf("[outbox] WARN: mirror write %s attempt %d: %v", job.key, attempt, err)
		select {
		case <-o.stop:
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
}
