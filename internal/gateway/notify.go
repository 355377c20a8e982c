package gateway

import "sync"

// broadcaster fans out per-identity change ticks to subscriber channels.
// Sends never block: a subscriber that already has a pending tick does not
// need another one.
type broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[int]chan struct{}
	next int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[string]map[int]chan struct{})}
}

func (b *broadcaster) subscribe(identity string) (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan struct{}, 1)
	if b.subs[identity] == nil {
		b.subs[identity] = make(map[int]chan struct{})
	}
	b.subs[identity][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[identity]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(b.subs, identity)
			}
		}
	}
	return ch, cancel
}

func (b *broadcaster) publish(identity string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[identity] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
