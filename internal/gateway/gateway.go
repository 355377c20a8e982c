package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"stockflow/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrRevisionConflict = errors.New("revision conflict")
)

// RevAny skips the compare-and-swap check on Put. Used for remote pulls
// and first writes where no prior revision is held.
const RevAny int64 = -1

// LocalStore is a keyed blob store with optimistic concurrency. Get returns
// the stored document and its current revision; Put succeeds only when the
// supplied revision matches (or is RevAny) and returns the new revision.
type LocalStore interface {
	Get(ctx context.Context, key string) ([]byte, int64, error)
	Put(ctx context.Context, key string, data []byte, rev int64) (int64, error)
}

// Mirror is an optional remote copy of the document store. Fetch returns
// ErrNotFound when the remote holds no document for the key.
type Mirror interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Upsert(ctx context.Context, key string, data []byte) error
}

// Signal publishes change notifications across processes.
type Signal interface {
	Publish(ctx context.Context, identity string) error
}

// Gateway owns all aggregate persistence. Reads substitute a default
// aggregate for missing or corrupt documents and backfill fields absent
// from older documents. Writes are compare-and-swap against the revision
// returned by Load, broadcast to subscribers on success and queued for the
// remote mirror through the outbox.
//
// A mirror write for an identity is never enqueued before a remote read
// for that identity has succeeded. The first Load per identity performs
// that read and, when the remote document differs from the local one,
// overwrites local state and re-broadcasts.
type Gateway struct {
	local  LocalStore
	mirror Mirror
	signal Signal
	outbox *Outbox
	bcast  *broadcaster

	mu     sync.Mutex
	pulled map[string]bool
	synced map[string]bool
}

// New wires a gateway. mirror, signal and outbox may be nil when the
// process runs standalone.
func New(local LocalStore, mirror Mirror, signal Signal, outbox *Outbox) *Gateway {
	return &Gateway{
		local:  local,
		mirror: mirror,
		signal: signal,
		outbox: outbox,
		bcast:  newBroadcaster(),
		pulled: make(map[string]bool),
		synced: make(map[string]bool),
	}
}

// stateKey keeps the document key scheme of earlier releases so existing
// data directories stay readable.
func stateKey(identity string) string {
	if identity == "" {
		identity = "guest"
	}
	return "stockflow_data_v10_" + identity
}

// Load returns the aggregate for an identity together with the revision to
// pass back to Save. Missing documents yield the default aggregate at
// revision zero; corrupt documents yield the default aggregate at the
// current revision so the next save can replace them.
func (g *Gateway) Load(ctx context.Context, identity string) (domain.AppState, int64) {
	key := stateKey(identity)
	g.pullRemote(ctx, identity, key)

	data, rev, err := g.local.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("[gateway] WARN: read %s: %v", key, err)
		}
		return domain.DefaultState(), 0
	}

	var state domain.AppState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("[gateway] WARN: corrupt document %s, serving defaults: %v", key, err)
		return domain.DefaultState(), rev
	}
	backfill(&state)
	return state, rev
}

// Save serializes the aggregate and writes it under the identity's key.
// Returns ErrRevisionConflict when another writer got there first; callers
// reload and reapply. On success the change is broadcast locally, signalled
// cross-process and queued for the mirror.
func (g *Gateway) Save(ctx context.Context, identity string, state domain.AppState, rev int64) (int64, error) {
	key := stateKey(identity)
	data, err := json.Marshal(state)
	if err != nil {
		return rev, fmt.Errorf("encode aggregate: %w", err)
	}

	newRev, err := g.local.Put(ctx, key, data, rev)
	if err != nil {
		if !errors.Is(err, ErrRevisionConflict) {
			log.Printf("[gateway] WARN: write %s: %v", key, err)
		}
		return rev, err
	}

	g.bcast.publish(identity)
	if g.signal != nil {
		if err := g.signal.Publish(ctx, identity); err != nil {
			log.Printf("[gateway] WARN: change signal for %s: %v", identity, err)
		}
	}
	if g.outbox != nil && g.isSynced(key) {
		g.outbox.Enqueue(key, data)
	}
	return newRev, nil
}

// Subscribe returns a channel that receives a tick whenever the identity's
// aggregate changes, and a cancel func that releases the subscription.
func (g *Gateway) Subscribe(identity string) (<-chan struct{}, func()) {
	return g.bcast.subscribe(identity)
}

// Broadcast notifies local subscribers without writing anything. Wired to
// the cross-process signal listener so changes made elsewhere wake local
// watchers too.
func (g *Gateway) Broadcast(identity string) {
	g.bcast.publish(identity)
}

// pullRemote runs at most once per identity per process. A successful fetch
// (including a remote miss) marks the identity synced, which unlocks mirror
// writes. A fetch error leaves it unsynced: pushing before a read could
// clobber a remote document we have never seen.
func (g *Gateway) pullRemote(ctx context.Context, identity, key string) {
	if g.mirror == nil {
		return
	}
	g.mu.Lock()
	if g.pulled[key] {
		g.mu.Unlock()
		return
	}
	g.pulled[key] = true
	g.mu.Unlock()

	remote, err := g.mirror.Fetch(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			g.markSynced(key)
			return
		}
		log.Printf("[gateway] WARN: remote fetch %s: %v", key, err)
		return
	}
	g.markSynced(key)

	local, _, lerr := g.local.Get(ctx, key)
	if lerr == nil && bytes.Equal(local, remote) {
		return
	}
	if _, err := g.local.Put(ctx, key, remote, RevAny); err != nil {
		log.Printf("[gateway] WARN: applying remote document %s: %v", key, err)
		return
	}
	g.bcast.publish(identity)
}

func (g *Gateway) markSynced(key string) {
	g.mu.Lock()
	g.synced[key] = true
	g.mu.Unlock()
}

func (g *Gateway) isSynced(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.synced[key]
}

// backfill fills fields that documents written by older releases lack.
// Existing values are never touched.
func backfill(s *domain.AppState) {
	if s.Products == nil {
		s.Products = []domain.Product{}
	}
	if s.Transactions == nil {
		s.Transactions = []domain.Transaction{}
	}
	if s.Categories == nil {
		s.Categories = []string{}
	}
	if s.Customers == nil {
		s.Customers = []domain.Customer{}
	}
	if (s.Profile == domain.StoreProfile{}) {
		s.Profile = domain.DefaultProfile()
	}
	if s.Profile.DefaultTaxLabel == "" {
		s.Profile.DefaultTaxLabel = "None"
	}
}
