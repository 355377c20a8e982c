// Package memstore is an in-memory document store with the same
// compare-and-swap contract as the file store. Used in tests and available
// as an ephemeral backend.
package memstore

import (
	"context"
	"sync"

	"stockflow/backend/internal/gateway"
)

type document struct {
	data []byte
	rev  int64
}

type Store struct {
	mu   sync.Mutex
	docs map[string]document
}

func New() *Store {
	return &Store{docs: make(map[string]document)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[key]
	if !ok {
		return nil, 0, gateway.ErrNotFound
	}
	out := make([]byte, len(doc.data))
	copy(out, doc.data)
	return out, doc.rev, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, rev int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.docs[key].rev
	if rev != gateway.RevAny && rev != current {
		return 0, gateway.ErrRevisionConflict
	}
	next := current + 1
	stored := make([]byte, len(data))
	copy(stored, data)
	s.docs[key] = document{data: stored, rev: next}
	return next, nil
}
