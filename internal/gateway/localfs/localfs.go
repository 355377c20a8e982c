// Package localfs stores documents as JSON files under a data directory.
// Each file is an envelope carrying the revision counter beside the raw
// document bytes, so the document itself stays exactly as written. Writes
// go through a temp file and rename for crash safety.
package localfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"stockflow/backend/internal/gateway"
)

type envelope struct {
	Revision int64           `json:"revision"`
	Document json.RawMessage `json:"document"`
}

type Store struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(key)
}

func (s *Store) Put(ctx context.Context, key string, data []byte, rev int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, current, err := s.read(key)
	if err != nil {
		if !errors.Is(err, gateway.ErrNotFound) {
			return 0, err
		}
		current = 0
	}
	if rev != gateway.RevAny && rev != current {
		return 0, gateway.ErrRevisionConflict
	}

	next := current + 1
	enc, err := json.Marshal(envelope{Revision: next, Document: data})
	if err != nil {
		return 0, err
	}

	path := s.path(key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, err
	}
	if _, err := tmp.Write(enc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return next, nil
}

// read returns the document bytes and revision for a key. A file that is
// not an envelope is treated as a bare revision-zero document, so data
// directories written before the revision counter existed keep working.
func (s *Store) read(key string) ([]byte, int64, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, gateway.ErrNotFound
		}
		return nil, 0, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Document == nil {
		return raw, 0, nil
	}
	return env.Document, env.Revision, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, sanitize(key)+".json")
}

func sanitize(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
