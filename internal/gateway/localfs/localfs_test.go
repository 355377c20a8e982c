package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stockflow/backend/internal/gateway"
)

func TestPutGetRoundTripWithRevisions(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, gateway.ErrNotFound) {
		t.Fatalf("missing key must be ErrNotFound, got %v", err)
	}

	rev, err := store.Put(ctx, "doc", []byte(`{"a":1}`), 0)
	if err != nil || rev != 1 {
		t.Fatalf("first put: rev=%d err=%v", rev, err)
	}
	data, rev, err := store.Get(ctx, "doc")
	if err != nil || rev != 1 || string(data) != `{"a":1}` {
		t.Fatalf("get: data=%s rev=%d err=%v", data, rev, err)
	}

	rev, err = store.Put(ctx, "doc", []byte(`{"a":2}`), 1)
	if err != nil || rev != 2 {
		t.Fatalf("second put: rev=%d err=%v", rev, err)
	}
	if _, err := store.Put(ctx, "doc", []byte(`{"a":3}`), 1); !errors.Is(err, gateway.ErrRevisionConflict) {
		t.Fatalf("stale revision must conflict, got %v", err)
	}
	if _, err := store.Put(ctx, "doc", []byte(`{"a":4}`), gateway.RevAny); err != nil {
		t.Fatalf("RevAny must bypass the check: %v", err)
	}
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := store.Put(ctx, "doc", []byte(`{"kept":true}`), 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	data, rev, err := reopened.Get(ctx, "doc")
	if err != nil || rev != 1 || string(data) != `{"kept":true}` {
		t.Fatalf("reopened get: data=%s rev=%d err=%v", data, rev, err)
	}
}

func TestBareJSONFileReadsAsRevisionZero(t *testing.T) {
	dir := t.TempDir()
	legacy := []byte(`{"products":[],"transactions":[]}`)
	if err := os.WriteFile(filepath.Join(dir, "stockflow_data_v10_alice.json"), legacy, 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	store, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	data, rev, err := store.Get(ctx, "stockflow_data_v10_alice")
	if err != nil || rev != 0 {
		t.Fatalf("legacy get: rev=%d err=%v", rev, err)
	}
	if string(data) != string(legacy) {
		t.Fatalf("legacy bytes must pass through untouched, got %s", data)
	}
	if _, err := store.Put(ctx, "stockflow_data_v10_alice", []byte(`{}`), 0); err != nil {
		t.Fatalf("revision zero must let the next writer take over: %v", err)
	}
}

func TestKeysAreSanitizedToTheDataDir(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Put(ctx, "../escape", []byte(`{}`), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one file inside the data dir, got %d", len(entries))
	}
	if _, err := os.Stat(filepath.Join(dir, "..", "escape.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("key must not escape the data dir")
	}
}
