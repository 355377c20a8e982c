package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"stockflow/backend/internal/gateway/memstore"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager("test-secret", time.Hour, memstore.New(), nil, nil)
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	session, err := m.Register(ctx, " Ravi@Example.com ", "secret123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if session.Identity != "ravi@example.com" {
		t.Fatalf("identity must be the normalized email, got %q", session.Identity)
	}
	if session.AccessToken == "" {
		t.Fatal("expected a token")
	}

	login, err := m.Login(ctx, "RAVI@example.com", "secret123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	identity, err := m.ParseToken(login.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if identity != "ravi@example.com" {
		t.Fatalf("token subject mismatch: %q", identity)
	}

	if _, err := m.Login(ctx, "ravi@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password must fail, got %v", err)
	}
	if _, err := m.Login(ctx, "nobody@example.com", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email must fail, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	if _, err := m.Register(ctx, "ravi@example.com", "secret123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := m.Register(ctx, "RAVI@EXAMPLE.COM", "other456"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email in any case must fail, got %v", err)
	}
	if _, err := m.Register(ctx, "not-an-email", "secret123"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("bad email must fail, got %v", err)
	}
	if _, err := m.Register(ctx, "new@example.com", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("short password must fail, got %v", err)
	}
}

func TestPasswordsAreStoredHashed(t *testing.T) {
	store := memstore.New()
	m := NewManager("test-secret", time.Hour, store, nil, nil)
	ctx := context.Background()

	if _, err := m.Register(ctx, "ravi@example.com", "secret123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	data, _, err := store.Get(ctx, usersKey)
	if err != nil {
		t.Fatalf("raw read: %v", err)
	}
	var doc userDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(doc.Users))
	}
	if !strings.HasPrefix(doc.Users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", doc.Users[0].Password)
	}
}

func TestUpdatePassword(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	if _, err := m.Register(ctx, "ravi@example.com", "secret123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.UpdatePassword(ctx, "ravi@example.com", "wrong", "newpass789"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password must fail, got %v", err)
	}
	if err := m.UpdatePassword(ctx, "ravi@example.com", "secret123", "new"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak new password must fail, got %v", err)
	}
	if err := m.UpdatePassword(ctx, "ravi@example.com", "secret123", "newpass789"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := m.Login(ctx, "ravi@example.com", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := m.Login(ctx, "ravi@example.com", "newpass789"); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
}

func TestParseTokenRejectsGarbageAndForeignSignatures(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	session, err := m.Register(ctx, "ravi@example.com", "secret123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := m.ParseToken("not.a.token"); err == nil {
		t.Fatal("garbage token must fail")
	}

	other := NewManager("other-secret", time.Hour, memstore.New(), nil, nil)
	if _, err := other.ParseToken(session.AccessToken); err == nil {
		t.Fatal("token signed with a different secret must fail")
	}
}
