// Package auth manages store logins. Credentials live in one document in
// the local store, keyed by email, and follow the same mirror rules as the
// aggregate: pulled once at startup, pushed through the outbox on change.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"stockflow/backend/internal/domain"
	"stockflow/backend/internal/gateway"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

const usersKey = "stockflow_users_db"

const saveRetryLimit = 5

type Manager struct {
	mu       sync.Mutex
	secret   []byte
	tokenTTL time.Duration
	store    gateway.LocalStore
	mirror   gateway.Mirror
	outbox   *gateway.Outbox
	synced   bool
}

type userDoc struct {
	Users []domain.AdminUser `json:"users"`
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
}

// Session is a signed login. Identity carries the email that keys the
// holder's aggregate.
type Session struct {
	AccessToken string `json:"accessToken"`
	Identity    string `json:"identity"`
	ExpiresAt   string `json:"expiresAt"`
}

// NewManager builds the auth manager and pulls the remote credentials
// document once, best effort. mirror and outbox may be nil.
func NewManager(secret string, tokenTTL time.Duration, store gateway.LocalStore, mirror gateway.Mirror, outbox *gateway.Outbox) *Manager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	m := &Manager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		store:    store,
		mirror:   mirror,
		outbox:   outbox,
	}
	// Startup pull runs before any request context exists.
	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer cancel()
	m.pullRemote(ctx)
	return m
}

func (m *Manager) Register(ctx context.Context, email string, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return Session{}, ErrInvalidEmail
	}
	if len(strings.TrimSpace(password)) < 6 {
		return Session{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	err = m.updateUsers(ctx, func(users *[]domain.AdminUser) error {
		for _, u := range *users {
			if normalizeEmail(u.Email) == email {
				return ErrEmailTaken
			}
		}
		*users = append(*users, domain.AdminUser{
			Email:     email,
			Password:  string(hash),
			LastLogin: time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return m.sign(email)
}

func (m *Manager) Login(ctx context.Context, email string, password string) (Session, error) {
	email = normalizeEmail(email)

	m.mu.Lock()
	defer m.mu.Unlock()
	users, _ := m.loadUsers(ctx)
	var found *domain.AdminUser
	for i := range users {
		if normalizeEmail(users[i].Email) == email {
			found = &users[i]
			break
		}
	}
	if found == nil {
		return Session{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(found.Password), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	// Last-login bookkeeping must never block a login.
	if err := m.updateUsers(ctx, func(us *[]domain.AdminUser) error {
		for i := range *us {
			if normalizeEmail((*us)[i].Email) == email {
				(*us)[i].LastLogin = time.Now().UTC()
			}
		}
		return nil
	}); err != nil {
		log.Printf("[auth] WARN: updating last login for %s: %v", email, err)
	}
	return m.sign(email)
}

func (m *Manager) UpdatePassword(ctx context.Context, email string, current string, next string) error {
	email = normalizeEmail(email)
	if len(strings.TrimSpace(next)) < 6 {
		return ErrWeakPassword
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateUsers(ctx, func(users *[]domain.AdminUser) error {
		for i := range *users {
			if normalizeEmail((*users)[i].Email) != email {
				continue
			}
			if bcrypt.CompareHashAndPassword([]byte((*users)[i].Password), []byte(current)) != nil {
				return ErrInvalidCredentials
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			(*users)[i].Password = string(hash)
			return nil
		}
		return ErrInvalidCredentials
	})
}

// ParseToken validates a session token and returns the identity it was
// signed for.
func (m *Manager) ParseToken(tokenStr string) (string, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid token subject")
	}
	return sub, nil
}

func (m *Manager) sign(identity string) (Session, error) {
	expiresAt := time.Now().UTC().Add(m.tokenTTL)
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "stockflow",
		},
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken: token,
		Identity:    identity,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (m *Manager) loadUsers(ctx context.Context) ([]domain.AdminUser, int64) {
	data, rev, err := m.store.Get(ctx, usersKey)
	if err != nil {
		if !errors.Is(err, gateway.ErrNotFound) {
			log.Printf("[auth] WARN: read users: %v", err)
		}
		return nil, 0
	}
	var doc userDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("[auth] WARN: corrupt users document: %v", err)
		return nil, rev
	}
	return doc.Users, rev
}

func (m *Manager) updateUsers(ctx context.Context, mutate func(*[]domain.AdminUser) error) error {
	var lastErr error
	for attempt := 0; attempt < saveRetryLimit; attempt++ {
		users, rev := m.loadUsers(ctx)
		users = append([]domain.AdminUser(nil), users...)
		if err := mutate(&users); err != nil {
			return err
		}
		data, err := json.Marshal(userDoc{Users: users})
		if err != nil {
			return err
		}
		if _, err := m.store.Put(ctx, usersKey, data, rev); err != nil {
			if errors.Is(err, gateway.ErrRevisionConflict) {
				lastErr = err
				continue
			}
			return err
		}
		if m.outbox != nil && m.synced {
			m.outbox.Enqueue(usersKey, data)
		}
		return nil
	}
	return fmt.Errorf("save users after %d attempts: %w", saveRetryLimit, lastErr)
}

func (m *Manager) pullRemote(ctx context.Context) {
	if m.mirror == nil {
		return
	}
	remote, err := m.mirror.Fetch(ctx, usersKey)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			m.synced = true
			return
		}
		log.Printf("[auth] WARN: remote users fetch: %v", err)
		return
	}
	m.synced = true

	if _, err := m.store.Put(ctx, usersKey, remote, gateway.RevAny); err != nil {
		log.Printf("[auth] WARN: applying remote users document: %v", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
