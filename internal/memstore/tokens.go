package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/cwrk-planet/comms-service/internal/domain"
)

type tokenKey struct {
	user    string
	variant domain.AppVariant
}

type Tokens struct {
	mu     sync.RWMutex
	tokens map[tokenKey]domain.DeviceToken
}

func NewTokens() *Tokens {
	return &Tokens{tokens: make(map[tokenKey]domain.DeviceToken)}
}

func (t *Tokens) Upsert(_ context.Context, tok domain.DeviceToken) error {
	if tok.UpdatedAt.IsZero() {
		tok.UpdatedAt = time.Now().UTC()
	}
	t.mu.Lock()
	t.tokens[tokenKey{tok.UserID, tok.AppVariant}] = tok
	t.mu.Unlock()
	return nil
}

func (t *Tokens) Get(_ context.Context, userID string, v domain.AppVariant) (domain.DeviceToken, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tok, ok := t.tokens[tokenKey{userID, v}]
	if !ok {
		return domain.DeviceToken{}, domain.ErrNoTokenRegistered
	}
	return tok, nil
}

// Delete removes the entry only while it still holds token, so a refresh that
// raced the eviction survives.
func (t *Tokens) Delete(_ context.Context, userID string, v domain.AppVariant, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := tokenKey{userID, v}
	if cur, ok := t.tokens[k]; ok && cur.Token == token {
		delete(t.tokens, k)
	}
	return nil
}
