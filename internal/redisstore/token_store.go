// Package redisstore keeps device tokens in Redis so several processes (the
// comms service and the clinic API that registers tokens) share one directory.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cwrk-planet/comms-service/internal/domain"
)

// redisClient is the subset of go-redis used here.
type redisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
}

// TokenStore stores one hash per user: device_tokens:{userID} -> appVariant -> JSON.
type TokenStore struct {
	client redisClient
	logger *slog.Logger
}

type storedToken struct {
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewTokenStore(client redisClient, logger *slog.Logger) (*TokenStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	return &TokenStore{
		client: client,
		logger: logger.With("component", "redis_token_store"),
	}, nil
}

func tokenKey(userID string) string { return "device_tokens:" + userID }

func (s *TokenStore) Upsert(ctx context.Context, t domain.DeviceToken) error {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(storedToken{Token: t.Token, UpdatedAt: t.UpdatedAt})
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := s.client.HSet(ctx, tokenKey(t.UserID), string(t.AppVariant), payload).Err(); err != nil {
		s.logger.Error("hset token failed", "user", t.UserID, "variant", t.AppVariant, "err", err)
		return fmt.Errorf("hset token: %w", err)
	}
	return nil
}

func (s *TokenStore) Get(ctx context.Context, userID string, v domain.AppVariant) (domain.DeviceToken, error) {
	raw, err := s.client.HGet(ctx, tokenKey(userID), string(v)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.DeviceToken{}, domain.ErrNoTokenRegistered
	}
	if err != nil {
		return domain.DeviceToken{}, fmt.Errorf("hget token: %w", err)
	}
	var st storedToken
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return domain.DeviceToken{}, fmt.Errorf("unmarshal token: %w", err)
	}
	return domain.DeviceToken{UserID: userID, AppVariant: v, Token: st.Token, UpdatedAt: st.UpdatedAt}, nil
}

// Delete removes the field only while it still holds token (WATCH/MULTI).
func (s *TokenStore) Delete(ctx context.Context, userID string, v domain.AppVariant, token string) error {
	key := tokenKey(userID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, string(v)).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var st storedToken
		if err := json.Unmarshal([]byte(raw), &st); err != nil || st.Token != token {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HDel(ctx, key, string(v))
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// ключ поменялся во время WATCH, значит токен уже обновили
		return nil
	}
	return err
}
