package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/comms-service/internal/domain"
)

type TokenService struct {
	store  TokenStore
	logger *slog.Logger
}

func NewTokenService(store TokenStore, logger *slog.Logger) *TokenService {
	return &TokenService{store: store, logger: logger.With("component", "token_service")}
}

// SaveToken upserts the device token for (userID, appVariant); last write wins.
func (s *TokenService) SaveToken(ctx context.Context, userID, appVariant, token string) error {
	t, err := domain.NewDeviceToken(userID, appVariant, token)
	if err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, t); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	s.logger.Info("device token saved", "user_id", t.UserID, "app", t.AppVariant)
	return nil
}

func (s *TokenService) GetToken(ctx context.Context, userID string, v domain.AppVariant) (domain.DeviceToken, error) {
	t, err := s.store.Get(ctx, userID, v)
	if err != nil {
		if errors.Is(err, domain.ErrNoTokenRegistered) {
			return domain.DeviceToken{}, err
		}
		return domain.DeviceToken{}, fmt.Errorf("get token: %w", err)
	}
	return t, nil
}

// DeleteToken removes the entry only if it still holds token.
func (s *TokenService) DeleteToken(ctx context.Context, userID string, v domain.AppVariant, token string) error {
	if err := s.store.Delete(ctx, userID, v, token); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
