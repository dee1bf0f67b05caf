package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cwrk-planet/comms-service/internal/domain"
)

type TokenRepository struct {
	q querier
}

func NewTokenRepository(q querier) *TokenRepository {
	return &TokenRepository{q: q}
}

func (r *TokenRepository) Upsert(ctx context.Context, t domain.DeviceToken) error {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	_, err := r.q.Exec(ctx, queryUpsertToken, t.UserID, string(t.AppVariant), t.Token, t.UpdatedAt)
	return mapPgError(err)
}

func (r *TokenRepository) Get(ctx context.Context, userID string, v domain.AppVariant) (domain.DeviceToken, error) {
	t := domain.DeviceToken{UserID: userID, AppVariant: v}
	err := r.q.QueryRow(ctx, queryGetToken, userID, string(v)).Scan(&t.Token, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DeviceToken{}, domain.ErrNoTokenRegistered
		}
		return domain.DeviceToken{}, err
	}
	return t, nil
}

func (r *TokenRepository) Delete(ctx context.Context, userID string, v domain.AppVariant, token string) error {
	_, err := r.q.Exec(ctx, queryDeleteToken, userID, string(v), token)
	return mapPgError(err)
}
