package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/cwrk-planet/comms-service/internal/domain"
)

// UserRepository reads the users table owned by the clinic application.
type UserRepository struct {
	q querier
}

func NewUserRepository(q querier) *UserRepository {
	return &UserRepository{q: q}
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.q.QueryRow(ctx, queryGetUser, id).Scan(&u.ID, &u.DisplayName, &u.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}
