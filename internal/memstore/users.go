package memstore

import (
	"context"
	"sync"

	"github.com/cwrk-planet/comms-service/internal/domain"
)

type Users struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUsers(seed ...domain.User) *Users {
	u := &Users{users: make(map[string]domain.User, len(seed))}
	for _, s := range seed {
		u.users[s.ID] = s
	}
	return u
}

func (u *Users) Put(user domain.User) {
	u.mu.Lock()
	u.users[user.ID] = user
	u.mu.Unlock()
}

func (u *Users) GetUser(_ context.Context, id string) (domain.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}
