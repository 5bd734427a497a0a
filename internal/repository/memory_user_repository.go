package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/iliyamo/event-booking/internal/model"
)

// MemoryUserRepo is an in-process user directory.
type MemoryUserRepo struct {
	mu     sync.RWMutex
	users  map[int64]model.User
	nextID int64
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[int64]model.User)}
}

func (r *MemoryUserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range r.users {
		if u.Email != "" && existing.Email == u.Email {
			return ErrEmailExists
		}
	}
	if u.ID == 0 {
		r.nextID++
		for _, taken := r.users[r.nextID]; taken; _, taken = r.users[r.nextID] {
			r.nextID++
		}
		u.ID = r.nextID
	}
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryUserRepo) GetUser(_ context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return &u, nil
}
