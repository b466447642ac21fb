package memory

import (
	"context"
	"strings"

	"github.com/NordCoder/upwatch/internal/domain/user"
	"github.com/NordCoder/upwatch/internal/repository"
)

var _ user.Reader = (*UserRepo)(nil)

type UserRepo struct{ s *Store }

func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrConflict
		}
	}
	u.ID = r.s.id()
	u.CreatedAt = r.s.now()
	cp := *u
	r.s.users[u.ID] = &cp
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}
