package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

type userRepositoryInMemory struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
}

// NewUserRepository создаёт in-memory хранилище пользователей.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *userRepositoryInMemory) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := domain.NormalizeEmail(user.Email)
	if _, taken := r.byEmail[email]; taken {
		return domain.ErrUserExists
	}
	user.Email = email
	r.byID[user.ID] = user
	r.byEmail[email] = user.ID
	return nil
}

func (r *userRepositoryInMemory) Get(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *userRepositoryInMemory) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return r.byID[id], nil
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
