// Package memory holds in-process stand-ins for the reference API's
// persistent backends.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Ferrington/bug-wars-client/internal/core/domain"
)

// AccountRepository implements ports.AccountRepository in memory.
type AccountRepository struct {
	mu         sync.RWMutex
	byID       map[string]*domain.Account
	byUsername map[string]string
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:       make(map[string]*domain.Account),
		byUsername: make(map[string]string),
	}
}

func cloneAccount(a *domain.Account) *domain.Account {
	clone := *a
	clone.Roles = append([]string{}, a.Roles...)
	return &clone
}

func (r *AccountRepository) Create(_ context.Context, account *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[account.Username]; exists {
		return nil, domain.ErrUserExists
	}
	stored := cloneAccount(account)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	r.byID[stored.ID] = stored
	r.byUsername[stored.Username] = stored.ID
	return cloneAccount(stored), nil
}

func (r *AccountRepository) FindByUsername(_ context.Context, username string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneAccount(r.byID[id]), nil
}

func (r *AccountRepository) FindByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneAccount(a), nil
}

func (r *AccountRepository) Update(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[account.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if owner, taken := r.byUsername[account.Username]; taken && owner != account.ID {
		return domain.ErrUserExists
	}
	delete(r.byUsername, current.Username)
	r.byID[account.ID] = cloneAccount(account)
	r.byUsername[account.Username] = account.ID
	return nil
}
