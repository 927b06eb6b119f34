package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Ferrington/bug-wars-client/internal/core/domain"
)

type refreshEntry struct {
	accountID string
	expiresAt time.Time
}

// RefreshTokenStore implements ports.RefreshTokenStore in memory. Expired
// entries are dropped lazily on lookup.
type RefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]refreshEntry
	now    func() time.Time
}

func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{tokens: make(map[string]refreshEntry), now: time.Now}
}

func (s *RefreshTokenStore) Save(_ context.Context, token, accountID string, ttl time.Duration) error {
	s.mu.Lock()
	s.tokens[token] = refreshEntry{accountID: accountID, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *RefreshTokenStore) Lookup(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tokens[token]
	if !ok {
		return "", domain.ErrInvalidRefreshToken
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.tokens, token)
		return "", domain.ErrInvalidRefreshToken
	}
	return e.accountID, nil
}

func (s *RefreshTokenStore) RevokeAll(_ context.Context, accountID string) error {
	s.mu.Lock()
	for token, e := range s.tokens {
		if e.accountID == accountID {
			delete(s.tokens, token)
		}
	}
	s.mu.Unlock()
	return nil
}
