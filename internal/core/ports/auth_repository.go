package ports

import (
	"context"
	"time"

	"github.com/Ferrington/bug-wars-client/internal/core/domain"
)

// AccountRepository defines persistence for registered accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) (*domain.Account, error)
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	Update(ctx context.Context, account *domain.Account) error
}

// RefreshTokenStore tracks issued refresh tokens.
type RefreshTokenStore interface {
	Save(ctx context.Context, token, accountID string, ttl time.Duration) error
	// Lookup returns the owning account id or domain.ErrInvalidRefreshToken.
	Lookup(ctx context.Context, token string) (string, error)
	RevokeAll(ctx context.Context, accountID string) error
}
