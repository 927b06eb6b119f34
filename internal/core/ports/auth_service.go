package ports

import (
	"context"

	"github.com/Ferrington/bug-wars-client/internal/core/domain"
)

// AuthService is the reference auth API's use-case layer.
type AuthService interface {
	Register(ctx context.Context, in domain.RegisterDTO) (*domain.Account, error)
	Login(ctx context.Context, username, password string) (*domain.Account, domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, accountID string) error
	UpdateProfile(ctx context.Context, accountID string, in domain.ProfileUpdateDTO) (*domain.Account, error)
	Me(ctx context.Context, accountID string) (*domain.Account, error)
}
