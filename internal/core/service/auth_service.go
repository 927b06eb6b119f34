package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Ferrington/bug-wars-client/internal/core/domain"
	"github.com/Ferrington/bug-wars-client/internal/core/ports"
	"github.com/Ferrington/bug-wars-client/internal/metrics"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// AuthService implements the reference auth API: registration, login with
// access/refresh tokens, refresh, logout and profile updates.
type AuthService struct {
	repo       ports.AccountRepository
	refresh    ports.RefreshTokenStore
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        zerolog.Logger
}

func NewAuthService(
	repo ports.AccountRepository,
	refresh ports.RefreshTokenStore,
	jwtSecret string,
	accessTTL, refreshTTL time.Duration,
	log zerolog.Logger,
) *AuthService {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &AuthService{
		repo:       repo,
		refresh:    refresh,
		jwtSecret:  jwtSecret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		log:        log.With().Str("component", "auth").Logger(),
	}
}

func (s *AuthService) Register(ctx context.Context, in domain.RegisterDTO) (*domain.Account, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	account := &domain.Account{
		Username:     username,
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: string(hash),
		Roles:        []string{domain.RoleUser},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.Create(ctx, account)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("username", created.Username).Msg("account registered")
	return created, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Account, domain.TokenPair, error) {
	if username == "" || password == "" {
		return nil, domain.TokenPair{}, domain.ErrInvalidCredentials
	}

	account, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, domain.TokenPair{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, domain.TokenPair{}, domain.ErrInvalidCredentials
	}

	access, err := s.generateAccessToken(account)
	if err != nil {
		return nil, domain.TokenPair{}, err
	}

	refresh := uuid.NewString()
	if err := s.refresh.Save(ctx, refresh, account.ID, s.refreshTTL); err != nil {
		return nil, domain.TokenPair{}, fmt.Errorf("login: %w", err)
	}
	metrics.TokensIssuedTotal.WithLabelValues("refresh").Inc()

	return account, domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh mints a new access token for the owner of refreshToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", domain.ErrInvalidRefreshToken
	}

	accountID, err := s.refresh.Lookup(ctx, refreshToken)
	if err != nil {
		return "", err
	}

	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		// The account is gone; the token is worthless.
		if err == domain.ErrUserNotFound {
			return "", domain.ErrInvalidRefreshToken
		}
		return "", err
	}

	return s.generateAccessToken(account)
}

// Logout revokes every refresh token of accountID.
func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	if err := s.refresh.RevokeAll(ctx, accountID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, accountID string, in domain.ProfileUpdateDTO) (*domain.Account, error) {
	account, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if username := strings.TrimSpace(in.Username); username != "" {
		account.Username = username
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		account.Email = email
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		account.PasswordHash = string(hash)
	}
	account.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AuthService) Me(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.repo.FindByID(ctx, accountID)
}

func (s *AuthService) generateAccessToken(account *domain.Account) (string, error) {
	claims := jwt.MapClaims{
		"sub":      account.ID,
		"username": account.Username,
		"roles":    account.Roles,
		"exp":      time.Now().Add(s.accessTTL).Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", err
	}
	metrics.TokensIssuedTotal.WithLabelValues("access").Inc()
	return signed, nil
}
