package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ferrington/bug-wars-client/internal/core/domain"
)

// RefreshTokenStore tracks issued refresh tokens with their TTL.
// Key format: refresh:<token> → account id
// Index:      refresh:account:<account_id> → set of tokens
type RefreshTokenStore struct {
	client *redis.Client
}

// NewRefreshTokenStore creates a RefreshTokenStore wrapping the given client.
func NewRefreshTokenStore(client *redis.Client) *RefreshTokenStore {
	return &RefreshTokenStore{client: client}
}

// Save records token for accountID; it expires after ttl.
func (r *RefreshTokenStore) Save(ctx context.Context, token, accountID string, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.tokenKey(token), accountID, ttl)
	pipe.SAdd(ctx, r.accountKey(accountID), token)
	pipe.Expire(ctx, r.accountKey(accountID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// Lookup returns the account owning token.
func (r *RefreshTokenStore) Lookup(ctx context.Context, token string) (string, error) {
	id, err := r.client.Get(ctx, r.tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrInvalidRefreshToken
	}
	if err != nil {
		return "", fmt.Errorf("lookup refresh token: %w", err)
	}
	return id, nil
}

// RevokeAll deletes every refresh token issued to accountID.
func (r *RefreshTokenStore) RevokeAll(ctx context.Context, accountID string) error {
	tokens, err := r.client.SMembers(ctx, r.accountKey(accountID)).Result()
	if err != nil {
		return fmt.Errorf("list refresh tokens: %w", err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, r.tokenKey(t))
	}
	keys = append(keys, r.accountKey(accountID))

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

func (r *RefreshTokenStore) tokenKey(token string) string {
	return "refresh:" + token
}

func (r *RefreshTokenStore) accountKey(accountID string) string {
	return "refresh:account:" + accountID
}
