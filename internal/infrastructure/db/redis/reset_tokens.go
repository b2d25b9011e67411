package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
)

// ResetTokenStore keeps single-use password reset tokens.
// Key format: pwreset:<token> → identity id
type ResetTokenStore struct {
	client *redis.Client
}

func NewResetTokenStore(client *redis.Client) *ResetTokenStore {
	return &ResetTokenStore{client: client}
}

// Save binds token to identityID for ttl.
func (s *ResetTokenStore) Save(ctx context.Context, token, identityID string, ttl time.Duration) error {
	return s.client.Set(ctx, resetKey(token), identityID, ttl).Err()
}

// Consume atomically reads and deletes the token.
func (s *ResetTokenStore) Consume(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrInvalidResetToken
	}
	id, err := s.client.GetDel(ctx, resetKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrInvalidResetToken
		}
		return "", fmt.Errorf("consume reset token: %w", err)
	}
	return id, nil
}

func resetKey(token string) string {
	return "pwreset:" + token
}
