package authinfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/iam/auth"
	"github.com/redis/go-redis/v9"
)

const revocationKeyPrefix = "auth:revoked:"

// RedisRevocationStore implements auth.RevocationStore on Redis. Entries
// carry a TTL equal to the token's remaining lifetime, so the set never
// outgrows the number of live refresh tokens.
type RedisRevocationStore struct {
	client *redis.Client
}

// NewRedisRevocationStore creates a new Redis-backed revocation store.
func NewRedisRevocationStore(client *redis.Client) auth.RevocationStore {
	return &RedisRevocationStore{client: client}
}

// Revoke marks a token id as revoked until its expiry. SETNX makes the
// operation race-safe: exactly one caller observes the first revocation.
func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Expired tokens are unusable anyway; treat as already revoked.
		return false, nil
	}

	ok, err := s.client.SetNX(ctx, revocationKeyPrefix+tokenID, 1, ttl).Result()
	if err != nil {
		return false, errx.Wrap(err, "failed to revoke token", errx.TypeInternal)
	}
	return ok, nil
}

// IsRevoked reports whether a token id has been revoked.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, revocationKeyPrefix+tokenID).Result()
	if err != nil {
		return false, errx.Wrap(err, "failed to check token revocation", errx.TypeInternal)
	}
	return n > 0, nil
}
