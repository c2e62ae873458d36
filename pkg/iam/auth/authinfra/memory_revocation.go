package authinfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/cabina/pkg/iam/auth"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryRevocationStore implements auth.RevocationStore in process memory,
// for development and tests. go-cache evicts entries after the per-entry
// TTL, matching the bounded-growth behavior of the Redis store.
type MemoryRevocationStore struct {
	cache *gocache.Cache
}

// NewMemoryRevocationStore creates a new in-memory revocation store.
func NewMemoryRevocationStore() auth.RevocationStore {
	return &MemoryRevocationStore{
		cache: gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

// Revoke marks a token id as revoked until its expiry. go-cache's Add is
// atomic and fails when the key exists, mirroring Redis SETNX.
func (s *MemoryRevocationStore) Revoke(_ context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return false, nil
	}

	if err := s.cache.Add(tokenID, struct{}{}, ttl); err != nil {
		return false, nil // already revoked
	}
	return true, nil
}

// IsRevoked reports whether a token id has been revoked.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, found := s.cache.Get(tokenID)
	return found, nil
}
