package auth

import (
	"context"
	"time"

	"github.com/Abraxas-365/cabina/pkg/iam/user"
)

// TokenService defines the contract for gateway token management.
type TokenService interface {
	// IssueTokens mints an access+refresh pair bound to the user. The
	// access token embeds tenant id and activity/superuser flags as claims.
	IssueTokens(u *user.User) (*TokenPair, error)

	// ValidateAccessToken validates and decodes an access token.
	ValidateAccessToken(token string) (*TokenClaims, error)

	// ParseRefreshToken validates a refresh token and returns its claims,
	// including the jti the revocation store is keyed by.
	ParseRefreshToken(token string) (*RefreshClaims, error)
}

// IdentityVerifier wraps the external identity issuer. Verification is a
// remote, timeout-bounded call; results are never cached across requests.
type IdentityVerifier interface {
	// Verify checks an identity assertion and extracts the stable external
	// id and email. Failures surface as IDENTITY_TOKEN_INVALID or
	// IDENTITY_TOKEN_EXPIRED, both 401-equivalent.
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

// RevocationStore tracks revoked refresh tokens by jti. Entries may be
// evicted once the token's natural expiry passes.
type RevocationStore interface {
	// Revoke marks a token id as revoked until its expiry. Returns false
	// when the id was already revoked; idempotent otherwise.
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error)

	// IsRevoked reports whether a token id has been revoked.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// PasswordHasher hashes and verifies password credentials. Comparison is
// constant-time, delegated to the underlying hash implementation.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool

	// DummyCompare burns a comparison against a fixed hash so the
	// unknown-email path costs the same as a wrong-password one.
	DummyCompare(password string)
}
