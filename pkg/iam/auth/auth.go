package auth

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/kernel"
)

// ============================================================================
// Token Types
// ============================================================================

// TokenPair is the result of issuing a session: a short-lived access token
// and a longer-lived, individually revocable refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenClaims are the validated claims of a gateway access token.
type TokenClaims struct {
	UserID      kernel.UserID   `json:"user_id"`
	TenantID    kernel.TenantID `json:"tenant_id"`
	Email       string          `json:"email"`
	IsActive    bool            `json:"is_active"`
	IsSuperuser bool            `json:"is_superuser"`
	IssuedAt    time.Time       `json:"iat"`
	ExpiresAt   time.Time       `json:"exp"`
}

// RefreshClaims are the validated claims of a refresh token: who it belongs
// to and the identifier the revocation store is keyed by.
type RefreshClaims struct {
	TokenID   string        `json:"jti"`
	UserID    kernel.UserID `json:"user_id"`
	ExpiresAt time.Time     `json:"exp"`
}

// Identity is the result of verifying an external identity assertion.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUTH")

var (
	CodeMissingFields         = ErrRegistry.Register("MISSING_FIELDS", errx.TypeValidation, http.StatusBadRequest, "Missing required fields")
	CodeIdentityTokenInvalid  = ErrRegistry.Register("IDENTITY_TOKEN_INVALID", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid identity token")
	CodeIdentityTokenExpired  = ErrRegistry.Register("IDENTITY_TOKEN_EXPIRED", errx.TypeAuthorization, http.StatusUnauthorized, "Expired identity token")
	CodeIdentityIncomplete    = ErrRegistry.Register("IDENTITY_INCOMPLETE", errx.TypeValidation, http.StatusBadRequest, "Identity token is missing email or uid")
	CodeTokenGenerationFailed = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Token generation failed")
	CodeTokenValidationFailed = ErrRegistry.Register("TOKEN_VALIDATION_FAILED", errx.TypeAuthorization, http.StatusUnauthorized, "Token validation failed")
	CodeTokenExpired          = ErrRegistry.Register("TOKEN_EXPIRED", errx.TypeAuthorization, http.StatusUnauthorized, "Token expired")
	CodeEmailInUse            = ErrRegistry.Register("EMAIL_IN_USE", errx.TypeValidation, http.StatusBadRequest, "Email is already registered")
	CodeRefreshMalformed      = ErrRegistry.Register("REFRESH_MALFORMED", errx.TypeValidation, http.StatusBadRequest, "Malformed refresh token")
	CodeAlreadyRevoked        = ErrRegistry.Register("ALREADY_REVOKED", errx.TypeValidation, http.StatusBadRequest, "Refresh token already revoked")
	CodeSubdomainMismatch     = ErrRegistry.Register("SUBDOMAIN_MISMATCH", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid subdomain for this user")
)

// Helper functions
func ErrMissingFields() *errx.Error {
	return ErrRegistry.New(CodeMissingFields)
}

func ErrIdentityTokenInvalid() *errx.Error {
	return ErrRegistry.New(CodeIdentityTokenInvalid)
}

func ErrIdentityTokenExpired() *errx.Error {
	return ErrRegistry.New(CodeIdentityTokenExpired)
}

func ErrIdentityIncomplete() *errx.Error {
	return ErrRegistry.New(CodeIdentityIncomplete)
}

func ErrTokenGenerationFailed() *errx.Error {
	return ErrRegistry.New(CodeTokenGenerationFailed)
}

func ErrTokenValidationFailed() *errx.Error {
	return ErrRegistry.New(CodeTokenValidationFailed)
}

func ErrTokenExpired() *errx.Error {
	return ErrRegistry.New(CodeTokenExpired)
}

func ErrEmailInUse() *errx.Error {
	return ErrRegistry.New(CodeEmailInUse)
}

func ErrRefreshMalformed() *errx.Error {
	return ErrRegistry.New(CodeRefreshMalformed)
}

func ErrAlreadyRevoked() *errx.Error {
	return ErrRegistry.New(CodeAlreadyRevoked)
}

func ErrSubdomainMismatch() *errx.Error {
	return ErrRegistry.New(CodeSubdomainMismatch)
}
