package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Abraxas-365/cabina/pkg/iam/user"
	"github.com/Abraxas-365/cabina/pkg/kernel"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTService implements TokenService using HS256 JWTs.
type JWTService struct {
	secretKey       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	issuer          string
}

// NewJWTService creates a new JWT token service.
func NewJWTService(secretKey string, accessTokenTTL, refreshTokenTTL time.Duration, issuer string) *JWTService {
	if accessTokenTTL == 0 {
		accessTokenTTL = 15 * time.Minute
	}
	if refreshTokenTTL == 0 {
		refreshTokenTTL = 7 * 24 * time.Hour
	}
	if issuer == "" {
		issuer = "cabina"
	}

	return &JWTService{
		secretKey:       []byte(secretKey),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		issuer:          issuer,
	}
}

// accessClaims is the wire form of TokenClaims.
type accessClaims struct {
	UserID      kernel.UserID   `json:"user_id"`
	TenantID    kernel.TenantID `json:"tenant_id"`
	Email       string          `json:"email"`
	IsActive    bool            `json:"is_active"`
	IsSuperuser bool            `json:"is_superuser"`
	jwt.RegisteredClaims
}

// refreshClaims is the wire form of RefreshClaims.
type refreshClaims struct {
	UserID kernel.UserID `json:"user_id"`
	jwt.RegisteredClaims
}

// IssueTokens mints an access+refresh pair bound to the user.
func (j *JWTService) IssueTokens(u *user.User) (*TokenPair, error) {
	now := time.Now()

	access := accessClaims{
		UserID:      u.ID,
		TenantID:    u.TenantID,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   u.ID.String(),
			Audience:  []string{j.issuer + "-api"},
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(j.secretKey)
	if err != nil {
		return nil, ErrTokenGenerationFailed().WithCause(err)
	}

	refresh := refreshClaims{
		UserID: u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Subject:   u.ID.String(),
			Audience:  []string{j.issuer + "-refresh"},
			ExpiresAt: jwt.NewNumericDate(now.Add(j.refreshTokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(j.secretKey)
	if err != nil {
		return nil, ErrTokenGenerationFailed().WithCause(err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// ValidateAccessToken validates and decodes an access token.
func (j *JWTService) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, j.keyFunc,
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(j.issuer+"-api"),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired()
		}
		return nil, ErrTokenValidationFailed().WithCause(err)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenValidationFailed().WithDetail("reason", "invalid claims type")
	}

	return &TokenClaims{
		UserID:      claims.UserID,
		TenantID:    claims.TenantID,
		Email:       claims.Email,
		IsActive:    claims.IsActive,
		IsSuperuser: claims.IsSuperuser,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// ParseRefreshToken validates a refresh token and returns its claims.
// Any defect, including expiry, surfaces as REFRESH_MALFORMED so logout
// maps every bad input to the same client-visible failure.
func (j *JWTService) ParseRefreshToken(tokenString string) (*RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &refreshClaims{}, j.keyFunc,
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(j.issuer+"-refresh"),
	)
	if err != nil {
		return nil, ErrRefreshMalformed().WithCause(err)
	}

	claims, ok := token.Claims.(*refreshClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrRefreshMalformed()
	}

	return &RefreshClaims{
		TokenID:   claims.ID,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (j *JWTService) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return j.secretKey, nil
}
