package auth

import (
	"strings"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/iam"
	"github.com/Abraxas-365/cabina/pkg/iam/tenant"
	"github.com/Abraxas-365/cabina/pkg/iam/user"
	"github.com/Abraxas-365/cabina/pkg/kernel"
	"github.com/Abraxas-365/cabina/pkg/logx"
	"github.com/gofiber/fiber/v2"
)

// ExtractBearerToken pulls the credential out of an Authorization header:
// the last whitespace-separated segment, whatever the scheme.
func ExtractBearerToken(header string) string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// ============================================================================
// Tenant Middleware
// ============================================================================

// TenantMiddleware resolves the target tenant from the request host on
// every request. A miss is not an error; handlers that need a tenant
// decide for themselves.
type TenantMiddleware struct {
	tenants tenant.Repository
}

// NewTenantMiddleware creates a new tenant resolution middleware.
func NewTenantMiddleware(tenants tenant.Repository) *TenantMiddleware {
	return &TenantMiddleware{tenants: tenants}
}

// Resolve extracts the leftmost host label and attaches the matching
// tenant to request locals, if any.
func (tm *TenantMiddleware) Resolve() fiber.Handler {
	return func(c *fiber.Ctx) error {
		host := c.Hostname()
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}

		subdomain := host
		if i := strings.IndexByte(host, '.'); i >= 0 {
			subdomain = host[:i]
		}

		t, err := tm.tenants.FindBySubdomain(c.UserContext(), subdomain)
		if err == nil {
			c.Locals(kernel.TenantLocalsKey, &kernel.TenantContext{
				TenantID:  t.ID,
				Name:      t.Name,
				Subdomain: t.Subdomain,
			})
		} else if !errx.IsType(err, errx.TypeNotFound) {
			logx.WithError(err).Warn("tenant resolution failed")
		}

		return c.Next()
	}
}

// TenantFromLocals returns the resolved tenant context, if any.
func TenantFromLocals(c *fiber.Ctx) (*kernel.TenantContext, bool) {
	tc, ok := c.Locals(kernel.TenantLocalsKey).(*kernel.TenantContext)
	return tc, ok && tc != nil
}

// ============================================================================
// Unified Bearer Middleware
// ============================================================================

// UnifiedAuthMiddleware authenticates requests from an Authorization
// header. It accepts either a gateway-issued access token or a Firebase ID
// token, in that order. Both paths reload the user row so a deleted or
// deactivated account fails closed regardless of what the token claims.
type UnifiedAuthMiddleware struct {
	tokenService TokenService
	verifier     IdentityVerifier
	users        user.Repository
}

// NewUnifiedAuthMiddleware creates a new bearer authentication middleware.
func NewUnifiedAuthMiddleware(tokenService TokenService, verifier IdentityVerifier, users user.Repository) *UnifiedAuthMiddleware {
	return &UnifiedAuthMiddleware{
		tokenService: tokenService,
		verifier:     verifier,
		users:        users,
	}
}

// Authenticate validates the bearer credential and injects an AuthContext.
func (am *UnifiedAuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := ExtractBearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return iam.ErrUnauthorized().WriteFiber(c)
		}

		if ac, err := am.authenticateAccessToken(c, token); err == nil {
			c.Locals(kernel.AuthLocalsKey, ac)
			return c.Next()
		}

		ac, err := am.authenticateFirebaseToken(c, token)
		if err != nil {
			return iam.ErrInvalidToken().WriteFiber(c)
		}

		c.Locals(kernel.AuthLocalsKey, ac)
		return c.Next()
	}
}

func (am *UnifiedAuthMiddleware) authenticateAccessToken(c *fiber.Ctx, token string) (*kernel.AuthContext, error) {
	claims, err := am.tokenService.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}

	// Fail closed: the claims alone are not proof the user still exists.
	u, err := am.users.FindByID(c.UserContext(), claims.UserID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, iam.ErrUnauthorized()
	}

	return &kernel.AuthContext{
		UserID:      u.ID,
		TenantID:    u.TenantID,
		Email:       u.Email,
		FullName:    u.FullName,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		Method:      kernel.AuthMethodBearer,
	}, nil
}

func (am *UnifiedAuthMiddleware) authenticateFirebaseToken(c *fiber.Ctx, token string) (*kernel.AuthContext, error) {
	identity, err := am.verifier.Verify(c.UserContext(), token)
	if err != nil {
		return nil, err
	}

	u, err := am.users.FindByFirebaseUID(c.UserContext(), identity.UID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, iam.ErrUnauthorized()
	}

	return &kernel.AuthContext{
		UserID:      u.ID,
		TenantID:    u.TenantID,
		Email:       u.Email,
		FullName:    u.FullName,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		Method:      kernel.AuthMethodFirebase,
	}, nil
}

// AuthFromLocals returns the authenticated context set by Authenticate.
func AuthFromLocals(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	ac, ok := c.Locals(kernel.AuthLocalsKey).(*kernel.AuthContext)
	return ac, ok && ac != nil
}
