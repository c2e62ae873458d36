package authapi

import (
	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/iam"
	"github.com/Abraxas-365/cabina/pkg/iam/auth"
	"github.com/Abraxas-365/cabina/pkg/iam/auth/authsrv"
	"github.com/gofiber/fiber/v2"
)

// AuthHandlers exposes the gateway flows over HTTP.
type AuthHandlers struct {
	service *authsrv.AuthService
}

// NewAuthHandlers creates the HTTP handlers for the auth flows.
func NewAuthHandlers(service *authsrv.AuthService) *AuthHandlers {
	return &AuthHandlers{service: service}
}

// RegisterRoutes mounts the auth endpoints on the app. The logout and me
// endpoints require an authenticated bearer context.
func (h *AuthHandlers) RegisterRoutes(app *fiber.App, authMW *auth.UnifiedAuthMiddleware) {
	app.Post("/firebase-login", h.FirebaseLogin)

	tenants := app.Group("/tenants")
	tenants.Post("/create", h.CreateTenant)
	tenants.Post("/login", h.Login)
	tenants.Post("/logout", authMW.Authenticate(), h.Logout)
	tenants.Get("/me", authMW.Authenticate(), h.Me)
}

// ============================================================================
// Requests
// ============================================================================

type firebaseLoginRequest struct {
	IDToken   string `json:"idToken"`
	Subdomain string `json:"subdomain"`
}

type createTenantRequest struct {
	AgencyName string `json:"agency_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	FullName   string `json:"full_name"`
}

type loginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Subdomain string `json:"subdomain"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ============================================================================
// Handlers
// ============================================================================

// subdomainOrResolved falls back to the tenant resolved from the request
// host when the body does not name a subdomain. Requests arriving on a
// tenant's own hostname may omit the field.
func subdomainOrResolved(c *fiber.Ctx, subdomain string) string {
	if subdomain != "" {
		return subdomain
	}
	if tc, ok := auth.TenantFromLocals(c); ok {
		return tc.Subdomain
	}
	return ""
}

// FirebaseLogin handles POST /firebase-login.
func (h *AuthHandlers) FirebaseLogin(c *fiber.Ctx) error {
	var req firebaseLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrMissingFields().WithCause(err).WriteFiber(c)
	}

	result, err := h.service.FirebaseLogin(c.UserContext(), req.IDToken, subdomainOrResolved(c, req.Subdomain))
	if err != nil {
		return errx.HandleFiberError(c, err)
	}

	return c.JSON(result)
}

// CreateTenant handles POST /tenants/create.
func (h *AuthHandlers) CreateTenant(c *fiber.Ctx) error {
	var req createTenantRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrMissingFields().WithCause(err).WriteFiber(c)
	}

	result, err := h.service.Signup(c.UserContext(), authsrv.SignupInput{
		AgencyName: req.AgencyName,
		Email:      req.Email,
		Password:   req.Password,
		FullName:   req.FullName,
	})
	if err != nil {
		return errx.HandleFiberError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// Login handles POST /tenants/login.
func (h *AuthHandlers) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrMissingFields().WithCause(err).WriteFiber(c)
	}

	result, err := h.service.Login(c.UserContext(), req.Email, req.Password, subdomainOrResolved(c, req.Subdomain))
	if err != nil {
		return errx.HandleFiberError(c, err)
	}

	return c.JSON(result)
}

// Logout handles POST /tenants/logout. Success is 205 with an empty body;
// any malformed or already-revoked token is a 400.
func (h *AuthHandlers) Logout(c *fiber.Ctx) error {
	var req logoutRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrRefreshMalformed().WithCause(err).WriteFiber(c)
	}

	if err := h.service.Logout(c.UserContext(), req.RefreshToken); err != nil {
		return errx.HandleFiberError(c, err)
	}

	return c.SendStatus(fiber.StatusResetContent)
}

// Me handles GET /tenants/me from the authenticated context.
func (h *AuthHandlers) Me(c *fiber.Ctx) error {
	ac, ok := auth.AuthFromLocals(c)
	if !ok {
		return iam.ErrUnauthorized().WriteFiber(c)
	}

	return c.JSON(fiber.Map{
		"id":           ac.UserID,
		"email":        ac.Email,
		"full_name":    ac.FullName,
		"tenant_id":    ac.TenantID,
		"is_active":    ac.IsActive,
		"is_superuser": ac.IsSuperuser,
	})
}
