package authapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Abraxas-365/cabina/pkg/iam/auth"
	"github.com/Abraxas-365/cabina/pkg/iam/auth/authapi"
	"github.com/Abraxas-365/cabina/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/cabina/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/cabina/pkg/iam/tenant"
	"github.com/Abraxas-365/cabina/pkg/iam/user"
	"github.com/Abraxas-365/cabina/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/cabina/pkg/kernel"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// ============================================================================
// Fakes
// ============================================================================

type tenantRepoFake struct {
	tenants map[string]*tenant.Tenant
}

func (r *tenantRepoFake) CreateTx(_ context.Context, _ *sqlx.Tx, t *tenant.Tenant) error {
	if _, ok := r.tenants[t.Subdomain]; ok {
		return tenant.ErrSubdomainTaken()
	}
	r.tenants[t.Subdomain] = t
	return nil
}

func (r *tenantRepoFake) FindBySubdomain(_ context.Context, subdomain string) (*tenant.Tenant, error) {
	if t, ok := r.tenants[subdomain]; ok {
		return t, nil
	}
	return nil, tenant.ErrTenantNotFound()
}

func (r *tenantRepoFake) FindByID(_ context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	for _, t := range r.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound()
}

func (r *tenantRepoFake) SubdomainExists(_ context.Context, subdomain string) (bool, error) {
	_, ok := r.tenants[subdomain]
	return ok, nil
}

type userRepoFake struct {
	users map[kernel.UserID]*user.User
}

func (r *userRepoFake) CreateTx(_ context.Context, _ *sqlx.Tx, u *user.User) error {
	r.users[u.ID] = u
	return nil
}

func (r *userRepoFake) FindByID(_ context.Context, id kernel.UserID) (*user.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, user.ErrUserNotFound()
}

func (r *userRepoFake) FindByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range r.users {
		if u.Email == user.NormalizeEmail(email) {
			return u, nil
		}
	}
	return nil, user.ErrUserNotFound()
}

func (r *userRepoFake) FindByFirebaseUID(_ context.Context, uid string) (*user.User, error) {
	for _, u := range r.users {
		if u.FirebaseUID != nil && *u.FirebaseUID == uid {
			return u, nil
		}
	}
	return nil, user.ErrUserNotFound()
}

func (r *userRepoFake) GetOrCreateByFirebaseUID(ctx context.Context, uid string, defaults *user.User) (*user.User, bool, error) {
	if u, err := r.FindByFirebaseUID(ctx, uid); err == nil {
		return u, false, nil
	}
	r.users[defaults.ID] = defaults
	return defaults, true, nil
}

func (r *userRepoFake) UpdateEmail(_ context.Context, id kernel.UserID, email string) error {
	u, ok := r.users[id]
	if !ok {
		return user.ErrUserNotFound()
	}
	u.Email = user.NormalizeEmail(email)
	return nil
}

type verifierFake struct {
	identity *auth.Identity
}

func (v *verifierFake) Verify(context.Context, string) (*auth.Identity, error) {
	if v.identity == nil {
		return nil, auth.ErrIdentityTokenInvalid()
	}
	return v.identity, nil
}

// ============================================================================
// Fixture
// ============================================================================

type api struct {
	app  *fiber.App
	mock sqlmock.Sqlmock
}

func newAPI(t *testing.T, verifier auth.IdentityVerifier) *api {
	t.Helper()

	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { rawDB.Close() })
	db := sqlx.NewDb(rawDB, "sqlmock")

	tenants := &tenantRepoFake{tenants: map[string]*tenant.Tenant{}}
	users := &userRepoFake{users: map[kernel.UserID]*user.User{}}
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	tokens := auth.NewJWTService("test-secret", 15*time.Minute, time.Hour, "cabina")
	userService := usersrv.NewUserService(users, hasher)
	revocations := authinfra.NewMemoryRevocationStore()

	service := authsrv.NewAuthService(
		db, tenants, users, userService, tokens,
		verifier, revocations, hasher, nil, nil, "cabina.app",
	)

	app := fiber.New()
	app.Use(auth.NewTenantMiddleware(tenants).Resolve())
	handlers := authapi.NewAuthHandlers(service)
	authMW := auth.NewUnifiedAuthMiddleware(tokens, verifier, users)
	handlers.RegisterRoutes(app, authMW)

	return &api{app: app, mock: mock}
}

func (a *api) post(t *testing.T, path string, body any, headers map[string]string) (*fiber.Map, int) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := fiber.Map{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("unmarshal response %q: %v", raw, err)
		}
	}
	return &out, resp.StatusCode
}

func (a *api) signup(t *testing.T) {
	t.Helper()
	a.mock.ExpectBegin()
	a.mock.ExpectCommit()
	_, status := a.post(t, "/tenants/create", fiber.Map{
		"agency_name": "Acme Travel",
		"email":       "owner@acme.test",
		"password":    "hunter22",
		"full_name":   "Acme Owner",
	}, nil)
	if status != fiber.StatusCreated {
		t.Fatalf("signup status = %d, want 201", status)
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestCreateTenantEndpoint(t *testing.T) {
	a := newAPI(t, &verifierFake{})
	a.mock.ExpectBegin()
	a.mock.ExpectCommit()

	body, status := a.post(t, "/tenants/create", fiber.Map{
		"agency_name": "Acme Travel",
		"email":       "owner@acme.test",
		"password":    "hunter22",
		"full_name":   "Acme Owner",
	}, nil)
	if status != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body %v", status, body)
	}

	tenantBody, ok := (*body)["tenant"].(map[string]any)
	if !ok {
		t.Fatalf("missing tenant in response: %v", body)
	}
	if tenantBody["subdomain"] != "acme-travel.cabina.app" {
		t.Errorf("subdomain = %v, want acme-travel.cabina.app", tenantBody["subdomain"])
	}
}

func TestCreateTenantRejectsMissingFields(t *testing.T) {
	a := newAPI(t, &verifierFake{})

	body, status := a.post(t, "/tenants/create", fiber.Map{
		"agency_name": "Acme Travel",
	}, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %v", status, body)
	}
}

func TestLoginEndpoint(t *testing.T) {
	a := newAPI(t, &verifierFake{})
	a.signup(t)

	body, status := a.post(t, "/tenants/login", fiber.Map{
		"email":     "owner@acme.test",
		"password":  "hunter22",
		"subdomain": "acme-travel",
	}, nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body %v", status, body)
	}
	if s, _ := (*body)["access_token"].(string); s == "" {
		t.Fatalf("expected access token in body: %v", body)
	}
	if s, _ := (*body)["refresh_token"].(string); s == "" {
		t.Fatalf("expected refresh token in body: %v", body)
	}

	// Wrong subdomain with valid credentials is still a 401.
	body, status = a.post(t, "/tenants/login", fiber.Map{
		"email":     "owner@acme.test",
		"password":  "hunter22",
		"subdomain": "other",
	}, nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401, body %v", status, body)
	}
}

func TestLoginDefaultsSubdomainFromHost(t *testing.T) {
	a := newAPI(t, &verifierFake{})
	a.signup(t)

	// A request arriving on the tenant's own hostname may omit the
	// subdomain field; the host-resolved tenant fills it in.
	body, status := a.post(t, "http://acme-travel.cabina.app/tenants/login", fiber.Map{
		"email":    "owner@acme.test",
		"password": "hunter22",
	}, nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body %v", status, body)
	}
	if s, _ := (*body)["access_token"].(string); s == "" {
		t.Fatalf("expected access token in body: %v", body)
	}

	// On an unrecognized host the missing field is still a client error.
	body, status = a.post(t, "/tenants/login", fiber.Map{
		"email":    "owner@acme.test",
		"password": "hunter22",
	}, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %v", status, body)
	}
}

func TestLoginEndpointBadCredentials(t *testing.T) {
	a := newAPI(t, &verifierFake{})
	a.signup(t)

	body, status := a.post(t, "/tenants/login", fiber.Map{
		"email":     "owner@acme.test",
		"password":  "wrong",
		"subdomain": "acme-travel",
	}, nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401, body %v", status, body)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	a := newAPI(t, &verifierFake{})
	a.signup(t)

	loginBody, status := a.post(t, "/tenants/login", fiber.Map{
		"email":     "owner@acme.test",
		"password":  "hunter22",
		"subdomain": "acme-travel",
	}, nil)
	if status != fiber.StatusOK {
		t.Fatalf("login status = %d", status)
	}
	access, _ := (*loginBody)["access_token"].(string)
	refresh, _ := (*loginBody)["refresh_token"].(string)
	authHeader := map[string]string{"Authorization": "Bearer " + access}

	_, status = a.post(t, "/tenants/logout", fiber.Map{"refresh_token": refresh}, authHeader)
	if status != fiber.StatusResetContent {
		t.Fatalf("logout status = %d, want 205", status)
	}

	// Replaying the same refresh token is a client error.
	body, status := a.post(t, "/tenants/logout", fiber.Map{"refresh_token": refresh}, authHeader)
	if status != fiber.StatusBadRequest {
		t.Fatalf("second logout status = %d, want 400, body %v", status, body)
	}
}

func TestLogoutRequiresAuth(t *testing.T) {
	a := newAPI(t, &verifierFake{})

	_, status := a.post(t, "/tenants/logout", fiber.Map{"refresh_token": "x"}, nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
}

func TestMeEndpoint(t *testing.T) {
	a := newAPI(t, &verifierFake{})
	a.signup(t)

	loginBody, status := a.post(t, "/tenants/login", fiber.Map{
		"email":     "owner@acme.test",
		"password":  "hunter22",
		"subdomain": "acme-travel",
	}, nil)
	if status != fiber.StatusOK {
		t.Fatalf("login status = %d", status)
	}
	access, _ := (*loginBody)["access_token"].(string)

	req := httptest.NewRequest("GET", "/tenants/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := a.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("me status = %d, want 200", resp.StatusCode)
	}

	var me map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me["email"] != "owner@acme.test" {
		t.Errorf("email = %v", me["email"])
	}
}

func TestFirebaseLoginEndpoint(t *testing.T) {
	verifier := &verifierFake{identity: &auth.Identity{
		UID: "fb-1", Email: "pilot@acme.test", Name: "Pilot One",
	}}
	a := newAPI(t, verifier)
	a.signup(t)

	body, status := a.post(t, "/firebase-login", fiber.Map{
		"idToken":   "some-firebase-token",
		"subdomain": "acme-travel",
	}, nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body %v", status, body)
	}
	if (*body)["is_new_user"] != true {
		t.Errorf("is_new_user = %v, want true", (*body)["is_new_user"])
	}
	if (*body)["tenant"] != "acme-travel" {
		t.Errorf("tenant = %v", (*body)["tenant"])
	}
}

func TestFirebaseLoginUnknownTenant(t *testing.T) {
	verifier := &verifierFake{identity: &auth.Identity{UID: "fb-1", Email: "pilot@acme.test"}}
	a := newAPI(t, verifier)

	body, status := a.post(t, "/firebase-login", fiber.Map{
		"idToken":   "some-firebase-token",
		"subdomain": "ghost",
	}, nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404, body %v", status, body)
	}
}
