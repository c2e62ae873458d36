package iamcontainer

import (
	"github.com/Abraxas-365/cabina/pkg/config"
	"github.com/Abraxas-365/cabina/pkg/iam/auth"
	"github.com/Abraxas-365/cabina/pkg/iam/auth/authapi"
	"github.com/Abraxas-365/cabina/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/cabina/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/cabina/pkg/iam/tenant/tenantinfra"
	"github.com/Abraxas-365/cabina/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/cabina/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/cabina/pkg/jobx"
	"github.com/Abraxas-365/cabina/pkg/logx"
	"github.com/Abraxas-365/cabina/pkg/notifx"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// ---------------------------------------------------------------------------
// Deps: explicit external dependencies this bounded context requires.
// No hidden globals, no ambient state — everything comes through here.
// ---------------------------------------------------------------------------

type Deps struct {
	DB    *sqlx.DB
	Redis *redis.Client // nil selects the in-memory revocation store
	Cfg   *config.Config

	// Notifier is injected so the IAM module has zero knowledge of the
	// concrete email provider. May be nil to disable signup emails.
	Notifier *notifx.Client

	// Jobs is the background queue transactional emails are enqueued on.
	// May be nil to deliver emails in-process instead.
	Jobs jobx.Enqueuer
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// Only expose what cmd/ actually needs; repos and infra stay private.
// ---------------------------------------------------------------------------

type Container struct {
	AuthService *authsrv.AuthService
	UserService *usersrv.UserService

	AuthHandlers *authapi.AuthHandlers

	TenantMiddleware *auth.TenantMiddleware
	AuthMiddleware   *auth.UnifiedAuthMiddleware
}

// New constructs the IAM dependency graph.
// Order matters: infra → repos → services → handlers → middleware.
func New(deps Deps) *Container {
	c := &Container{}

	// ── Repositories ─────────────────────────────────────────────────────

	tenantRepo := tenantinfra.NewPostgresTenantRepository(deps.DB)
	userRepo := userinfra.NewPostgresUserRepository(deps.DB)

	// ── Infrastructure services ──────────────────────────────────────────

	verifier := authinfra.NewFirebaseVerifier(
		deps.Cfg.Firebase.ProjectID,
		deps.Cfg.Firebase.CertsURL,
		deps.Cfg.Firebase.Timeout,
	)

	var revocations auth.RevocationStore
	if deps.Redis != nil {
		revocations = authinfra.NewRedisRevocationStore(deps.Redis)
	} else {
		revocations = authinfra.NewMemoryRevocationStore()
		logx.Warn("using in-memory revocation store; revocations do not survive restarts")
	}

	tokens := auth.NewJWTService(
		deps.Cfg.JWT.Secret,
		deps.Cfg.JWT.AccessTokenTTL,
		deps.Cfg.JWT.RefreshTokenTTL,
		deps.Cfg.JWT.Issuer,
	)
	hasher := auth.NewBcryptHasher(0)

	// ── Services ─────────────────────────────────────────────────────────

	c.UserService = usersrv.NewUserService(userRepo, hasher)
	c.AuthService = authsrv.NewAuthService(
		deps.DB,
		tenantRepo,
		userRepo,
		c.UserService,
		tokens,
		verifier,
		revocations,
		hasher,
		deps.Notifier,
		deps.Jobs,
		deps.Cfg.App.BaseDomain,
	)

	// ── Handlers & middleware ────────────────────────────────────────────

	c.AuthHandlers = authapi.NewAuthHandlers(c.AuthService)
	c.TenantMiddleware = auth.NewTenantMiddleware(tenantRepo)
	c.AuthMiddleware = auth.NewUnifiedAuthMiddleware(tokens, verifier, userRepo)

	return c
}
