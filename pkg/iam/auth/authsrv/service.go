package authsrv

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Abraxas-365/cabina/pkg/asyncx"
	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/iam/auth"
	"github.com/Abraxas-365/cabina/pkg/iam/tenant"
	"github.com/Abraxas-365/cabina/pkg/iam/user"
	"github.com/Abraxas-365/cabina/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/cabina/pkg/jobx"
	"github.com/Abraxas-365/cabina/pkg/kernel"
	"github.com/Abraxas-365/cabina/pkg/logx"
	"github.com/Abraxas-365/cabina/pkg/notifx"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// How many times the whole signup transaction retries when a concurrent
// signup wins the subdomain race. The unique constraint is the detector;
// every retry re-derives a fresh candidate slug.
const maxSignupAttempts = 3

// How far slug generation probes for a free suffix before giving up.
const maxSlugProbes = 100

const welcomeTemplate = "welcome"

// WelcomeEmailJobType identifies the welcome email job on the email queue.
const WelcomeEmailJobType = "email.welcome"

// EmailQueue is the job queue transactional emails are delivered on.
const EmailQueue = "emails"

// AuthService composes tenant resolution, identity verification,
// credential authentication, provisioning and token issuance into the
// gateway's entry flows.
type AuthService struct {
	db          *sqlx.DB
	tenants     tenant.Repository
	users       user.Repository
	userService *usersrv.UserService
	tokens      auth.TokenService
	verifier    auth.IdentityVerifier
	revocations auth.RevocationStore
	hasher      auth.PasswordHasher
	notifier    *notifx.Client
	jobs        jobx.Enqueuer
	baseDomain  string
}

// NewAuthService creates the gateway orchestrator. notifier may be nil to
// disable signup emails; jobs may be nil to deliver emails in-process
// instead of through the queue.
func NewAuthService(
	db *sqlx.DB,
	tenants tenant.Repository,
	users user.Repository,
	userService *usersrv.UserService,
	tokens auth.TokenService,
	verifier auth.IdentityVerifier,
	revocations auth.RevocationStore,
	hasher auth.PasswordHasher,
	notifier *notifx.Client,
	jobs jobx.Enqueuer,
	baseDomain string,
) *AuthService {
	s := &AuthService{
		db:          db,
		tenants:     tenants,
		users:       users,
		userService: userService,
		tokens:      tokens,
		verifier:    verifier,
		revocations: revocations,
		hasher:      hasher,
		notifier:    notifier,
		jobs:        jobs,
		baseDomain:  baseDomain,
	}

	if notifier != nil {
		if err := notifier.RegisterTemplate(welcomeTemplate, welcomeEmailHTML); err != nil {
			logx.WithError(err).Warn("failed to register welcome email template")
		}
	}

	return s
}

// ============================================================================
// Results
// ============================================================================

// UserSummary is the user shape returned by login and me.
type UserSummary struct {
	ID          kernel.UserID   `json:"id"`
	Email       string          `json:"email"`
	FullName    string          `json:"full_name"`
	TenantID    kernel.TenantID `json:"tenant_id"`
	IsActive    bool            `json:"is_active"`
	IsSuperuser bool            `json:"is_superuser"`
}

// NewUserSummary builds a summary from a user.
func NewUserSummary(u *user.User) UserSummary {
	return UserSummary{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		TenantID:    u.TenantID,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
	}
}

// FirebaseLoginResult confirms a tenant-scoped external-identity login.
// This flow intentionally issues no gateway tokens; subsequent requests
// re-present the Firebase ID token as the bearer credential.
type FirebaseLoginResult struct {
	Message   string `json:"message"`
	Email     string `json:"email"`
	Tenant    string `json:"tenant"`
	IsNewUser bool   `json:"is_new_user"`
}

// LoginResult carries the issued token pair and the user summary.
type LoginResult struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         UserSummary `json:"user"`
}

// SignupInput is the tenant+owner signup request.
type SignupInput struct {
	AgencyName string
	Email      string
	Password   string
	FullName   string
}

// TenantSummary is the tenant shape returned by signup; Subdomain is the
// fully qualified hostname.
type TenantSummary struct {
	ID        kernel.TenantID `json:"id"`
	Name      string          `json:"name"`
	Subdomain string          `json:"subdomain"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SignupResult confirms tenant and owner creation.
type SignupResult struct {
	Message string        `json:"message"`
	Tenant  TenantSummary `json:"tenant"`
}

// ============================================================================
// Flows
// ============================================================================

// FirebaseLogin verifies an external identity assertion against a tenant:
// verify token, resolve tenant, provision-or-match the user. A user bound
// to another tenant is rejected, never reassigned.
func (s *AuthService) FirebaseLogin(ctx context.Context, idToken, subdomain string) (*FirebaseLoginResult, error) {
	if idToken == "" || subdomain == "" {
		return nil, auth.ErrMissingFields().WithDetail("required", []string{"idToken", "subdomain"})
	}

	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	t, err := s.tenants.FindBySubdomain(ctx, subdomain)
	if err != nil {
		return nil, err
	}

	u, created, err := s.userService.ProvisionByIdentity(ctx, identity, t)
	if err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"user_id":     u.ID.String(),
		"tenant":      t.Subdomain,
		"is_new_user": created,
	}).Info("firebase login")

	return &FirebaseLoginResult{
		Message:   "Login successful",
		Email:     u.Email,
		Tenant:    t.Subdomain,
		IsNewUser: created,
	}, nil
}

// Login authenticates a local email+password pair scoped to a subdomain
// and issues a token pair. A subdomain mismatch is reported as 401, the
// same as bad credentials, mirroring the behavior callers rely on. Note
// the asymmetry with FirebaseLogin's 403 for cross-tenant access.
func (s *AuthService) Login(ctx context.Context, email, password, subdomain string) (*LoginResult, error) {
	if email == "" || password == "" || subdomain == "" {
		return nil, auth.ErrMissingFields().WithDetail("required", []string{"email", "password", "subdomain"})
	}

	u, err := s.userService.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	t, err := s.tenants.FindByID(ctx, u.TenantID)
	if err != nil || t.Subdomain != subdomain {
		return nil, auth.ErrSubdomainMismatch()
	}

	pair, err := s.tokens.IssueTokens(u)
	if err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"user_id": u.ID.String(),
		"tenant":  t.Subdomain,
	}).Info("local login")

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         NewUserSummary(u),
	}, nil
}

// Signup creates a tenant and its owner user in one transaction. The
// subdomain unique constraint is the race detector: when a concurrent
// signup claims the same slug first, the whole transaction aborts and
// retries with a freshly derived candidate. No tenant is ever left
// without an owner.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	if in.AgencyName == "" || in.Email == "" || in.Password == "" || in.FullName == "" {
		return nil, auth.ErrMissingFields().
			WithDetail("required", []string{"agency_name", "email", "password", "full_name"})
	}

	base := tenant.Slugify(in.AgencyName)
	if base == "" {
		return nil, tenant.ErrInvalidName().WithDetail("agency_name", in.AgencyName)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	var created *tenant.Tenant
	for attempt := 0; attempt < maxSignupAttempts; attempt++ {
		slug, err := s.generateUniqueSlug(ctx, base)
		if err != nil {
			return nil, err
		}

		created, err = s.signupTx(ctx, in, slug, hash)
		if err == nil {
			break
		}
		if errx.IsCode(err, tenant.CodeSubdomainTaken) && attempt < maxSignupAttempts-1 {
			// Lost the subdomain race; re-derive and retry.
			continue
		}
		if errx.IsCode(err, user.CodeEmailTaken) {
			// A duplicate owner email is a client mistake, not a race;
			// retrying cannot help and 409 is not part of this contract.
			return nil, auth.ErrEmailInUse().WithDetail("email", user.NormalizeEmail(in.Email))
		}
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"tenant":    created.Subdomain,
		"subdomain": created.Hostname(s.baseDomain),
	}).Info("tenant signup")

	s.sendWelcomeEmail(ctx, in, created)

	return &SignupResult{
		Message: "Tenant and user created successfully",
		Tenant: TenantSummary{
			ID:        created.ID,
			Name:      created.Name,
			Subdomain: created.Hostname(s.baseDomain),
			CreatedAt: created.CreatedAt,
			UpdatedAt: created.UpdatedAt,
		},
	}, nil
}

// signupTx runs the tenant+owner insert as one atomic unit.
func (s *AuthService) signupTx(ctx context.Context, in SignupInput, slug, passwordHash string) (*tenant.Tenant, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errx.Wrap(err, "failed to begin signup transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	t := &tenant.Tenant{
		ID:        kernel.NewTenantID(uuid.NewString()),
		Name:      in.AgencyName,
		Subdomain: slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tenants.CreateTx(ctx, tx, t); err != nil {
		return nil, err
	}

	owner := &user.User{
		ID:           kernel.NewUserID(uuid.NewString()),
		Email:        user.NormalizeEmail(in.Email),
		PasswordHash: &passwordHash,
		TenantID:     t.ID,
		FullName:     in.FullName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateTx(ctx, tx, owner); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errx.Wrap(err, "failed to commit signup transaction", errx.TypeInternal)
	}
	return t, nil
}

// generateUniqueSlug probes base, base-1, base-2, ... until a free slug is
// found. The result is advisory; the insert's unique constraint decides.
func (s *AuthService) generateUniqueSlug(ctx context.Context, base string) (string, error) {
	for attempt := 0; attempt < maxSlugProbes; attempt++ {
		candidate := tenant.SlugCandidate(base, attempt)
		exists, err := s.tenants.SubdomainExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", errx.Internal("exhausted subdomain candidates").WithDetail("base", base)
}

// Logout revokes a refresh token. The first revocation succeeds; any
// repeat or malformed input is a client-visible failure.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return auth.ErrRefreshMalformed()
	}

	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return err
	}

	revoked, err := s.revocations.Revoke(ctx, claims.TokenID, claims.ExpiresAt)
	if err != nil {
		return err
	}
	if !revoked {
		logx.WithField("jti", claims.TokenID).Debug("refresh token was already revoked")
		return auth.ErrAlreadyRevoked()
	}

	return nil
}

// WelcomeEmailPayload is the job body for a queued welcome email.
type WelcomeEmailPayload struct {
	To       string `json:"to"`
	Name     string `json:"name"`
	Agency   string `json:"agency"`
	Hostname string `json:"hostname"`
}

// sendWelcomeEmail notifies the new owner off the request path; failures
// are logged, never surfaced. With a job queue wired in, delivery gets the
// queue's durability and retries; otherwise an in-process goroutine does a
// best-effort send.
func (s *AuthService) sendWelcomeEmail(ctx context.Context, in SignupInput, t *tenant.Tenant) {
	if s.notifier == nil {
		return
	}

	payload := WelcomeEmailPayload{
		To:       user.NormalizeEmail(in.Email),
		Name:     in.FullName,
		Agency:   t.Name,
		Hostname: t.Hostname(s.baseDomain),
	}

	if s.jobs != nil {
		body, err := json.Marshal(payload)
		if err == nil {
			_, err = s.jobs.Enqueue(ctx, jobx.Job{
				Type:    WelcomeEmailJobType,
				Queue:   EmailQueue,
				Payload: body,
			})
		}
		if err != nil {
			logx.WithError(err).WithField("tenant", t.Subdomain).Warn("failed to enqueue welcome email")
		}
		return
	}

	asyncx.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		defer cancel()

		_, err := asyncx.RetryWithBackoff(ctx, 3, 2*time.Second, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.deliverWelcomeEmail(ctx, payload)
		})
		if err != nil {
			logx.WithError(err).WithField("tenant", t.Subdomain).Warn("welcome email failed")
		}
	})
}

// HandleWelcomeEmailJob is the queue handler for welcome emails.
func (s *AuthService) HandleWelcomeEmailJob(ctx context.Context, job *jobx.JobInfo) error {
	var payload WelcomeEmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errx.Wrap(err, "malformed welcome email payload", errx.TypeValidation)
	}
	return s.deliverWelcomeEmail(ctx, payload)
}

func (s *AuthService) deliverWelcomeEmail(ctx context.Context, payload WelcomeEmailPayload) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.SendTemplatedEmail(ctx, welcomeTemplate, map[string]string{
		"Name":     payload.Name,
		"Agency":   payload.Agency,
		"Hostname": payload.Hostname,
	}, notifx.EmailMessage{
		To:      []string{payload.To},
		Subject: "Welcome to " + payload.Agency,
	})
}

const welcomeEmailHTML = `<html><body>
<p>Hi {{.Name}},</p>
<p>Your agency <strong>{{.Agency}}</strong> is ready at
<a href="https://{{.Hostname}}">{{.Hostname}}</a>.</p>
<p>— The Cabina team</p>
</body></html>`
