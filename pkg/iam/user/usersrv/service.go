package usersrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/iam/auth"
	"github.com/Abraxas-365/cabina/pkg/iam/tenant"
	"github.com/Abraxas-365/cabina/pkg/iam/user"
	"github.com/Abraxas-365/cabina/pkg/kernel"
	"github.com/Abraxas-365/cabina/pkg/logx"
	"github.com/google/uuid"
)

// UserService implements local credential authentication and account
// provisioning for externally verified identities.
type UserService struct {
	users  user.Repository
	hasher auth.PasswordHasher
}

// NewUserService creates a new user service.
func NewUserService(users user.Repository, hasher auth.PasswordHasher) *UserService {
	return &UserService{
		users:  users,
		hasher: hasher,
	}
}

// Authenticate validates an email+password pair. Unknown email and wrong
// password collapse into the same INVALID_CREDENTIALS signal; a dummy hash
// comparison keeps the two paths at comparable cost.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*user.User, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			s.hasher.DummyCompare(password)
			return nil, user.ErrInvalidCredentials()
		}
		return nil, err
	}

	if !u.HasPasswordCredential() || !s.hasher.Compare(*u.PasswordHash, password) {
		return nil, user.ErrInvalidCredentials()
	}

	if !u.IsActive {
		return nil, user.ErrInvalidCredentials()
	}

	return u, nil
}

// ProvisionByIdentity ensures a user row exists for the verified external
// identity, bound to the requested tenant. The tenant-mismatch check runs
// before any mutation: a user bound to another tenant is never reassigned
// and never has its email touched.
func (s *UserService) ProvisionByIdentity(ctx context.Context, identity *auth.Identity, t *tenant.Tenant) (*user.User, bool, error) {
	now := time.Now().UTC()
	uid := identity.UID
	defaults := &user.User{
		ID:          kernel.NewUserID(uuid.NewString()),
		Email:       user.NormalizeEmail(identity.Email),
		FirebaseUID: &uid,
		TenantID:    t.ID,
		FullName:    identity.Name,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	u, created, err := s.users.GetOrCreateByFirebaseUID(ctx, identity.UID, defaults)
	if err != nil {
		return nil, false, err
	}

	if !u.BelongsTo(t.ID) {
		return nil, false, user.ErrTenantMismatch().
			WithDetail("tenant", t.Subdomain)
	}

	// The identity issuer owns the email; reconcile drift in its favor.
	if normalized := user.NormalizeEmail(identity.Email); u.Email != normalized {
		if err := s.users.UpdateEmail(ctx, u.ID, normalized); err != nil {
			return nil, false, err
		}
		logx.WithFields(logx.Fields{
			"user_id": u.ID.String(),
		}).Info("reconciled email drift from identity issuer")
		u.Email = normalized
	}

	return u, created, nil
}
