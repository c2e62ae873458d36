package user

import (
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/kernel"
)

// User is a local account. It is created either by explicit signup
// (email+password bound to a fresh tenant in one transaction) or lazily on
// the first Firebase login, bound to the tenant named in that request.
// Once provisioned a user belongs to exactly one tenant, forever.
type User struct {
	ID           kernel.UserID   `json:"id"`
	Email        string          `json:"email"`
	FirebaseUID  *string         `json:"firebase_uid,omitempty"`
	PasswordHash *string         `json:"-"`
	TenantID     kernel.TenantID `json:"tenant_id"`
	FullName     string          `json:"full_name"`
	IsActive     bool            `json:"is_active"`
	IsSuperuser  bool            `json:"is_superuser"`
	IsStaff      bool            `json:"is_staff"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HasPasswordCredential reports whether this user can authenticate locally.
func (u *User) HasPasswordCredential() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// BelongsTo reports whether the user is bound to the given tenant.
func (u *User) BelongsTo(tenantID kernel.TenantID) bool {
	return u.TenantID == tenantID
}

// NormalizeEmail lowercases an email address so uniqueness checks and
// lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("USER")

var (
	CodeUserNotFound       = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User not found")
	CodeEmailTaken         = ErrRegistry.Register("EMAIL_TAKEN", errx.TypeConflict, http.StatusConflict, "Email is already registered")
	CodeInvalidCredentials = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credentials")
	CodeTenantMismatch     = ErrRegistry.Register("TENANT_MISMATCH", errx.TypeForbidden, http.StatusForbidden, "User belongs to another tenant")
)

func ErrUserNotFound() *errx.Error {
	return ErrRegistry.New(CodeUserNotFound)
}

func ErrEmailTaken() *errx.Error {
	return ErrRegistry.New(CodeEmailTaken)
}

func ErrInvalidCredentials() *errx.Error {
	return ErrRegistry.New(CodeInvalidCredentials)
}

func ErrTenantMismatch() *errx.Error {
	return ErrRegistry.New(CodeTenantMismatch)
}
