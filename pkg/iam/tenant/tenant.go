package tenant

import (
	"net/http"
	"time"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/kernel"
)

// Tenant is an isolated customer organization, addressed by a globally
// unique subdomain slug. The subdomain never changes after creation.
type Tenant struct {
	ID        kernel.TenantID `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Subdomain string          `db:"subdomain" json:"subdomain"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Hostname returns the fully qualified hostname for this tenant.
func (t *Tenant) Hostname(baseDomain string) string {
	return t.Subdomain + "." + baseDomain
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("TENANT")

var (
	CodeTenantNotFound = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Tenant not found")
	CodeSubdomainTaken = ErrRegistry.Register("SUBDOMAIN_TAKEN", errx.TypeConflict, http.StatusConflict, "Subdomain is already taken")
	CodeInvalidName    = ErrRegistry.Register("INVALID_NAME", errx.TypeValidation, http.StatusBadRequest, "Tenant name yields no valid subdomain")
)

func ErrTenantNotFound() *errx.Error {
	return ErrRegistry.New(CodeTenantNotFound)
}

func ErrSubdomainTaken() *errx.Error {
	return ErrRegistry.New(CodeSubdomainTaken)
}

func ErrInvalidName() *errx.Error {
	return ErrRegistry.New(CodeInvalidName)
}
