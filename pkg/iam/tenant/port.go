package tenant

import (
	"context"

	"github.com/Abraxas-365/cabina/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// Repository defines the contract for tenant persistence. Subdomain
// uniqueness is enforced by the storage engine; Create and CreateTx
// surface a collision as CodeSubdomainTaken so callers can use the
// constraint itself as the race detector.
type Repository interface {
	// CreateTx inserts a tenant inside an existing transaction. Signup uses
	// this so the tenant and its owner user commit or abort together.
	CreateTx(ctx context.Context, tx *sqlx.Tx, t *Tenant) error

	// FindBySubdomain resolves a slug to its tenant. This runs on every
	// request via the tenant middleware, backed by the unique index.
	FindBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)

	// FindByID looks a tenant up by its identifier.
	FindByID(ctx context.Context, id kernel.TenantID) (*Tenant, error)

	// SubdomainExists reports whether a slug is taken. Used by slug
	// generation; the result is advisory only, the unique constraint has
	// the final word.
	SubdomainExists(ctx context.Context, subdomain string) (bool, error)
}
