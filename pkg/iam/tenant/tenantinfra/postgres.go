package tenantinfra

import (
	"context"
	"database/sql"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/iam/tenant"
	"github.com/Abraxas-365/cabina/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresTenantRepository is the PostgreSQL implementation of tenant.Repository.
type PostgresTenantRepository struct {
	db *sqlx.DB
}

// NewPostgresTenantRepository creates a new tenant repository.
func NewPostgresTenantRepository(db *sqlx.DB) tenant.Repository {
	return &PostgresTenantRepository{
		db: db,
	}
}

// CreateTx inserts a tenant inside the given transaction.
func (r *PostgresTenantRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, t *tenant.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, subdomain, created_at, updated_at)
		VALUES (:id, :name, :subdomain, :created_at, :updated_at)`

	_, err := tx.NamedExecContext(ctx, query, t)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return tenant.ErrSubdomainTaken().WithDetail("subdomain", t.Subdomain)
		}
		return errx.Wrap(err, "failed to create tenant", errx.TypeInternal).
			WithDetail("subdomain", t.Subdomain)
	}
	return nil
}

// FindBySubdomain resolves a slug to its tenant.
func (r *PostgresTenantRepository) FindBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	query := `SELECT id, name, subdomain, created_at, updated_at FROM tenants WHERE subdomain = $1`
	err := r.db.GetContext(ctx, &t, query, subdomain)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrTenantNotFound().WithDetail("subdomain", subdomain)
		}
		return nil, errx.Wrap(err, "failed to find tenant by subdomain", errx.TypeInternal)
	}
	return &t, nil
}

// FindByID looks a tenant up by its identifier.
func (r *PostgresTenantRepository) FindByID(ctx context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	var t tenant.Tenant
	query := `SELECT id, name, subdomain, created_at, updated_at FROM tenants WHERE id = $1`
	err := r.db.GetContext(ctx, &t, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrTenantNotFound().WithDetail("tenant_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find tenant by id", errx.TypeInternal)
	}
	return &t, nil
}

// SubdomainExists reports whether a slug is taken.
func (r *PostgresTenantRepository) SubdomainExists(ctx context.Context, subdomain string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM tenants WHERE subdomain = $1)`
	err := r.db.GetContext(ctx, &exists, query, subdomain)
	if err != nil {
		return false, errx.Wrap(err, "failed to check subdomain existence", errx.TypeInternal)
	}
	return exists, nil
}
