package tenantinfra_test

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/iam/tenant"
	"github.com/Abraxas-365/cabina/pkg/iam/tenant/tenantinfra"
	"github.com/Abraxas-365/cabina/pkg/kernel"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func newMockRepo(t *testing.T) (tenant.Repository, sqlmock.Sqlmock, *sqlx.DB) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { rawDB.Close() })
	db := sqlx.NewDb(rawDB, "sqlmock")
	return tenantinfra.NewPostgresTenantRepository(db), mock, db
}

func tenantRows(t *tenant.Tenant) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "subdomain", "created_at", "updated_at"}).
		AddRow(t.ID.String(), t.Name, t.Subdomain, t.CreatedAt, t.UpdatedAt)
}

func TestFindBySubdomain(t *testing.T) {
	repo, mock, _ := newMockRepo(t)
	want := &tenant.Tenant{
		ID:        kernel.NewTenantID("tenant-1"),
		Name:      "Acme Travel",
		Subdomain: "acme",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	mock.ExpectQuery(`SELECT .+ FROM tenants WHERE subdomain = \$1`).
		WithArgs("acme").
		WillReturnRows(tenantRows(want))

	got, err := repo.FindBySubdomain(context.Background(), "acme")
	if err != nil {
		t.Fatalf("FindBySubdomain: %v", err)
	}
	if got.ID != want.ID || got.Subdomain != "acme" {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFindBySubdomainNotFound(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM tenants WHERE subdomain = \$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "subdomain", "created_at", "updated_at"}))

	_, err := repo.FindBySubdomain(context.Background(), "ghost")
	var e *errx.Error
	if !errx.As(err, &e) || e.Code != "TENANT_NOT_FOUND" {
		t.Fatalf("expected TENANT_NOT_FOUND, got %v", err)
	}
}

func TestSubdomainExists(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.SubdomainExists(context.Background(), "acme")
	if err != nil {
		t.Fatalf("SubdomainExists: %v", err)
	}
	if !exists {
		t.Fatal("expected exists = true")
	}
}

func TestCreateTxMapsUniqueViolation(t *testing.T) {
	repo, mock, db := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO tenants`).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	tx, err := db.Beginx()
	if err != nil {
		t.Fatalf("Beginx: %v", err)
	}
	defer tx.Rollback()

	err = repo.CreateTx(context.Background(), tx, &tenant.Tenant{
		ID:        kernel.NewTenantID("tenant-1"),
		Name:      "Acme",
		Subdomain: "acme",
	})
	var e *errx.Error
	if !errx.As(err, &e) || e.Code != "TENANT_SUBDOMAIN_TAKEN" {
		t.Fatalf("expected TENANT_SUBDOMAIN_TAKEN, got %v", err)
	}
}

func TestCreateTxInserts(t *testing.T) {
	repo, mock, db := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO tenants`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	if err != nil {
		t.Fatalf("Beginx: %v", err)
	}

	err = repo.CreateTx(context.Background(), tx, &tenant.Tenant{
		ID:        kernel.NewTenantID("tenant-1"),
		Name:      "Acme",
		Subdomain: "acme",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
