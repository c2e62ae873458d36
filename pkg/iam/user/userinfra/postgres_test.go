package userinfra_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/iam/user"
	"github.com/Abraxas-365/cabina/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/cabina/pkg/kernel"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var errConnReset = errors.New("connection reset")

var userCols = []string{
	"id", "email", "firebase_uid", "password_hash", "tenant_id", "full_name",
	"is_active", "is_superuser", "is_staff", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (user.Repository, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { rawDB.Close() })
	return userinfra.NewPostgresUserRepository(sqlx.NewDb(rawDB, "sqlmock")), mock
}

func userRow(id, email, firebaseUID, tenantID string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(userCols).
		AddRow(id, email, firebaseUID, nil, tenantID, "Some User", true, false, false, now, now)
}

func TestFindByEmailNormalizesLookup(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("owner@acme.test").
		WillReturnRows(userRow("user-1", "owner@acme.test", "fb-1", "tenant-1"))

	u, err := repo.FindByEmail(context.Background(), "  Owner@Acme.Test ")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.ID.String() != "user-1" {
		t.Errorf("ID = %q", u.ID)
	}
	if u.FirebaseUID == nil || *u.FirebaseUID != "fb-1" {
		t.Error("firebase uid not mapped")
	}
	if u.PasswordHash != nil {
		t.Error("null password hash must map to nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFindByEmailNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := repo.FindByEmail(context.Background(), "ghost@acme.test")
	var e *errx.Error
	if !errx.As(err, &e) || e.Code != "USER_NOT_FOUND" {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

func firebaseDefaults() *user.User {
	uid := "fb-1"
	now := time.Now().UTC()
	return &user.User{
		ID:          kernel.NewUserID("user-new"),
		Email:       "pilot@acme.test",
		FirebaseUID: &uid,
		TenantID:    kernel.NewTenantID("tenant-1"),
		FullName:    "Pilot One",
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestGetOrCreateInsertsNewUser(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO users .+ ON CONFLICT \(firebase_uid\) DO NOTHING`).
		WillReturnRows(userRow("user-new", "pilot@acme.test", "fb-1", "tenant-1"))

	u, created, err := repo.GetOrCreateByFirebaseUID(context.Background(), "fb-1", firebaseDefaults())
	if err != nil {
		t.Fatalf("GetOrCreateByFirebaseUID: %v", err)
	}
	if !created {
		t.Fatal("expected created = true when the insert returned a row")
	}
	if u.ID.String() != "user-new" {
		t.Errorf("ID = %q", u.ID)
	}
}

func TestGetOrCreateFindsExistingUser(t *testing.T) {
	repo, mock := newMockRepo(t)

	// ON CONFLICT DO NOTHING returns no rows when the uid already exists;
	// the repository then falls back to a plain lookup.
	mock.ExpectQuery(`INSERT INTO users .+ ON CONFLICT \(firebase_uid\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectQuery(`SELECT .+ FROM users WHERE firebase_uid = \$1`).
		WithArgs("fb-1").
		WillReturnRows(userRow("user-old", "pilot@acme.test", "fb-1", "tenant-1"))

	u, created, err := repo.GetOrCreateByFirebaseUID(context.Background(), "fb-1", firebaseDefaults())
	if err != nil {
		t.Fatalf("GetOrCreateByFirebaseUID: %v", err)
	}
	if created {
		t.Fatal("expected created = false when the row already existed")
	}
	if u.ID.String() != "user-old" {
		t.Errorf("ID = %q, want the existing row", u.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetOrCreateSurfacesRowIterationError(t *testing.T) {
	repo, mock := newMockRepo(t)

	// A query that dies mid-iteration must not be misread as "insert was a
	// no-op" and turned into a not-found from the fallback lookup.
	now := time.Now().UTC()
	broken := sqlmock.NewRows(userCols).
		AddRow("user-new", "pilot@acme.test", "fb-1", nil, "tenant-1", "Pilot One", true, false, false, now, now).
		RowError(0, errConnReset)
	mock.ExpectQuery(`INSERT INTO users .+ ON CONFLICT \(firebase_uid\) DO NOTHING`).
		WillReturnRows(broken)

	_, _, err := repo.GetOrCreateByFirebaseUID(context.Background(), "fb-1", firebaseDefaults())
	if !errx.IsType(err, errx.TypeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	var e *errx.Error
	if errx.As(err, &e) && e.Code == "USER_NOT_FOUND" {
		t.Fatal("iteration error must not surface as USER_NOT_FOUND")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateEmail(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE users SET email = \$1`).
		WithArgs("new@acme.test", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateEmail(context.Background(), kernel.NewUserID("user-1"), "New@Acme.Test")
	if err != nil {
		t.Fatalf("UpdateEmail: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateEmailUnknownUser(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE users SET email = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateEmail(context.Background(), kernel.NewUserID("ghost"), "new@acme.test")
	var e *errx.Error
	if !errx.As(err, &e) || e.Code != "USER_NOT_FOUND" {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}
