package userinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/Abraxas-365/cabina/pkg/iam/user"
	"github.com/Abraxas-365/cabina/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const userColumns = `id, email, firebase_uid, password_hash, tenant_id, full_name,
	is_active, is_superuser, is_staff, created_at, updated_at`

// PostgresUserRepository is the PostgreSQL implementation of user.Repository.
type PostgresUserRepository struct {
	db *sqlx.DB
}

// NewPostgresUserRepository creates a new user repository.
func NewPostgresUserRepository(db *sqlx.DB) user.Repository {
	return &PostgresUserRepository{
		db: db,
	}
}

// userPersistence mirrors the users table; nullable columns use sql.Null*.
type userPersistence struct {
	ID           string         `db:"id"`
	Email        string         `db:"email"`
	FirebaseUID  sql.NullString `db:"firebase_uid"`
	PasswordHash sql.NullString `db:"password_hash"`
	TenantID     sql.NullString `db:"tenant_id"`
	FullName     string         `db:"full_name"`
	IsActive     bool           `db:"is_active"`
	IsSuperuser  bool           `db:"is_superuser"`
	IsStaff      bool           `db:"is_staff"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func toPersistence(u *user.User) userPersistence {
	p := userPersistence{
		ID:          u.ID.String(),
		Email:       u.Email,
		FullName:    u.FullName,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		IsStaff:     u.IsStaff,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	if u.FirebaseUID != nil {
		p.FirebaseUID = sql.NullString{String: *u.FirebaseUID, Valid: true}
	}
	if u.PasswordHash != nil {
		p.PasswordHash = sql.NullString{String: *u.PasswordHash, Valid: true}
	}
	if !u.TenantID.IsEmpty() {
		p.TenantID = sql.NullString{String: u.TenantID.String(), Valid: true}
	}
	return p
}

func toDomain(p userPersistence) user.User {
	u := user.User{
		ID:          kernel.NewUserID(p.ID),
		Email:       p.Email,
		FullName:    p.FullName,
		IsActive:    p.IsActive,
		IsSuperuser: p.IsSuperuser,
		IsStaff:     p.IsStaff,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.FirebaseUID.Valid {
		uid := p.FirebaseUID.String
		u.FirebaseUID = &uid
	}
	if p.PasswordHash.Valid {
		hash := p.PasswordHash.String
		u.PasswordHash = &hash
	}
	if p.TenantID.Valid {
		u.TenantID = kernel.NewTenantID(p.TenantID.String)
	}
	return u
}

// CreateTx inserts a user inside the given transaction.
func (r *PostgresUserRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, u *user.User) error {
	query := `
		INSERT INTO users (
			id, email, firebase_uid, password_hash, tenant_id, full_name,
			is_active, is_superuser, is_staff, created_at, updated_at
		) VALUES (
			:id, :email, :firebase_uid, :password_hash, :tenant_id, :full_name,
			:is_active, :is_superuser, :is_staff, :created_at, :updated_at
		)`

	_, err := tx.NamedExecContext(ctx, query, toPersistence(u))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return user.ErrEmailTaken().WithDetail("email", u.Email)
		}
		return errx.Wrap(err, "failed to create user", errx.TypeInternal).
			WithDetail("email", u.Email)
	}
	return nil
}

// FindByID looks a user up by its identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id kernel.UserID) (*user.User, error) {
	var p userPersistence
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	err := r.db.GetContext(ctx, &p, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, user.ErrUserNotFound().WithDetail("user_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find user by id", errx.TypeInternal)
	}
	u := toDomain(p)
	return &u, nil
}

// FindByEmail looks a user up by normalized email.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	var p userPersistence
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	err := r.db.GetContext(ctx, &p, query, user.NormalizeEmail(email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, user.ErrUserNotFound()
		}
		return nil, errx.Wrap(err, "failed to find user by email", errx.TypeInternal)
	}
	u := toDomain(p)
	return &u, nil
}

// FindByFirebaseUID looks a user up by its external identity id.
func (r *PostgresUserRepository) FindByFirebaseUID(ctx context.Context, firebaseUID string) (*user.User, error) {
	var p userPersistence
	query := `SELECT ` + userColumns + ` FROM users WHERE firebase_uid = $1`
	err := r.db.GetContext(ctx, &p, query, firebaseUID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, user.ErrUserNotFound()
		}
		return nil, errx.Wrap(err, "failed to find user by firebase uid", errx.TypeInternal)
	}
	u := toDomain(p)
	return &u, nil
}

// GetOrCreateByFirebaseUID atomically fetches or creates the user bound to
// the given external identity id. The insert races cleanly: ON CONFLICT on
// the firebase_uid unique index means a concurrent identical login creates
// the row exactly once and both callers observe it.
func (r *PostgresUserRepository) GetOrCreateByFirebaseUID(ctx context.Context, firebaseUID string, defaults *user.User) (*user.User, bool, error) {
	insert := `
		INSERT INTO users (
			id, email, firebase_uid, password_hash, tenant_id, full_name,
			is_active, is_superuser, is_staff, created_at, updated_at
		) VALUES (
			:id, :email, :firebase_uid, :password_hash, :tenant_id, :full_name,
			:is_active, :is_superuser, :is_staff, :created_at, :updated_at
		)
		ON CONFLICT (firebase_uid) DO NOTHING
		RETURNING ` + userColumns

	rows, err := r.db.NamedQueryContext(ctx, insert, toPersistence(defaults))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation on email
			return nil, false, user.ErrEmailTaken().WithDetail("email", defaults.Email)
		}
		return nil, false, errx.Wrap(err, "failed to get-or-create user", errx.TypeInternal)
	}
	defer rows.Close()

	if rows.Next() {
		var p userPersistence
		if err := rows.StructScan(&p); err != nil {
			return nil, false, errx.Wrap(err, "failed to scan created user", errx.TypeInternal)
		}
		u := toDomain(p)
		return &u, true, nil
	}

	// No row means either the insert conflicted or the query died midway;
	// only the former may fall through to the lookup.
	if err := rows.Err(); err != nil {
		return nil, false, errx.Wrap(err, "failed to get-or-create user", errx.TypeInternal)
	}

	existing, err := r.FindByFirebaseUID(ctx, firebaseUID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// UpdateEmail overwrites the stored email address.
func (r *PostgresUserRepository) UpdateEmail(ctx context.Context, id kernel.UserID, email string) error {
	query := `UPDATE users SET email = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, user.NormalizeEmail(email), id.String())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return user.ErrEmailTaken().WithDetail("email", email)
		}
		return errx.Wrap(err, "failed to update user email", errx.TypeInternal)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on email update", errx.TypeInternal)
	}
	if rowsAffected == 0 {
		return user.ErrUserNotFound().WithDetail("user_id", id.String())
	}
	return nil
}
