package user

import (
	"context"

	"github.com/Abraxas-365/cabina/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// Repository defines the contract for user persistence. Email and
// firebase_uid uniqueness are storage-engine constraints, never
// application-level checks.
type Repository interface {
	// CreateTx inserts a user inside an existing transaction. Surfaces an
	// email collision as CodeEmailTaken.
	CreateTx(ctx context.Context, tx *sqlx.Tx, u *User) error

	// FindByID looks a user up by its identifier.
	FindByID(ctx context.Context, id kernel.UserID) (*User, error)

	// FindByEmail looks a user up by normalized email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByFirebaseUID looks a user up by its external identity id.
	FindByFirebaseUID(ctx context.Context, firebaseUID string) (*User, error)

	// GetOrCreateByFirebaseUID atomically fetches the user bound to the
	// given external identity id, creating it from defaults when absent.
	// Returns the user and whether it was created by this call.
	GetOrCreateByFirebaseUID(ctx context.Context, firebaseUID string, defaults *User) (*User, bool, error)

	// UpdateEmail overwrites the stored email. The identity issuer is the
	// source of truth for email, so drift is reconciled in its favor.
	UpdateEmail(ctx context.Context, id kernel.UserID, email string) error
}
