package auth

import (
	"github.com/Abraxas-365/cabina/pkg/errx"
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements PasswordHasher on top of golang.org/x/crypto/bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher with the given cost; zero means
// bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash derives a bcrypt hash from the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", errx.Wrap(err, "failed to hash password", errx.TypeInternal)
	}
	return string(out), nil
}

// Compare verifies a password against a stored hash.
func (h *BcryptHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// dummyHash is a hash of an unguessable random value, used only to equalize
// timing between unknown-email and wrong-password failures.
var dummyHash = func() []byte {
	out, _ := bcrypt.GenerateFromPassword([]byte("cabina-dummy-credential"), bcrypt.DefaultCost)
	return out
}()

// DummyCompare burns one bcrypt comparison against a fixed hash.
func (h *BcryptHasher) DummyCompare(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
