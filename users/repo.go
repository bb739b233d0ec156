package users

import "errors"

// ErrNotFound is returned by lookups when no user matches.
var ErrNotFound = errors.New("user not found")

// ErrDuplicateEmail is returned when an insert or email update would violate
// the normalized-email uniqueness invariant.
var ErrDuplicateEmail = errors.New("email already in use")

// Repo manages persistent user records. Email arguments are expected to be
// normalized by the caller. The epoch-bumping operations (UpdatePassword,
// UpdateEmail, BumpTokenVersion) must apply their changes as a single
// storage-level write so the token version can never lag the credential.
type Repo interface {
	Insert(user *User) error
	GetByID(id string) (*User, error)
	GetByEmail(email string) (*User, error)
	GetByProviderSub(provider, subject string) (*User, error)

	// UpdatePassword replaces the password hash and increments the token
	// version in one write.
	UpdatePassword(id string, passwordHash string) error

	// UpdateEmail replaces the email, marks the user verified, and
	// increments the token version in one write. Fails with
	// ErrDuplicateEmail if another user holds the address.
	UpdateEmail(id string, email string) error

	// LinkProvider binds an external provider identity to an existing user.
	LinkProvider(id string, provider, subject string) error

	SetVerified(id string, verified bool) error
	BumpTokenVersion(id string) error
	Delete(id string) error
	List(offset, limit int) ([]*User, error)
}
