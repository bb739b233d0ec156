package sessions

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no session matches.
var ErrNotFound = errors.New("session not found")

// ErrNotActive is returned by conditional writes that require a live
// (non-revoked, non-expired) session.
var ErrNotActive = errors.New("session is revoked or expired")

// Repo manages server-side session rows. ReplaceFingerprint must be a single
// conditional write keyed on the fingerprint being replaced: of two
// concurrent rotations presenting the same secret exactly one can match, so
// rotation is linearizable per session without a read-check-write race.
type Repo interface {
	Insert(session *Session) error
	GetByID(id string) (*Session, error)

	// GetByFingerprint returns the session holding the fingerprint in any
	// lifecycle state; the caller decides whether it is usable.
	GetByFingerprint(fingerprint string) (*Session, error)

	// ReplaceFingerprint swaps oldFingerprint for newFingerprint iff the
	// session still holds oldFingerprint and is active at now. Returns
	// ErrNotActive otherwise.
	ReplaceFingerprint(id string, oldFingerprint, newFingerprint string, now time.Time) error

	// Revoke sets the revocation time if not already set. Idempotent.
	Revoke(id string, now time.Time) error

	// RevokeAllForUser revokes every active session of the user except the
	// one identified by keepID (pass "" to revoke all).
	RevokeAllForUser(userID string, keepID string, now time.Time) error

	CountActiveForUser(userID string, now time.Time) (int, error)

	// DeleteExpired reaps terminal rows past the cutoff; used by the
	// out-of-band janitor, never by request flows.
	DeleteExpired(cutoff time.Time) error
}
