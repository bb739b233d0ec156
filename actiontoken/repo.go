package actiontoken

import (
	"errors"
	"time"
)

// ErrNotConsumable is returned by Consume when no token matches the
// fingerprint and kind, or the matching token is already consumed or past
// its expiry. The branches are deliberately not distinguished.
var ErrNotConsumable = errors.New("action token not consumable")

// Repo manages stored action tokens. Consume must be a single indivisible
// check-and-mark (e.g. a conditional update), so of N concurrent consumers
// of the same token exactly one succeeds.
type Repo interface {
	Insert(token *Token) error

	// Consume marks the matching token consumed at now and returns it.
	// Fails with ErrNotConsumable if the token is absent, of a different
	// kind, already consumed, or expired.
	Consume(fingerprint string, kind Kind, now time.Time) (*Token, error)

	// DeleteUnconsumed removes every unconsumed token of the given user and
	// kind; used to supersede earlier tokens on reissue.
	DeleteUnconsumed(userID string, kind Kind) error

	// DeleteExpired reaps rows past the cutoff; janitor only.
	DeleteExpired(cutoff time.Time) error
}
