package actiontoken

import "time"

// Kind identifies the out-of-band action a token authorizes.
type Kind string

const (
	KindEmailVerify   Kind = "EMAIL_VERIFY"
	KindPasswordReset Kind = "PASSWORD_RESET"
	KindEmailChange   Kind = "EMAIL_CHANGE"
)

// Token is a single-use credential for an out-of-band confirmation flow.
// Only the fingerprint of the random secret is stored; the raw secret is
// delivered to the user (e.g. embedded in a link) and never persisted.
// Once ConsumedAt is set the token can never be consumed again.
type Token struct {
	ID          string
	UserID      string
	Fingerprint string
	Kind        Kind
	Metadata    string // opaque payload, e.g. the pending address for EMAIL_CHANGE
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
}

// Consumable reports whether the token could still be consumed at the given
// time. The authoritative check-and-mark happens atomically in the repo.
func (t *Token) Consumable(now time.Time) bool {
	return t.ConsumedAt == nil && t.ExpiresAt.After(now)
}
