package sessions

import "time"

// Session represents one logged-in device or browser. The client holds the
// raw refresh secret; the server stores only its fingerprint. A session is
// active while RevokedAt is nil and ExpiresAt is in the future; once revoked
// or expired it is terminal and never reactivated.
type Session struct {
	ID          string     // Unique session identifier (UUID), stable across rotations
	UserID      string     // Owning user
	Fingerprint string     // One-way digest of the current refresh secret
	IP          string     // Origin IP captured at creation
	UserAgent   string     // User agent captured at creation
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time // Set once on revocation, never cleared
}

// Active reports whether the session can still be exchanged at the given time.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// Metadata carries the per-device attributes recorded when a session is
// created.
type Metadata struct {
	IP        string
	UserAgent string
}
