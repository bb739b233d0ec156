package sessions

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/pkg/errors"
)

// DefaultMaxAge is the refresh-session lifetime used when none is configured.
const DefaultMaxAge = 90 * 24 * time.Hour

// Store issues, rotates and revokes refresh-token-backed sessions. Raw
// refresh secrets are returned to the caller exactly once and only their
// fingerprints are persisted, so a storage compromise yields no usable
// secrets. Rotation-on-use limits a stolen secret's replay window to a
// single exchange.
type Store struct {
	repo    Repo
	maxAge  time.Duration
	random  io.Reader        // secure random source (injectable for testing)
	nowTime func() time.Time // nowTime function (injectable for testing)
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// WithRandom sets the random source used for refresh secrets (primarily for
// testing).
func WithRandom(random io.Reader) StoreOption {
	return func(s *Store) {
		s.random = random
	}
}

// WithMaxAge sets the session lifetime.
func WithMaxAge(maxAge time.Duration) StoreOption {
	return func(s *Store) {
		if maxAge > 0 {
			s.maxAge = maxAge
		}
	}
}

// NewStore initializes a session store backed by the given repo.
func NewStore(repo Repo, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[NewStore] session repo is required")
	}

	store := &Store{
		repo:    repo,
		maxAge:  DefaultMaxAge,
		nowTime: time.Now,
	}

	for _, opt := range options {
		opt(store)
	}

	return store, nil
}

// Create issues a new session for the user and returns it together with the
// raw refresh secret. The secret is not retained anywhere server-side.
func (s *Store) Create(userID string, metadata Metadata) (*Session, string, error) {
	raw, err := token.NewSecret(s.random)
	if err != nil {
		return nil, "", errors.Wrap(err, "[Store.Create] NewSecret")
	}

	now := s.nowTime()
	session := &Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		Fingerprint: token.Fingerprint(raw),
		IP:          metadata.IP,
		UserAgent:   metadata.UserAgent,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.maxAge),
	}

	if err := s.repo.Insert(session); err != nil {
		return nil, "", errors.Wrap(err, "[Store.Create] repo.Insert")
	}
	return session, raw, nil
}

// Rotate replaces the session's refresh secret, keeping its identity and
// metadata. The swap is conditional on oldFingerprint still being current:
// of concurrent rotations presenting the same secret exactly one succeeds,
// so each secret is exchangeable at most once.
func (s *Store) Rotate(sessionID, oldFingerprint string) (*Session, string, error) {
	raw, err := token.NewSecret(s.random)
	if err != nil {
		return nil, "", errors.Wrap(err, "[Store.Rotate] NewSecret")
	}

	if err := s.repo.ReplaceFingerprint(sessionID, oldFingerprint, token.Fingerprint(raw), s.nowTime()); err != nil {
		return nil, "", errors.Wrap(err, "[Store.Rotate] repo.ReplaceFingerprint")
	}

	session, err := s.repo.GetByID(sessionID)
	if err != nil {
		return nil, "", errors.Wrap(err, "[Store.Rotate] repo.GetByID")
	}
	return session, raw, nil
}

// FindActiveByRawSecret fingerprints the presented secret and resolves it to
// a live session. Revoked, expired and unknown secrets are indistinguishable:
// all return ErrNotFound.
func (s *Store) FindActiveByRawSecret(raw string) (*Session, error) {
	session, err := s.repo.GetByFingerprint(token.Fingerprint(raw))
	if err != nil {
		return nil, ErrNotFound
	}
	if !session.Active(s.nowTime()) {
		return nil, ErrNotFound
	}
	return session, nil
}

// GetActive returns the session by ID if it is still active.
func (s *Store) GetActive(sessionID string) (*Session, error) {
	session, err := s.repo.GetByID(sessionID)
	if err != nil {
		return nil, ErrNotFound
	}
	if !session.Active(s.nowTime()) {
		return nil, ErrNotFound
	}
	return session, nil
}

// Revoke terminates the session. Safe to call repeatedly.
func (s *Store) Revoke(sessionID string) error {
	if err := s.repo.Revoke(sessionID, s.nowTime()); err != nil {
		return errors.Wrap(err, "[Store.Revoke] repo.Revoke")
	}
	return nil
}

// RevokeAllForUser terminates every active session of the user, optionally
// sparing keepSessionID.
func (s *Store) RevokeAllForUser(userID, keepSessionID string) error {
	if err := s.repo.RevokeAllForUser(userID, keepSessionID, s.nowTime()); err != nil {
		return errors.Wrap(err, "[Store.RevokeAllForUser] repo.RevokeAllForUser")
	}
	return nil
}

// MaxAge returns the configured session lifetime.
func (s *Store) MaxAge() time.Duration {
	return s.maxAge
}
