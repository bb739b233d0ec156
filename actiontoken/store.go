package actiontoken

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/pkg/errors"
)

// DefaultTTL is the action token lifetime used when the caller passes none.
const DefaultTTL = 60 * time.Minute

// Store issues and consumes single-use, typed, expiring action tokens.
type Store struct {
	repo    Repo
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

// WithRandom sets the random source used for token secrets (primarily for
// testing).
func WithRandom(random io.Reader) StoreOption {
	return func(s *Store) {
		s.random = random
	}
}

// NewStore initializes an action token store backed by the given repo.
func NewStore(repo Repo, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[NewStore] action token repo is required")
	}

	store := &Store{
		repo:    repo,
		nowTime: time.Now,
	}

	for _, opt := range options {
		opt(store)
	}

	return store, nil
}

// Issue creates a token of the given kind and returns the raw secret for
// out-of-band delivery together with the stored record. Earlier unconsumed
// tokens of the same user and kind are superseded: a reissued link always
// invalidates its predecessors.
func (s *Store) Issue(userID string, kind Kind, metadata string, ttl time.Duration) (string, *Token, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if err := s.repo.DeleteUnconsumed(userID, kind); err != nil {
		return "", nil, errors.Wrap(err, "[Store.Issue] repo.DeleteUnconsumed")
	}

	raw, err := token.NewSecret(s.random)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Store.Issue] NewSecret")
	}

	now := s.nowTime()
	record := &Token{
		ID:          uuid.New().String(),
		UserID:      userID,
		Fingerprint: token.Fingerprint(raw),
		Kind:        kind,
		Metadata:    metadata,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	if err := s.repo.Insert(record); err != nil {
		return "", nil, errors.Wrap(err, "[Store.Issue] repo.Insert")
	}
	return raw, record, nil
}

// Consume resolves the raw secret and atomically marks the matching token
// consumed. Exactly one of any number of concurrent attempts succeeds.
func (s *Store) Consume(raw string, kind Kind) (*Token, error) {
	record, err := s.repo.Consume(token.Fingerprint(raw), kind, s.nowTime())
	if err != nil {
		return nil, err
	}
	return record, nil
}
