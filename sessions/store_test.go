package sessions_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-auth/sessions"
	fakesessionrepo "github.com/jrsteele09/go-session-auth/sessions/repofake"
	"github.com/stretchr/testify/require"
)

const testUserID = "user-1"

func newTestStore(t *testing.T, options ...sessions.StoreOption) *sessions.Store {
	t.Helper()
	store, err := sessions.NewStore(fakesessionrepo.NewFakeSessionRepo(), options...)
	require.NoError(t, err)
	return store
}

func TestCreateReturnsRawSecretOnce(t *testing.T) {
	store := newTestStore(t)

	session, raw, err := store.Create(testUserID, sessions.Metadata{IP: "10.0.0.1", UserAgent: "cli"})
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.NotEmpty(t, session.ID)
	require.Equal(t, "10.0.0.1", session.IP)

	// Only the fingerprint is stored, never the secret itself.
	require.NotEqual(t, raw, session.Fingerprint)
	require.NotContains(t, session.Fingerprint, raw)

	found, err := store.FindActiveByRawSecret(raw)
	require.NoError(t, err)
	require.Equal(t, session.ID, found.ID)
}

func TestRotateInvalidatesOldSecret(t *testing.T) {
	store := newTestStore(t)

	session, oldSecret, err := store.Create(testUserID, sessions.Metadata{})
	require.NoError(t, err)

	rotated, newSecret, err := store.Rotate(session.ID, session.Fingerprint)
	require.NoError(t, err)
	require.Equal(t, session.ID, rotated.ID)
	require.NotEqual(t, oldSecret, newSecret)

	// The old secret no longer resolves; the new one does.
	_, err = store.FindActiveByRawSecret(oldSecret)
	require.ErrorIs(t, err, sessions.ErrNotFound)

	found, err := store.FindActiveByRawSecret(newSecret)
	require.NoError(t, err)
	require.Equal(t, session.ID, found.ID)
}

func TestRotateRevokedSessionFails(t *testing.T) {
	store := newTestStore(t)

	session, _, err := store.Create(testUserID, sessions.Metadata{})
	require.NoError(t, err)
	require.NoError(t, store.Revoke(session.ID))

	_, _, err = store.Rotate(session.ID, session.Fingerprint)
	require.ErrorIs(t, err, sessions.ErrNotActive)
}

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	store := newTestStore(t)

	session, _, err := store.Create(testUserID, sessions.Metadata{})
	require.NoError(t, err)

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.Rotate(session.ID, session.Fingerprint)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, sessions.ErrNotActive)
		}
	}
	require.Equal(t, 1, winners)
}

func TestRevokeIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	session, raw, err := store.Create(testUserID, sessions.Metadata{})
	require.NoError(t, err)

	require.NoError(t, store.Revoke(session.ID))
	require.NoError(t, store.Revoke(session.ID))

	_, err = store.FindActiveByRawSecret(raw)
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestExpiredSessionDoesNotResolve(t *testing.T) {
	now := time.Now()
	store := newTestStore(t,
		sessions.WithMaxAge(time.Hour),
		sessions.WithNowTime(func() time.Time { return now }),
	)

	_, raw, err := store.Create(testUserID, sessions.Metadata{})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)

	_, err = store.FindActiveByRawSecret(raw)
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestRevokeAllForUserSparesKeptSession(t *testing.T) {
	store := newTestStore(t)

	kept, keptSecret, err := store.Create(testUserID, sessions.Metadata{})
	require.NoError(t, err)
	_, otherSecret, err := store.Create(testUserID, sessions.Metadata{})
	require.NoError(t, err)
	_, strangerSecret, err := store.Create("user-2", sessions.Metadata{})
	require.NoError(t, err)

	require.NoError(t, store.RevokeAllForUser(testUserID, kept.ID))

	found, err := store.FindActiveByRawSecret(keptSecret)
	require.NoError(t, err)
	require.Equal(t, kept.ID, found.ID)

	_, err = store.FindActiveByRawSecret(otherSecret)
	require.ErrorIs(t, err, sessions.ErrNotFound)

	// Other users are untouched.
	_, err = store.FindActiveByRawSecret(strangerSecret)
	require.NoError(t, err)
}
