package fakesessionrepo

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-session-auth/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	byID          map[string]*sessions.Session
	byFingerprint map[string]string // fingerprint to session id
	lock          sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		byID:          make(map[string]*sessions.Session),
		byFingerprint: make(map[string]string),
	}
}

func (sr *FakeSessionRepo) Insert(session *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	cp := *session
	sr.byID[session.ID] = &cp
	sr.byFingerprint[session.Fingerprint] = session.ID
	return nil
}

func (sr *FakeSessionRepo) GetByID(id string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	session, ok := sr.byID[id]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (sr *FakeSessionRepo) GetByFingerprint(fingerprint string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	id, ok := sr.byFingerprint[fingerprint]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	cp := *sr.byID[id]
	return &cp, nil
}

func (sr *FakeSessionRepo) ReplaceFingerprint(id string, oldFingerprint, newFingerprint string, now time.Time) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	session, ok := sr.byID[id]
	if !ok {
		return sessions.ErrNotFound
	}
	// A mismatched fingerprint means a concurrent rotation already won.
	if session.Fingerprint != oldFingerprint || !session.Active(now) {
		return sessions.ErrNotActive
	}
	delete(sr.byFingerprint, oldFingerprint)
	session.Fingerprint = newFingerprint
	sr.byFingerprint[newFingerprint] = id
	return nil
}

func (sr *FakeSessionRepo) Revoke(id string, now time.Time) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	session, ok := sr.byID[id]
	if !ok {
		return sessions.ErrNotFound
	}
	if session.RevokedAt == nil {
		revokedAt := now
		session.RevokedAt = &revokedAt
	}
	return nil
}

func (sr *FakeSessionRepo) RevokeAllForUser(userID string, keepID string, now time.Time) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	for _, session := range sr.byID {
		if session.UserID != userID || session.ID == keepID {
			continue
		}
		if session.RevokedAt == nil {
			revokedAt := now
			session.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (sr *FakeSessionRepo) CountActiveForUser(userID string, now time.Time) (int, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	count := 0
	for _, session := range sr.byID {
		if session.UserID == userID && session.Active(now) {
			count++
		}
	}
	return count, nil
}

func (sr *FakeSessionRepo) DeleteExpired(cutoff time.Time) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	for id, session := range sr.byID {
		if session.ExpiresAt.Before(cutoff) {
			delete(sr.byFingerprint, session.Fingerprint)
			delete(sr.byID, id)
		}
	}
	return nil
}
