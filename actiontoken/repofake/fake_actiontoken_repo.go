package fakeactiontokenrepo

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-session-auth/actiontoken"
)

var _ actiontoken.Repo = (*FakeActionTokenRepo)(nil)

type FakeActionTokenRepo struct {
	byFingerprint map[string]*actiontoken.Token
	lock          sync.Mutex
}

func NewFakeActionTokenRepo() *FakeActionTokenRepo {
	return &FakeActionTokenRepo{
		byFingerprint: make(map[string]*actiontoken.Token),
	}
}

func (tr *FakeActionTokenRepo) Insert(token *actiontoken.Token) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	cp := *token
	tr.byFingerprint[token.Fingerprint] = &cp
	return nil
}

// Consume performs the check-and-mark under the repo lock, mirroring the
// conditional UPDATE the sqlite implementation issues.
func (tr *FakeActionTokenRepo) Consume(fingerprint string, kind actiontoken.Kind, now time.Time) (*actiontoken.Token, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	token, ok := tr.byFingerprint[fingerprint]
	if !ok || token.Kind != kind || !token.Consumable(now) {
		return nil, actiontoken.ErrNotConsumable
	}
	consumedAt := now
	token.ConsumedAt = &consumedAt
	cp := *token
	return &cp, nil
}

func (tr *FakeActionTokenRepo) DeleteUnconsumed(userID string, kind actiontoken.Kind) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	for fingerprint, token := range tr.byFingerprint {
		if token.UserID == userID && token.Kind == kind && token.ConsumedAt == nil {
			delete(tr.byFingerprint, fingerprint)
		}
	}
	return nil
}

func (tr *FakeActionTokenRepo) DeleteExpired(cutoff time.Time) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	for fingerprint, token := range tr.byFingerprint {
		if token.ExpiresAt.Before(cutoff) {
			delete(tr.byFingerprint, fingerprint)
		}
	}
	return nil
}
