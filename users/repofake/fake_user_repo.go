package fakeuserrepo

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-auth/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // normalized email to user id
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Insert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, ok := ur.emailIds[user.Email]; ok {
		return users.ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = user.CreatedAt

	cp := *user
	ur.users[user.ID] = &cp
	ur.emailIds[user.Email] = user.ID
	return nil
}

func (ur *FakeUserRepo) GetByID(id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (ur *FakeUserRepo) GetByEmail(email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *ur.users[id]
	return &cp, nil
}

func (ur *FakeUserRepo) GetByProviderSub(provider, subject string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	for _, u := range ur.users {
		if u.Provider == provider && u.ProviderSub == subject {
			cp := *u
			return &cp, nil
		}
	}
	return nil, users.ErrNotFound
}

func (ur *FakeUserRepo) UpdatePassword(id string, passwordHash string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return users.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.TokenVersion++
	u.UpdatedAt = time.Now()
	return nil
}

func (ur *FakeUserRepo) UpdateEmail(id string, email string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return users.ErrNotFound
	}
	if otherID, taken := ur.emailIds[email]; taken && otherID != id {
		return users.ErrDuplicateEmail
	}
	delete(ur.emailIds, u.Email)
	u.Email = email
	u.Verified = true
	u.TokenVersion++
	u.UpdatedAt = time.Now()
	ur.emailIds[email] = id
	return nil
}

func (ur *FakeUserRepo) LinkProvider(id string, provider, subject string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return users.ErrNotFound
	}
	u.Provider = provider
	u.ProviderSub = subject
	u.UpdatedAt = time.Now()
	return nil
}

func (ur *FakeUserRepo) SetVerified(id string, verified bool) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return users.ErrNotFound
	}
	u.Verified = verified
	u.UpdatedAt = time.Now()
	return nil
}

func (ur *FakeUserRepo) BumpTokenVersion(id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return users.ErrNotFound
	}
	u.TokenVersion++
	u.UpdatedAt = time.Now()
	return nil
}

func (ur *FakeUserRepo) Delete(id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return users.ErrNotFound
	}
	delete(ur.emailIds, u.Email)
	delete(ur.users, id)
	return nil
}

func (ur *FakeUserRepo) List(offset, limit int) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	list := make([]*users.User, 0, len(ur.users))
	for _, u := range ur.users {
		cp := *u
		list = append(list, &cp)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	if offset >= len(list) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(list) {
		end = len(list)
	}
	return list[offset:end], nil
}
