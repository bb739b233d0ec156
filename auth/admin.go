package auth

import (
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
)

// ListUsers returns public projections of stored users, paginated. Intended
// for admin surfaces only; callers enforce the role check.
func (s *Service) ListUsers(offset, limit int) ([]users.Public, error) {
	list, err := s.repos.Users.List(offset, limit)
	if err != nil {
		return nil, Internal(errors.Wrap(err, "[Service.ListUsers] Users.List"))
	}

	public := make([]users.Public, 0, len(list))
	for _, user := range list {
		public = append(public, user.Public())
	}
	return public, nil
}

// DeleteUser removes a user account. Their sessions and action tokens go
// with it (cascade at the storage layer, direct removal otherwise).
func (s *Service) DeleteUser(userID string) error {
	now := s.nowTime()
	err := s.tx.InTx(func(r Repos) error {
		if err := r.Sessions.RevokeAllForUser(userID, "", now); err != nil {
			return errors.Wrap(err, "Sessions.RevokeAllForUser")
		}
		return r.Users.Delete(userID)
	})
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return NotFoundf("user not found")
		}
		return Internal(errors.Wrap(err, "[Service.DeleteUser]"))
	}
	return nil
}
