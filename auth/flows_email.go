package auth

import (
	"github.com/jrsteele09/go-session-auth/actiontoken"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
)

// VerifyEmail consumes an EMAIL_VERIFY token and flips the user's verified
// flag. The token is single-use: a second attempt with the same secret fails
// no matter how quickly it follows the first.
func (s *Service) VerifyEmail(rawToken string) (*users.Public, error) {
	record, err := s.actionTokens.Consume(rawToken, actiontoken.KindEmailVerify)
	if err != nil {
		if errors.Is(err, actiontoken.ErrNotConsumable) {
			return nil, ErrInvalidActionToken
		}
		return nil, Internal(errors.Wrap(err, "[Service.VerifyEmail] actionTokens.Consume"))
	}

	if err := s.repos.Users.SetVerified(record.UserID, true); err != nil {
		return nil, Internal(errors.Wrap(err, "[Service.VerifyEmail] Users.SetVerified"))
	}

	user, err := s.repos.Users.GetByID(record.UserID)
	if err != nil {
		return nil, Internal(errors.Wrap(err, "[Service.VerifyEmail] Users.GetByID"))
	}
	public := user.Public()
	return &public, nil
}

// ResendVerification reissues a fresh EMAIL_VERIFY token, superseding any
// earlier one. Rejected if the address is unknown or already verified.
func (s *Service) ResendVerification(email string) error {
	user, err := s.repos.Users.GetByEmail(users.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return NotFoundf("email not found")
		}
		return Internal(errors.Wrap(err, "[Service.ResendVerification] Users.GetByEmail"))
	}

	if user.Verified {
		return Conflictf("email already verified")
	}

	return s.issueAndDeliver(user, actiontoken.KindEmailVerify, "", s.verifyTTL, user.Email)
}

// RequestEmailChange issues an EMAIL_CHANGE token carrying the pending new
// address as metadata. The user row is untouched until confirmation, so an
// abandoned request has no effect. A conflicting address fails before any
// token is issued.
func (s *Service) RequestEmailChange(userID, newEmail string) error {
	email := users.NormalizeEmail(newEmail)
	if email == "" {
		return Validationf("email is required")
	}

	user, err := s.repos.Users.GetByID(userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return NotFoundf("user not found")
		}
		return Internal(errors.Wrap(err, "[Service.RequestEmailChange] Users.GetByID"))
	}

	if email == user.Email {
		return Validationf("new email must differ from the current one")
	}

	if _, err := s.repos.Users.GetByEmail(email); err == nil {
		return Conflictf("email in use")
	} else if !errors.Is(err, users.ErrNotFound) {
		return Internal(errors.Wrap(err, "[Service.RequestEmailChange] Users.GetByEmail"))
	}

	// The confirmation link goes to the address being claimed.
	return s.issueAndDeliver(user, actiontoken.KindEmailChange, email, s.emailChangeTTL, email)
}

// ConfirmEmailChange consumes an EMAIL_CHANGE token, re-checks that the
// pending address is still free (someone may have claimed it between
// request and confirm), then atomically updates the email, marks the user
// verified, bumps the epoch and revokes sessions, optionally sparing
// keepSessionID.
func (s *Service) ConfirmEmailChange(rawToken, keepSessionID string) (*users.Public, error) {
	record, err := s.actionTokens.Consume(rawToken, actiontoken.KindEmailChange)
	if err != nil {
		if errors.Is(err, actiontoken.ErrNotConsumable) {
			return nil, ErrInvalidActionToken
		}
		return nil, Internal(errors.Wrap(err, "[Service.ConfirmEmailChange] actionTokens.Consume"))
	}

	newEmail := record.Metadata
	if newEmail == "" {
		return nil, ErrInvalidActionToken
	}

	if other, err := s.repos.Users.GetByEmail(newEmail); err == nil && other.ID != record.UserID {
		return nil, Conflictf("email in use")
	} else if err != nil && !errors.Is(err, users.ErrNotFound) {
		return nil, Internal(errors.Wrap(err, "[Service.ConfirmEmailChange] Users.GetByEmail"))
	}

	now := s.nowTime()
	err = s.tx.InTx(func(r Repos) error {
		if err := r.Users.UpdateEmail(record.UserID, newEmail); err != nil {
			return err
		}
		return r.Sessions.RevokeAllForUser(record.UserID, keepSessionID, now)
	})
	if err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			return nil, Conflictf("email in use")
		}
		return nil, Internal(errors.Wrap(err, "[Service.ConfirmEmailChange]"))
	}

	user, err := s.repos.Users.GetByID(record.UserID)
	if err != nil {
		return nil, Internal(errors.Wrap(err, "[Service.ConfirmEmailChange] Users.GetByID"))
	}
	public := user.Public()
	return &public, nil
}
