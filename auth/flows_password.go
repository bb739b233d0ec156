package auth

import (
	"github.com/jrsteele09/go-session-auth/actiontoken"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
)

// ForgotPassword issues a PASSWORD_RESET token when the account exists. The
// caller always gets the same nil result whether or not the address is
// registered, so the endpoint cannot be used to enumerate accounts.
func (s *Service) ForgotPassword(email string) error {
	user, err := s.repos.Users.GetByEmail(users.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil
		}
		return Internal(errors.Wrap(err, "[Service.ForgotPassword] Users.GetByEmail"))
	}

	return s.issueAndDeliver(user, actiontoken.KindPasswordReset, "", s.resetTTL, user.Email)
}

// ResetPassword consumes a PASSWORD_RESET token, rehashes the password,
// bumps the epoch and revokes every session of the user. A password reset
// is a hard global logout.
func (s *Service) ResetPassword(rawToken, newPassword string) error {
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return Validationf("%s", err.Error())
	}

	record, err := s.actionTokens.Consume(rawToken, actiontoken.KindPasswordReset)
	if err != nil {
		if errors.Is(err, actiontoken.ErrNotConsumable) {
			return ErrInvalidActionToken
		}
		return Internal(errors.Wrap(err, "[Service.ResetPassword] actionTokens.Consume"))
	}

	passwordHash, err := users.HashPassword(newPassword)
	if err != nil {
		return Internal(errors.Wrap(err, "[Service.ResetPassword] HashPassword"))
	}

	now := s.nowTime()
	err = s.tx.InTx(func(r Repos) error {
		if err := r.Users.UpdatePassword(record.UserID, passwordHash); err != nil {
			return errors.Wrap(err, "Users.UpdatePassword")
		}
		return r.Sessions.RevokeAllForUser(record.UserID, "", now)
	})
	if err != nil {
		return Internal(errors.Wrap(err, "[Service.ResetPassword]"))
	}
	return nil
}

// ChangePassword rehashes the password for an authenticated user after
// verifying the current one, bumps the epoch and revokes every other
// session. keepSessionID (usually the session that initiated the change)
// survives; pass "" to kill them all. The password and session writes are
// one transaction.
func (s *Service) ChangePassword(userID, currentPassword, newPassword, keepSessionID string) error {
	user, err := s.repos.Users.GetByID(userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return NotFoundf("user not found")
		}
		return Internal(errors.Wrap(err, "[Service.ChangePassword] Users.GetByID"))
	}

	if !users.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if currentPassword == newPassword {
		return Validationf("new password must differ from the current one")
	}
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return Validationf("%s", err.Error())
	}

	passwordHash, err := users.HashPassword(newPassword)
	if err != nil {
		return Internal(errors.Wrap(err, "[Service.ChangePassword] HashPassword"))
	}

	now := s.nowTime()
	err = s.tx.InTx(func(r Repos) error {
		if err := r.Users.UpdatePassword(userID, passwordHash); err != nil {
			return errors.Wrap(err, "Users.UpdatePassword")
		}
		return r.Sessions.RevokeAllForUser(userID, keepSessionID, now)
	})
	if err != nil {
		return Internal(errors.Wrap(err, "[Service.ChangePassword]"))
	}
	return nil
}
