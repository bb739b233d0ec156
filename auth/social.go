package auth

import (
	"context"

	"github.com/jrsteele09/go-session-auth/identity"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
)

// SocialLogin verifies an external identity assertion, finds or creates the
// local user bound to the provider+subject pair, and then proceeds exactly
// as a normal login: new session plus access token. Verification of the
// assertion itself is delegated to the configured identity verifier.
func (s *Service) SocialLogin(ctx context.Context, rawAssertion string, metadata sessions.Metadata) (*LoginResult, error) {
	if s.identities == nil {
		return nil, Internal(errors.New("[Service.SocialLogin] no identity verifier configured"))
	}

	assertion, err := s.identities.VerifyAssertion(ctx, rawAssertion)
	if err != nil {
		return nil, ErrUnauthorized
	}

	return s.loginWithAssertion(assertion, metadata)
}

// SocialLoginCode completes a provider authorization-code flow (redirect
// callback) and logs the asserted identity in. Requires a verifier that
// supports code exchange.
func (s *Service) SocialLoginCode(ctx context.Context, code, codeVerifier string, metadata sessions.Metadata) (*LoginResult, error) {
	exchanger, ok := s.identities.(identity.CodeExchanger)
	if !ok {
		return nil, Internal(errors.New("[Service.SocialLoginCode] identity verifier does not support code exchange"))
	}

	assertion, err := exchanger.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		return nil, ErrUnauthorized
	}

	return s.loginWithAssertion(assertion, metadata)
}

// loginWithAssertion resolves a verified external identity to a local user
// and starts a session for it.
func (s *Service) loginWithAssertion(assertion *identity.Assertion, metadata sessions.Metadata) (*LoginResult, error) {
	user, err := s.repos.Users.GetByProviderSub(assertion.Provider, assertion.SubjectID)
	switch {
	case err == nil:
		// Known external identity.
	case errors.Is(err, users.ErrNotFound):
		user, err = s.adoptExternalIdentity(assertion.Provider, assertion.SubjectID, assertion.Email, assertion.EmailVerified, assertion.DisplayName)
		if err != nil {
			return nil, err
		}
	default:
		return nil, Internal(errors.Wrap(err, "[Service.loginWithAssertion] Users.GetByProviderSub"))
	}

	if s.requireVerify && !user.Verified {
		return nil, ErrEmailNotVerified
	}

	return s.startSession(user, metadata)
}

// adoptExternalIdentity links the provider identity to an existing account
// with the same email, or creates a fresh user when none exists. Created
// users have no local password; they can obtain one through the password
// reset flow.
func (s *Service) adoptExternalIdentity(provider, subject, email string, emailVerified bool, displayName string) (*users.User, error) {
	normalized := users.NormalizeEmail(email)
	if normalized == "" {
		return nil, ErrUnauthorized
	}

	if existing, err := s.repos.Users.GetByEmail(normalized); err == nil {
		if err := s.repos.Users.LinkProvider(existing.ID, provider, subject); err != nil {
			return nil, Internal(errors.Wrap(err, "[Service.adoptExternalIdentity] Users.LinkProvider"))
		}
		existing.Provider = provider
		existing.ProviderSub = subject
		return existing, nil
	} else if !errors.Is(err, users.ErrNotFound) {
		return nil, Internal(errors.Wrap(err, "[Service.adoptExternalIdentity] Users.GetByEmail"))
	}

	user := &users.User{
		Email:       normalized,
		Name:        displayName,
		Role:        users.RoleUser,
		Verified:    emailVerified,
		Provider:    provider,
		ProviderSub: subject,
		CreatedAt:   s.nowTime(),
	}
	if err := s.repos.Users.Insert(user); err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			return nil, Conflictf("email in use")
		}
		return nil, Internal(errors.Wrap(err, "[Service.adoptExternalIdentity] Users.Insert"))
	}
	return user, nil
}
