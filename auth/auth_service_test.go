package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-auth/actiontoken"
	fakeactiontokenrepo "github.com/jrsteele09/go-session-auth/actiontoken/repofake"
	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/identity"
	"github.com/jrsteele09/go-session-auth/sessions"
	fakesessionrepo "github.com/jrsteele09/go-session-auth/sessions/repofake"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-session-auth/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	secretStr        = "test-signing-secret"
	issuer           = "com.testissuer"
	audience         = "api"
	testUserEmail    = "john.doe@example.com"
	testUserName     = "John Doe"
	testUserPassword = "Password123"
	otherPassword    = "Different456"
)

// capturedDelivery records one notifier call so tests can pull out the raw
// action token secrets that would normally travel by email.
type capturedDelivery struct {
	kind      actiontoken.Kind
	recipient string
	rawToken  string
}

type captureNotifier struct {
	mu         sync.Mutex
	deliveries []capturedDelivery
}

func (n *captureNotifier) Deliver(kind actiontoken.Kind, recipientEmail, displayName, rawToken string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, capturedDelivery{kind: kind, recipient: recipientEmail, rawToken: rawToken})
	return nil
}

func (n *captureNotifier) last(t *testing.T, kind actiontoken.Kind) capturedDelivery {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.deliveries) - 1; i >= 0; i-- {
		if n.deliveries[i].kind == kind {
			return n.deliveries[i]
		}
	}
	t.Fatalf("no delivery of kind %s captured", kind)
	return capturedDelivery{}
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deliveries)
}

type fakeIdentityVerifier struct {
	assertions map[string]identity.Assertion
	codes      map[string]identity.Assertion
}

func (f *fakeIdentityVerifier) VerifyAssertion(_ context.Context, rawAssertion string) (*identity.Assertion, error) {
	assertion, ok := f.assertions[rawAssertion]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return &assertion, nil
}

func (f *fakeIdentityVerifier) ExchangeCode(_ context.Context, code, _ string) (*identity.Assertion, error) {
	assertion, ok := f.codes[code]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return &assertion, nil
}

// testFixture holds all test dependencies
type testFixture struct {
	userRepo     users.Repo
	sessionRepo  sessions.Repo
	codec        *token.Codec
	sessionStore *sessions.Store
	notifier     *captureNotifier
	identities   *fakeIdentityVerifier
	service      *auth.Service
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T, options ...auth.ServiceOption) *testFixture {
	t.Helper()

	ur := fakeuserrepo.NewFakeUserRepo()
	sr := fakesessionrepo.NewFakeSessionRepo()
	tr := fakeactiontokenrepo.NewFakeActionTokenRepo()

	codec, err := token.NewCodec(token.NewHMACSigner(secretStr), issuer, audience, 15*time.Minute)
	require.NoError(t, err)

	sessionStore, err := sessions.NewStore(sr)
	require.NoError(t, err)

	actionTokens, err := actiontoken.NewStore(tr)
	require.NoError(t, err)

	notifier := &captureNotifier{}
	identities := &fakeIdentityVerifier{
		assertions: map[string]identity.Assertion{},
		codes:      map[string]identity.Assertion{},
	}

	options = append([]auth.ServiceOption{auth.WithIdentityVerifier(identities)}, options...)
	service, err := auth.NewService(
		auth.Repos{Users: ur, Sessions: sr, ActionTokens: tr},
		codec, sessionStore, actionTokens, notifier, nil, options...)
	require.NoError(t, err)

	return &testFixture{
		userRepo:     ur,
		sessionRepo:  sr,
		codec:        codec,
		sessionStore: sessionStore,
		notifier:     notifier,
		identities:   identities,
		service:      service,
	}
}

func (f *testFixture) register(t *testing.T) *users.Public {
	t.Helper()
	public, err := f.service.Register(auth.RegisterParams{
		Email:    testUserEmail,
		Password: testUserPassword,
		Name:     testUserName,
	})
	require.NoError(t, err)
	return public
}

func (f *testFixture) login(t *testing.T) *auth.LoginResult {
	t.Helper()
	result, err := f.service.Login(auth.LoginParams{Email: testUserEmail, Password: testUserPassword})
	require.NoError(t, err)
	return result
}

func TestRegisterAndLogin(t *testing.T) {
	f := setupTestFixture(t)

	public := f.register(t)
	require.NotEmpty(t, public.ID)
	require.Equal(t, testUserEmail, public.Email)
	require.Equal(t, users.RoleUser, public.Role)
	require.False(t, public.Verified)

	// Registration hands a verification token to the notifier.
	delivery := f.notifier.last(t, actiontoken.KindEmailVerify)
	require.Equal(t, testUserEmail, delivery.recipient)
	require.NotEmpty(t, delivery.rawToken)

	result := f.login(t)
	require.Equal(t, public.ID, result.User.ID)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshSecret)
	require.Equal(t, 15*time.Minute, result.AccessTTL)

	claims, err := f.codec.Verify(result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, public.ID, claims.UserID())
	require.Equal(t, result.SessionID, claims.SessionID)
	require.Equal(t, int64(0), claims.Epoch())
}

func TestRegisterNormalizesEmail(t *testing.T) {
	f := setupTestFixture(t)

	public, err := f.service.Register(auth.RegisterParams{
		Email:    "  John.Doe@Example.COM ",
		Password: testUserPassword,
	})
	require.NoError(t, err)
	require.Equal(t, testUserEmail, public.Email)

	_, err = f.service.Register(auth.RegisterParams{
		Email:    "JOHN.DOE@example.com",
		Password: testUserPassword,
	})
	require.Equal(t, auth.KindConflict, auth.KindOf(err))
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	f := setupTestFixture(t)

	for _, password := range []string{"short1A", "alllowercase1", "ALLUPPERCASE1", "NoNumbersHere"} {
		_, err := f.service.Register(auth.RegisterParams{Email: testUserEmail, Password: password})
		require.Equal(t, auth.KindValidation, auth.KindOf(err), "password %q", password)
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Register(auth.RegisterParams{
		Email:    testUserEmail,
		Password: testUserPassword,
		Role:     users.RoleType("SUPERUSER"),
	})
	require.Equal(t, auth.KindValidation, auth.KindOf(err))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)

	_, wrongPassword := f.service.Login(auth.LoginParams{Email: testUserEmail, Password: otherPassword})
	_, unknownUser := f.service.Login(auth.LoginParams{Email: "ghost@example.com", Password: testUserPassword})

	require.ErrorIs(t, wrongPassword, auth.ErrInvalidCredentials)
	require.ErrorIs(t, unknownUser, auth.ErrInvalidCredentials)
	require.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	f := setupTestFixture(t, auth.WithRequireVerifiedLogin(true))
	f.register(t)

	_, err := f.service.Login(auth.LoginParams{Email: testUserEmail, Password: testUserPassword})
	require.ErrorIs(t, err, auth.ErrEmailNotVerified)

	delivery := f.notifier.last(t, actiontoken.KindEmailVerify)
	_, err = f.service.VerifyEmail(delivery.rawToken)
	require.NoError(t, err)

	result, err := f.service.Login(auth.LoginParams{Email: testUserEmail, Password: testUserPassword})
	require.NoError(t, err)
	require.True(t, result.User.Verified)
}

func TestRefreshRotatesSecret(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	login := f.login(t)

	refreshed, err := f.service.Refresh(login.RefreshSecret)
	require.NoError(t, err)
	require.Equal(t, login.SessionID, refreshed.SessionID)
	require.NotEqual(t, login.RefreshSecret, refreshed.RefreshSecret)

	// The spent secret is dead; replaying it fails generically.
	_, err = f.service.Refresh(login.RefreshSecret)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	// The rotated secret keeps working.
	_, err = f.service.Refresh(refreshed.RefreshSecret)
	require.NoError(t, err)
}

func TestConcurrentRefreshHasOneWinner(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	login := f.login(t)

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Refresh(login.RefreshSecret)
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
			require.ErrorIs(t, err, auth.ErrUnauthorized)
		}
	}
	require.Equal(t, 1, winners)
}

func TestAuthenticatePerformsFreshnessChecks(t *testing.T) {
	f := setupTestFixture(t)
	public := f.register(t)
	login := f.login(t)

	user, claims, err := f.service.Authenticate(login.AccessToken)
	require.NoError(t, err)
	require.Equal(t, public.ID, user.ID)
	require.Equal(t, login.SessionID, claims.SessionID)

	// Revoking the session kills the access token before its expiry.
	require.NoError(t, f.service.Logout(login.RefreshSecret))
	_, _, err = f.service.Authenticate(login.AccessToken)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestLogoutIsQuietOnUnknownSecret(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.service.Logout(""))
	require.NoError(t, f.service.Logout("never-issued"))
}

func TestLogoutAllInvalidatesEverything(t *testing.T) {
	f := setupTestFixture(t)
	public := f.register(t)
	first := f.login(t)
	second := f.login(t)

	require.NoError(t, f.service.LogoutAll(public.ID))

	// Both refresh secrets are dead.
	_, err := f.service.Refresh(first.RefreshSecret)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = f.service.Refresh(second.RefreshSecret)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	// In-flight access tokens fail the epoch comparison immediately.
	_, _, err = f.service.Authenticate(first.AccessToken)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	_, _, err = f.service.Authenticate(second.AccessToken)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestVerifyEmailIsSingleUse(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	delivery := f.notifier.last(t, actiontoken.KindEmailVerify)

	public, err := f.service.VerifyEmail(delivery.rawToken)
	require.NoError(t, err)
	require.True(t, public.Verified)

	_, err = f.service.VerifyEmail(delivery.rawToken)
	require.ErrorIs(t, err, auth.ErrInvalidActionToken)
}

func TestResendVerificationSupersedesOldToken(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	first := f.notifier.last(t, actiontoken.KindEmailVerify)

	require.NoError(t, f.service.ResendVerification(testUserEmail))
	second := f.notifier.last(t, actiontoken.KindEmailVerify)
	require.NotEqual(t, first.rawToken, second.rawToken)

	_, err := f.service.VerifyEmail(first.rawToken)
	require.ErrorIs(t, err, auth.ErrInvalidActionToken)

	_, err = f.service.VerifyEmail(second.rawToken)
	require.NoError(t, err)

	// Already verified now.
	err = f.service.ResendVerification(testUserEmail)
	require.Equal(t, auth.KindConflict, auth.KindOf(err))
}

func TestForgotPasswordHidesUnknownAccounts(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	before := f.notifier.count()

	require.NoError(t, f.service.ForgotPassword("ghost@example.com"))
	require.Equal(t, before, f.notifier.count()) // nothing issued, same nil result

	require.NoError(t, f.service.ForgotPassword(testUserEmail))
	delivery := f.notifier.last(t, actiontoken.KindPasswordReset)
	require.Equal(t, testUserEmail, delivery.recipient)
}

func TestResetPasswordRevokesAllSessions(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t)
	first := f.login(t)
	second := f.login(t)

	require.NoError(t, f.service.ForgotPassword(testUserEmail))
	delivery := f.notifier.last(t, actiontoken.KindPasswordReset)

	require.NoError(t, f.service.ResetPassword(delivery.rawToken, otherPassword))

	// Old credentials and every session are gone.
	_, err := f.service.Login(auth.LoginParams{Email: testUserEmail, Password: testUserPassword})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = f.service.Refresh(first.RefreshSecret)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = f.service.Refresh(second.RefreshSecret)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	_, _, err = f.service.Authenticate(first.AccessToken)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	// The reset token is single-use.
	err = f.service.ResetPassword(delivery.rawToken, "Another789x")
	require.ErrorIs(t, err, auth.ErrInvalidActionToken)

	_, err = f.service.Login(auth.LoginParams{Email: testUserEmail, Password: otherPassword})
	require.NoError(t, err)
}

func TestChangePasswordKeepsInitiatingSession(t *testing.T) {
	f := setupTestFixture(t)
	public := f.register(t)
	kept := f.login(t)
	other := f.login(t)

	err := f.service.ChangePassword(public.ID, testUserPassword, otherPassword, kept.SessionID)
	require.NoError(t, err)

	// The initiating session survives and can still refresh.
	refreshed, err := f.service.Refresh(kept.RefreshSecret)
	require.NoError(t, err)

	// Its pre-change access token is dead (epoch bump), the refreshed one works.
	_, _, err = f.service.Authenticate(kept.AccessToken)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	_, _, err = f.service.Authenticate(refreshed.AccessToken)
	require.NoError(t, err)

	// Every other session is revoked.
	_, err = f.service.Refresh(other.RefreshSecret)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestChangePasswordValidation(t *testing.T) {
	f := setupTestFixture(t)
	public := f.register(t)

	err := f.service.ChangePassword(public.ID, otherPassword, "Another789x", "")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	err = f.service.ChangePassword(public.ID, testUserPassword, testUserPassword, "")
	require.Equal(t, auth.KindValidation, auth.KindOf(err))

	err = f.service.ChangePassword(public.ID, testUserPassword, "weak", "")
	require.Equal(t, auth.KindValidation, auth.KindOf(err))
}

func TestEmailChangeFlow(t *testing.T) {
	f := setupTestFixture(t)
	public := f.register(t)
	kept := f.login(t)
	other := f.login(t)

	const newEmail = "new.address@example.com"
	require.NoError(t, f.service.RequestEmailChange(public.ID, newEmail))

	// The confirmation link goes to the address being claimed.
	delivery := f.notifier.last(t, actiontoken.KindEmailChange)
	require.Equal(t, newEmail, delivery.recipient)

	updated, err := f.service.ConfirmEmailChange(delivery.rawToken, kept.SessionID)
	require.NoError(t, err)
	require.Equal(t, newEmail, updated.Email)
	require.True(t, updated.Verified)

	// The initiating session survives, the rest are revoked.
	_, err = f.service.Refresh(kept.RefreshSecret)
	require.NoError(t, err)
	_, err = f.service.Refresh(other.RefreshSecret)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	// Login now works against the new address only.
	_, err = f.service.Login(auth.LoginParams{Email: newEmail, Password: testUserPassword})
	require.NoError(t, err)
	_, err = f.service.Login(auth.LoginParams{Email: testUserEmail, Password: testUserPassword})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestEmailChangeRejectsConflicts(t *testing.T) {
	f := setupTestFixture(t)
	public := f.register(t)

	_, err := f.service.Register(auth.RegisterParams{
		Email:    "taken@example.com",
		Password: testUserPassword,
	})
	require.NoError(t, err)

	// Same address, taken address: both refused before any token is issued.
	err = f.service.RequestEmailChange(public.ID, testUserEmail)
	require.Equal(t, auth.KindValidation, auth.KindOf(err))

	err = f.service.RequestEmailChange(public.ID, "taken@example.com")
	require.Equal(t, auth.KindConflict, auth.KindOf(err))
}

func TestEmailChangeConfirmRechecksConflict(t *testing.T) {
	f := setupTestFixture(t)
	public := f.register(t)

	const newEmail = "new.address@example.com"
	require.NoError(t, f.service.RequestEmailChange(public.ID, newEmail))
	delivery := f.notifier.last(t, actiontoken.KindEmailChange)

	// Someone claims the address between request and confirm.
	_, err := f.service.Register(auth.RegisterParams{Email: newEmail, Password: testUserPassword})
	require.NoError(t, err)

	_, err = f.service.ConfirmEmailChange(delivery.rawToken, "")
	require.Equal(t, auth.KindConflict, auth.KindOf(err))
}

func TestSocialLoginCreatesVerifiedUser(t *testing.T) {
	f := setupTestFixture(t)
	f.identities.assertions["good-id-token"] = identity.Assertion{
		Provider:      "google",
		SubjectID:     "google-sub-1",
		Email:         testUserEmail,
		EmailVerified: true,
		DisplayName:   testUserName,
	}

	result, err := f.service.SocialLogin(context.Background(), "good-id-token", sessions.Metadata{})
	require.NoError(t, err)
	require.Equal(t, testUserEmail, result.User.Email)
	require.True(t, result.User.Verified)
	require.NotEmpty(t, result.RefreshSecret)

	// A second assertion resolves to the same account.
	again, err := f.service.SocialLogin(context.Background(), "good-id-token", sessions.Metadata{})
	require.NoError(t, err)
	require.Equal(t, result.User.ID, again.User.ID)
	require.NotEqual(t, result.SessionID, again.SessionID)
}

func TestSocialLoginLinksExistingAccount(t *testing.T) {
	f := setupTestFixture(t)
	public := f.register(t)
	f.identities.assertions["good-id-token"] = identity.Assertion{
		Provider:      "google",
		SubjectID:     "google-sub-1",
		Email:         testUserEmail,
		EmailVerified: true,
	}

	result, err := f.service.SocialLogin(context.Background(), "good-id-token", sessions.Metadata{})
	require.NoError(t, err)
	require.Equal(t, public.ID, result.User.ID)

	// Password login still works after linking.
	_, err = f.service.Login(auth.LoginParams{Email: testUserEmail, Password: testUserPassword})
	require.NoError(t, err)
}

func TestSocialLoginRejectsBadAssertion(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.SocialLogin(context.Background(), "forged", sessions.Metadata{})
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestSocialLoginCodeExchange(t *testing.T) {
	f := setupTestFixture(t)
	f.identities.codes["good-code"] = identity.Assertion{
		Provider:      "google",
		SubjectID:     "google-sub-1",
		Email:         testUserEmail,
		EmailVerified: true,
		DisplayName:   testUserName,
	}

	result, err := f.service.SocialLoginCode(context.Background(), "good-code", "", sessions.Metadata{})
	require.NoError(t, err)
	require.Equal(t, testUserEmail, result.User.Email)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshSecret)

	_, err = f.service.SocialLoginCode(context.Background(), "stale-code", "", sessions.Metadata{})
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestFullLifecycle(t *testing.T) {
	f := setupTestFixture(t, auth.WithRequireVerifiedLogin(true))

	f.register(t)
	delivery := f.notifier.last(t, actiontoken.KindEmailVerify)
	_, err := f.service.VerifyEmail(delivery.rawToken)
	require.NoError(t, err)

	login := f.login(t)
	_, _, err = f.service.Authenticate(login.AccessToken)
	require.NoError(t, err)

	refreshed, err := f.service.Refresh(login.RefreshSecret)
	require.NoError(t, err)

	// The spent secret is useless even though the session lives on.
	_, err = f.service.Refresh(login.RefreshSecret)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	require.NoError(t, f.service.Logout(refreshed.RefreshSecret))
	_, err = f.service.Refresh(refreshed.RefreshSecret)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	_, _, err = f.service.Authenticate(refreshed.AccessToken)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}
