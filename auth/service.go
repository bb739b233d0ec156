package auth

import (
	"time"

	"github.com/jrsteele09/go-session-auth/actiontoken"
	"github.com/jrsteele09/go-session-auth/identity"
	"github.com/jrsteele09/go-session-auth/notify"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Default lifetimes for issued action tokens.
const (
	DefaultVerifyTTL      = 24 * time.Hour
	DefaultResetTTL       = 60 * time.Minute
	DefaultEmailChangeTTL = 60 * time.Minute
)

// Repos holds all repository dependencies for the Service.
type Repos struct {
	Users        users.Repo
	Sessions     sessions.Repo
	ActionTokens actiontoken.Repo
}

// TxRunner executes a function against transaction-scoped repos. The
// multi-row invalidation flows (password change, password reset, email
// change, logout-all) run inside it so a crash can never leave sessions
// valid under a stale credential.
type TxRunner interface {
	InTx(fn func(Repos) error) error
}

// NopTxRunner runs the function against the same repos without transactional
// isolation. Suitable for in-memory repos whose individual operations are
// already atomic.
type NopTxRunner struct {
	Repos Repos
}

func (r NopTxRunner) InTx(fn func(Repos) error) error {
	return fn(r.Repos)
}

// Service composes the token codec, session store and action token store
// into the register/login/refresh/logout/password/email-change flows and
// enforces the cross-cutting invariants (rotation-on-use, single-use
// consumption, epoch-based global invalidation).
type Service struct {
	repos          Repos
	codec          *token.Codec
	sessionStore   *sessions.Store
	actionTokens   *actiontoken.Store
	notifier       notify.Notifier
	identities     identity.Verifier
	tx             TxRunner
	requireVerify  bool // login policy: require a verified email
	verifyTTL      time.Duration
	resetTTL       time.Duration
	emailChangeTTL time.Duration
	nowTime        func() time.Time // nowTime function (injectable for testing)
	logger         zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRequireVerifiedLogin controls whether Login rejects users that have
// not confirmed their email address.
func WithRequireVerifiedLogin(require bool) ServiceOption {
	return func(s *Service) {
		s.requireVerify = require
	}
}

// WithIdentityVerifier sets the external identity verifier used by
// SocialLogin.
func WithIdentityVerifier(verifier identity.Verifier) ServiceOption {
	return func(s *Service) {
		s.identities = verifier
	}
}

// WithActionTokenTTLs overrides the lifetimes of issued action tokens.
func WithActionTokenTTLs(verify, reset, emailChange time.Duration) ServiceOption {
	return func(s *Service) {
		if verify > 0 {
			s.verifyTTL = verify
		}
		if reset > 0 {
			s.resetTTL = reset
		}
		if emailChange > 0 {
			s.emailChangeTTL = emailChange
		}
	}
}

// NewService initializes a new Service with required dependencies. Optional
// configuration can be provided via options (e.g., WithNowTime for testing).
func NewService(
	repos Repos,
	codec *token.Codec,
	sessionStore *sessions.Store,
	actionTokens *actiontoken.Store,
	notifier notify.Notifier,
	tx TxRunner,
	options ...ServiceOption,
) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewService] Sessions repo is required")
	}
	if repos.ActionTokens == nil {
		return nil, errors.New("[NewService] ActionTokens repo is required")
	}
	if codec == nil {
		return nil, errors.New("[NewService] token codec is required")
	}
	if sessionStore == nil {
		return nil, errors.New("[NewService] session store is required")
	}
	if actionTokens == nil {
		return nil, errors.New("[NewService] action token store is required")
	}
	if notifier == nil {
		return nil, errors.New("[NewService] notifier is required")
	}
	if tx == nil {
		tx = NopTxRunner{Repos: repos}
	}

	service := &Service{
		repos:          repos,
		codec:          codec,
		sessionStore:   sessionStore,
		actionTokens:   actionTokens,
		notifier:       notifier,
		tx:             tx,
		verifyTTL:      DefaultVerifyTTL,
		resetTTL:       DefaultResetTTL,
		emailChangeTTL: DefaultEmailChangeTTL,
		nowTime:        time.Now,
		logger:         zerolog.Nop(),
	}

	for _, opt := range options {
		opt(service)
	}

	return service, nil
}

// RegisterParams are the inputs to Register.
type RegisterParams struct {
	Email    string
	Password string
	Name     string
	Role     users.RoleType
}

// LoginParams are the inputs to Login.
type LoginParams struct {
	Email    string
	Password string
	Metadata sessions.Metadata
}

// LoginResult carries everything the transport layer hands to the client
// after a successful login or refresh: the stateless access token and the
// raw refresh secret (returned exactly once).
type LoginResult struct {
	User          users.Public
	SessionID     string
	AccessToken   string
	AccessTTL     time.Duration
	RefreshSecret string
}

// Register creates an unverified user, issues an email verification token
// and hands it off for out-of-band delivery. The returned projection never
// contains the password hash.
func (s *Service) Register(params RegisterParams) (*users.Public, error) {
	email := users.NormalizeEmail(params.Email)
	if email == "" {
		return nil, Validationf("email is required")
	}
	if err := users.ValidatePasswordStrength(params.Password); err != nil {
		return nil, Validationf("%s", err.Error())
	}

	role := params.Role
	if role == "" {
		role = users.RoleUser
	}
	if !users.ValidRole(role) {
		return nil, Validationf("unknown role %q", string(params.Role))
	}

	if _, err := s.repos.Users.GetByEmail(email); err == nil {
		return nil, Conflictf("email in use")
	} else if !errors.Is(err, users.ErrNotFound) {
		return nil, Internal(errors.Wrap(err, "[Service.Register] Users.GetByEmail"))
	}

	passwordHash, err := users.HashPassword(params.Password)
	if err != nil {
		return nil, Internal(errors.Wrap(err, "[Service.Register] HashPassword"))
	}

	user := &users.User{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         params.Name,
		Role:         role,
		CreatedAt:    s.nowTime(),
	}
	if err := s.repos.Users.Insert(user); err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			return nil, Conflictf("email in use")
		}
		return nil, Internal(errors.Wrap(err, "[Service.Register] Users.Insert"))
	}

	if err := s.issueAndDeliver(user, actiontoken.KindEmailVerify, "", s.verifyTTL, user.Email); err != nil {
		return nil, err
	}

	public := user.Public()
	return &public, nil
}

// Login verifies credentials, creates a new session and issues an access
// token embedding the user's current epoch and the new session id. Missing
// user and wrong password are indistinguishable to the caller.
func (s *Service) Login(params LoginParams) (*LoginResult, error) {
	user, err := s.repos.Users.GetByEmail(users.NormalizeEmail(params.Email))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, Internal(errors.Wrap(err, "[Service.Login] Users.GetByEmail"))
	}

	if !users.CheckPasswordHash(params.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if s.requireVerify && !user.Verified {
		return nil, ErrEmailNotVerified
	}

	return s.startSession(user, params.Metadata)
}

// Refresh exchanges a presented refresh secret for a fresh access token,
// rotating the session's secret in the same step. Any secret that does not
// resolve to a live session fails generically.
func (s *Service) Refresh(rawRefresh string) (*LoginResult, error) {
	if rawRefresh == "" {
		return nil, ErrUnauthorized
	}

	session, err := s.sessionStore.FindActiveByRawSecret(rawRefresh)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user, err := s.repos.Users.GetByID(session.UserID)
	if err != nil {
		return nil, ErrUnauthorized
	}

	rotated, newSecret, err := s.sessionStore.Rotate(session.ID, session.Fingerprint)
	if err != nil {
		// A concurrent refresh or revocation won the rotation race.
		if errors.Is(err, sessions.ErrNotActive) || errors.Is(err, sessions.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, Internal(errors.Wrap(err, "[Service.Refresh] sessionStore.Rotate"))
	}

	access, err := s.codec.Issue(user.ID, user.Role, user.TokenVersion, rotated.ID)
	if err != nil {
		return nil, Internal(errors.Wrap(err, "[Service.Refresh] codec.Issue"))
	}

	public := user.Public()
	return &LoginResult{
		User:          public,
		SessionID:     rotated.ID,
		AccessToken:   access,
		AccessTTL:     s.codec.TTL(),
		RefreshSecret: newSecret,
	}, nil
}

// Logout revokes the session identified by the presented refresh secret.
// Unknown or already-dead secrets are ignored.
func (s *Service) Logout(rawRefresh string) error {
	if rawRefresh == "" {
		return nil
	}

	session, err := s.sessionStore.FindActiveByRawSecret(rawRefresh)
	if err != nil {
		return nil
	}

	if err := s.sessionStore.Revoke(session.ID); err != nil {
		return Internal(errors.Wrap(err, "[Service.Logout] sessionStore.Revoke"))
	}
	return nil
}

// LogoutAll revokes every active session of the user and bumps the token
// epoch, instantly invalidating all in-flight access tokens regardless of
// their stated expiry.
func (s *Service) LogoutAll(userID string) error {
	now := s.nowTime()
	err := s.tx.InTx(func(r Repos) error {
		if err := r.Sessions.RevokeAllForUser(userID, "", now); err != nil {
			return errors.Wrap(err, "Sessions.RevokeAllForUser")
		}
		if err := r.Users.BumpTokenVersion(userID); err != nil {
			return errors.Wrap(err, "Users.BumpTokenVersion")
		}
		return nil
	})
	if err != nil {
		return Internal(errors.Wrap(err, "[Service.LogoutAll]"))
	}
	return nil
}

// Authenticate performs the full freshness check on a bearer access token:
// stateless verification through the codec, then the epoch comparison
// against the live user and the liveness check of the embedded session.
// This is the step middleware must run on every authenticated request.
func (s *Service) Authenticate(rawAccess string) (*users.User, *token.Claims, error) {
	claims, err := s.codec.Verify(rawAccess)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}

	user, err := s.repos.Users.GetByID(claims.UserID())
	if err != nil {
		return nil, nil, ErrUnauthorized
	}

	if claims.Epoch() != user.TokenVersion {
		return nil, nil, ErrUnauthorized
	}

	session, err := s.sessionStore.GetActive(claims.SessionID)
	if err != nil || session.UserID != user.ID {
		return nil, nil, ErrUnauthorized
	}

	return user, claims, nil
}

// startSession creates a session for the user and issues the paired access
// token. Shared by Login and SocialLogin.
func (s *Service) startSession(user *users.User, metadata sessions.Metadata) (*LoginResult, error) {
	session, rawSecret, err := s.sessionStore.Create(user.ID, metadata)
	if err != nil {
		return nil, Internal(errors.Wrap(err, "[Service.startSession] sessionStore.Create"))
	}

	access, err := s.codec.Issue(user.ID, user.Role, user.TokenVersion, session.ID)
	if err != nil {
		return nil, Internal(errors.Wrap(err, "[Service.startSession] codec.Issue"))
	}

	public := user.Public()
	return &LoginResult{
		User:          public,
		SessionID:     session.ID,
		AccessToken:   access,
		AccessTTL:     s.codec.TTL(),
		RefreshSecret: rawSecret,
	}, nil
}

// issueAndDeliver creates an action token and hands the raw secret to the
// notifier. Delivery failure is logged and swallowed: the token stays valid
// whether or not the message went out.
func (s *Service) issueAndDeliver(user *users.User, kind actiontoken.Kind, metadata string, ttl time.Duration, recipient string) error {
	raw, record, err := s.actionTokens.Issue(user.ID, kind, metadata, ttl)
	if err != nil {
		return Internal(errors.Wrap(err, "[Service.issueAndDeliver] actionTokens.Issue"))
	}

	if err := s.notifier.Deliver(kind, recipient, user.Name, raw, record.ExpiresAt); err != nil {
		s.logger.Error().Err(err).
			Str("kind", string(kind)).
			Str("user_id", user.ID).
			Msg("action token delivery failed")
	}
	return nil
}
