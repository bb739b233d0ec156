package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
)

// Claim validation failures. Verify folds every jwt library failure into
// ErrInvalidToken so callers cannot distinguish a bad signature from an
// expired token.
var (
	ErrInvalidToken  = errors.New("invalid access token")
	ErrMissingClaims = errors.New("access token missing required claims")
)

// Claims is the decoded payload of an access token. The short claim names
// (tv, sid) match the wire format consumed by existing clients.
type Claims struct {
	Role         users.RoleType `json:"role"`
	TokenVersion *int64         `json:"tv"` // pointer so a missing claim is distinguishable from epoch zero
	SessionID    string         `json:"sid"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Epoch returns the embedded token version. Only valid on claims returned by
// Verify, which guarantees the claim is present.
func (c *Claims) Epoch() int64 {
	if c.TokenVersion == nil {
		return -1
	}
	return *c.TokenVersion
}

// Codec issues and verifies stateless signed access tokens. It makes no
// storage calls; epoch and session freshness are checked by the consumer of
// the verified claims.
type Codec struct {
	signer   Signer
	issuer   string
	audience string
	ttl      time.Duration
	leeway   time.Duration // bounded clock-skew tolerance on verification
	nowTime  func() time.Time
}

// CodecOption defines a function type to modify the Codec instance.
type CodecOption func(*Codec)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowTime = nowFunc
	}
}

// WithLeeway sets the clock-skew tolerance applied during verification.
func WithLeeway(leeway time.Duration) CodecOption {
	return func(c *Codec) {
		c.leeway = leeway
	}
}

// NewCodec creates an access token codec. ttl is the fixed lifetime stamped
// into every issued token.
func NewCodec(signer Signer, issuer, audience string, ttl time.Duration, options ...CodecOption) (*Codec, error) {
	if signer == nil {
		return nil, errors.New("[NewCodec] signer is required")
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("[NewCodec] issuer and audience are required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	codec := &Codec{
		signer:   signer,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		leeway:   5 * time.Second,
		nowTime:  time.Now,
	}

	for _, opt := range options {
		opt(codec)
	}

	return codec, nil
}

// Issue creates a signed access token for the user/session pair. The token
// embeds the user's current token version so a later epoch bump invalidates
// it regardless of its expiry.
func (c *Codec) Issue(userID string, role users.RoleType, tokenVersion int64, sessionID string) (string, error) {
	now := c.nowTime()
	claims := &Claims{
		Role:         role,
		TokenVersion: &tokenVersion,
		SessionID:    sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Codec.Issue] signer.Sign")
	}
	return signed, nil
}

// Verify parses and validates a raw access token. It checks the signature,
// issuer, audience and expiry (with leeway) and that the subject, session
// and epoch claims are structurally present.
func (c *Codec) Verify(rawToken string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, c.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.nowTime),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" || claims.SessionID == "" || claims.TokenVersion == nil {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

// TTL returns the lifetime stamped into issued tokens.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}
