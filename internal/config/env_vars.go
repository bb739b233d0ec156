package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// EnvVars is the environment-backed Config implementation. Durations accept
// the Go duration syntax (e.g. "15m", "2160h").
type EnvVars struct {
	Port    string `env:"PORT" envDefault:"8080"`
	AppName string `env:"APP_NAME" envDefault:"Session Auth"`
	Env     string `env:"ENV" envDefault:"DEV"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DBPath  string `env:"DB_PATH" envDefault:"./data/auth.db"`

	SigningSecret     string        `env:"JWT_SECRET"`
	SigningPrivateKey string        `env:"JWT_PRIVATE_KEY"` // PEM; selects RS256 signing when set
	SigningKeyID      string        `env:"JWT_KEY_ID" envDefault:"session-auth-1"`
	Issuer            string        `env:"JWT_ISSUER" envDefault:"session-auth"`
	Audience          string        `env:"JWT_AUDIENCE" envDefault:"session-auth-web"`
	AccessTTL         time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	ClockSkew         time.Duration `env:"CLOCK_SKEW" envDefault:"5s"`
	SessionMaxDays    int           `env:"SESSION_MAX_DAYS" envDefault:"90"`
	VerifyTTL         time.Duration `env:"VERIFY_TOKEN_TTL" envDefault:"24h"`
	ResetTTL          time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	EmailChangeTTL    time.Duration `env:"EMAIL_CHANGE_TOKEN_TTL" envDefault:"1h"`

	RequireVerified bool     `env:"REQUIRE_VERIFIED_LOGIN" envDefault:"true"`
	CookieSecure    bool     `env:"COOKIE_SECURE" envDefault:"false"`
	AllowedOrigins  []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	SmtpHost           string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	SmtpPort           string `env:"SMTP_PORT" envDefault:"587"`
	SmtpAccount        string `env:"SMTP_ACCOUNT"`
	SmtpPassword       string `env:"SMTP_PASSWORD"`
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
}

var _ Config = (*EnvVars)(nil)

// New parses configuration from the environment. Signing material (a secret
// or a private key) is the only hard requirement.
func New() (*EnvVars, error) {
	cfg := &EnvVars{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "[config.New] env.Parse")
	}
	if cfg.SigningSecret == "" && cfg.SigningPrivateKey == "" {
		return nil, errors.New("[config.New] neither JWT_SECRET nor JWT_PRIVATE_KEY is defined")
	}
	return cfg, nil
}

func (e *EnvVars) GetPort() string {
	port := e.Port
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e *EnvVars) GetAppName() string { return e.AppName }
func (e *EnvVars) GetEnv() string     { return e.Env }
func (e *EnvVars) GetBaseURL() string { return strings.TrimRight(e.BaseURL, "/") }

func (e *EnvVars) GetDatabasePath() string { return e.DBPath }

func (e *EnvVars) GetSmtpHost() string     { return e.SmtpHost }
func (e *EnvVars) GetSmtpPort() string     { return e.SmtpPort }
func (e *EnvVars) GetSmtpAccount() string  { return e.SmtpAccount }
func (e *EnvVars) GetSmtpPassword() string { return e.SmtpPassword }

func (e *EnvVars) GetGoogleClientID() string     { return e.GoogleClientID }
func (e *EnvVars) GetGoogleClientSecret() string { return e.GoogleClientSecret }

func (e *EnvVars) GetSigningSecret() string         { return e.SigningSecret }
func (e *EnvVars) GetSigningPrivateKey() string     { return e.SigningPrivateKey }
func (e *EnvVars) GetSigningKeyID() string          { return e.SigningKeyID }
func (e *EnvVars) GetIssuer() string                { return e.Issuer }
func (e *EnvVars) GetAudience() string              { return e.Audience }
func (e *EnvVars) GetAccessTokenTTL() time.Duration { return e.AccessTTL }
func (e *EnvVars) GetClockSkew() time.Duration      { return e.ClockSkew }

func (e *EnvVars) GetSessionMaxAge() time.Duration {
	return time.Duration(e.SessionMaxDays) * 24 * time.Hour
}

func (e *EnvVars) GetVerifyTokenTTL() time.Duration      { return e.VerifyTTL }
func (e *EnvVars) GetResetTokenTTL() time.Duration       { return e.ResetTTL }
func (e *EnvVars) GetEmailChangeTokenTTL() time.Duration { return e.EmailChangeTTL }

func (e *EnvVars) GetRequireVerifiedLogin() bool { return e.RequireVerified }
func (e *EnvVars) GetCookieSecure() bool         { return e.CookieSecure }
func (e *EnvVars) GetAllowedOrigins() []string   { return e.AllowedOrigins }
