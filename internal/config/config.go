package config

import "time"

type Config interface {
	EnvConfig
	AuthConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetDatabasePath() string
	GetSmtpHost() string
	GetSmtpPort() string
	GetSmtpAccount() string
	GetSmtpPassword() string
	GetGoogleClientID() string
	GetGoogleClientSecret() string
}

type AuthConfig interface {
	GetSigningSecret() string
	GetSigningPrivateKey() string
	GetSigningKeyID() string
	GetIssuer() string
	GetAudience() string
	GetAccessTokenTTL() time.Duration
	GetClockSkew() time.Duration
	GetSessionMaxAge() time.Duration
	GetVerifyTokenTTL() time.Duration
	GetResetTokenTTL() time.Duration
	GetEmailChangeTokenTTL() time.Duration
}

type SecurityConfig interface {
	GetRequireVerifiedLogin() bool
	GetCookieSecure() bool
	GetAllowedOrigins() []string
}
