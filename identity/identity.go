// Package identity verifies assertions from upstream identity providers.
// Provider trust (key discovery, signature checks) is delegated to the OIDC
// library; this package only normalizes the result for the auth service.
package identity

import "context"

// Assertion is the verified identity claim set extracted from an external
// provider's ID token.
type Assertion struct {
	Provider      string
	SubjectID     string
	Email         string
	EmailVerified bool
	DisplayName   string
}

// Verifier validates a raw external identity assertion (an OIDC ID token)
// and returns its claims, or fails if the assertion cannot be trusted.
type Verifier interface {
	VerifyAssertion(ctx context.Context, rawAssertion string) (*Assertion, error)
}

// CodeExchanger completes an authorization-code flow at the provider and
// verifies the assertion it yields. Implemented by verifiers whose provider
// supports a server-driven redirect; codeVerifier carries the PKCE secret
// and may be empty.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*Assertion, error)
}
