// Package notify delivers action token secrets out-of-band. Delivery is
// fire-and-forget from the orchestrator's perspective: a failed delivery is
// logged and never rolls back token issuance.
package notify

import (
	"time"

	"github.com/jrsteele09/go-session-auth/actiontoken"
	"github.com/rs/zerolog"
)

// Notifier hands a freshly issued raw action token to its owner.
type Notifier interface {
	Deliver(kind actiontoken.Kind, recipientEmail, displayName, rawToken string, expiresAt time.Time) error
}

// LogNotifier writes deliveries to the log instead of sending mail. Used in
// development and tests. The raw token is logged on purpose here - it is the
// only way to complete a flow locally without a mailbox.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Deliver(kind actiontoken.Kind, recipientEmail, displayName, rawToken string, expiresAt time.Time) error {
	n.logger.Info().
		Str("kind", string(kind)).
		Str("recipient", recipientEmail).
		Str("token", rawToken).
		Time("expires_at", expiresAt).
		Msg("action token issued")
	return nil
}
