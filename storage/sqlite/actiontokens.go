package sqlite

import (
	"database/sql"
	"time"

	"github.com/jrsteele09/go-session-auth/actiontoken"
	"github.com/pkg/errors"
)

var _ actiontoken.Repo = (*ActionTokenRepo)(nil)

// ActionTokenRepo is the SQLite actiontoken.Repo implementation. Consume is
// a single conditional UPDATE: the check for unconsumed-and-unexpired and
// the consumed mark are one statement, so two concurrent consumers can never
// both succeed.
type ActionTokenRepo struct {
	q querier
}

const actionTokenColumns = `id, user_id, fingerprint, kind, metadata, created_at, expires_at, consumed_at`

func (tr *ActionTokenRepo) Insert(token *actiontoken.Token) error {
	_, err := tr.q.Exec(
		`INSERT INTO action_tokens (`+actionTokenColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		token.ID, token.UserID, token.Fingerprint, string(token.Kind), token.Metadata,
		formatTime(token.CreatedAt), formatTime(token.ExpiresAt),
	)
	if err != nil {
		return errors.Wrap(err, "[ActionTokenRepo.Insert]")
	}
	return nil
}

func (tr *ActionTokenRepo) Consume(fingerprint string, kind actiontoken.Kind, now time.Time) (*actiontoken.Token, error) {
	result, err := tr.q.Exec(
		`UPDATE action_tokens SET consumed_at = ?
		 WHERE fingerprint = ? AND kind = ? AND consumed_at IS NULL AND expires_at > ?`,
		formatTime(now), fingerprint, string(kind), formatTime(now),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[ActionTokenRepo.Consume]")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "[ActionTokenRepo.Consume] rows affected")
	}
	if affected == 0 {
		return nil, actiontoken.ErrNotConsumable
	}

	// We won the conditional update; the row is now ours to read.
	row := tr.q.QueryRow(
		`SELECT `+actionTokenColumns+` FROM action_tokens WHERE fingerprint = ?`, fingerprint)

	var (
		token      actiontoken.Token
		kindStr    string
		createdAt  string
		expiresAt  string
		consumedAt sql.NullString
	)
	if err := row.Scan(&token.ID, &token.UserID, &token.Fingerprint, &kindStr, &token.Metadata,
		&createdAt, &expiresAt, &consumedAt); err != nil {
		return nil, errors.Wrap(err, "[ActionTokenRepo.Consume] scan")
	}

	token.Kind = actiontoken.Kind(kindStr)
	if token.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, errors.Wrap(err, "[ActionTokenRepo.Consume] parse created_at")
	}
	if token.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, errors.Wrap(err, "[ActionTokenRepo.Consume] parse expires_at")
	}
	if consumedAt.Valid {
		t, err := parseTime(consumedAt.String)
		if err != nil {
			return nil, errors.Wrap(err, "[ActionTokenRepo.Consume] parse consumed_at")
		}
		token.ConsumedAt = &t
	}
	return &token, nil
}

func (tr *ActionTokenRepo) DeleteUnconsumed(userID string, kind actiontoken.Kind) error {
	_, err := tr.q.Exec(
		`DELETE FROM action_tokens WHERE user_id = ? AND kind = ? AND consumed_at IS NULL`,
		userID, string(kind),
	)
	if err != nil {
		return errors.Wrap(err, "[ActionTokenRepo.DeleteUnconsumed]")
	}
	return nil
}

func (tr *ActionTokenRepo) DeleteExpired(cutoff time.Time) error {
	_, err := tr.q.Exec(`DELETE FROM action_tokens WHERE expires_at < ?`, formatTime(cutoff))
	if err != nil {
		return errors.Wrap(err, "[ActionTokenRepo.DeleteExpired]")
	}
	return nil
}
