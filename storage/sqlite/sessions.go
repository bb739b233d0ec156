package sqlite

import (
	"database/sql"
	"time"

	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/pkg/errors"
)

var _ sessions.Repo = (*SessionRepo)(nil)

// SessionRepo is the SQLite sessions.Repo implementation. Rotation is a
// single conditional UPDATE keyed on the fingerprint being replaced, which
// makes it linearizable per session: of two concurrent rotations of the same
// secret exactly one changes the row.
type SessionRepo struct {
	q querier
}

const sessionColumns = `id, user_id, fingerprint, ip, user_agent, created_at, expires_at, revoked_at`

func scanSession(row *sql.Row) (*sessions.Session, error) {
	var (
		session   sessions.Session
		createdAt string
		expiresAt string
		revokedAt sql.NullString
	)
	err := row.Scan(&session.ID, &session.UserID, &session.Fingerprint, &session.IP,
		&session.UserAgent, &createdAt, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sessions.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan session")
	}

	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, errors.Wrap(err, "parse created_at")
	}
	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, errors.Wrap(err, "parse expires_at")
	}
	if revokedAt.Valid {
		t, err := parseTime(revokedAt.String)
		if err != nil {
			return nil, errors.Wrap(err, "parse revoked_at")
		}
		session.RevokedAt = &t
	}
	return &session, nil
}

func (sr *SessionRepo) Insert(session *sessions.Session) error {
	_, err := sr.q.Exec(
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		session.ID, session.UserID, session.Fingerprint, session.IP, session.UserAgent,
		formatTime(session.CreatedAt), formatTime(session.ExpiresAt),
	)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Insert]")
	}
	return nil
}

func (sr *SessionRepo) GetByID(id string) (*sessions.Session, error) {
	return scanSession(sr.q.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
}

func (sr *SessionRepo) GetByFingerprint(fingerprint string) (*sessions.Session, error) {
	return scanSession(sr.q.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE fingerprint = ?`, fingerprint))
}

func (sr *SessionRepo) ReplaceFingerprint(id string, oldFingerprint, newFingerprint string, now time.Time) error {
	result, err := sr.q.Exec(
		`UPDATE sessions SET fingerprint = ?
		 WHERE id = ? AND fingerprint = ? AND revoked_at IS NULL AND expires_at > ?`,
		newFingerprint, id, oldFingerprint, formatTime(now),
	)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.ReplaceFingerprint]")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.ReplaceFingerprint] rows affected")
	}
	if affected == 0 {
		if _, err := sr.GetByID(id); errors.Is(err, sessions.ErrNotFound) {
			return sessions.ErrNotFound
		}
		return sessions.ErrNotActive
	}
	return nil
}

func (sr *SessionRepo) Revoke(id string, now time.Time) error {
	result, err := sr.q.Exec(
		`UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		formatTime(now), id,
	)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Revoke]")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Revoke] rows affected")
	}
	if affected == 0 {
		// Already revoked is fine; only a missing row is an error.
		if _, err := sr.GetByID(id); errors.Is(err, sessions.ErrNotFound) {
			return sessions.ErrNotFound
		}
	}
	return nil
}

func (sr *SessionRepo) RevokeAllForUser(userID string, keepID string, now time.Time) error {
	_, err := sr.q.Exec(
		`UPDATE sessions SET revoked_at = ? WHERE user_id = ? AND id <> ? AND revoked_at IS NULL`,
		formatTime(now), userID, keepID,
	)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.RevokeAllForUser]")
	}
	return nil
}

func (sr *SessionRepo) CountActiveForUser(userID string, now time.Time) (int, error) {
	var count int
	err := sr.q.QueryRow(
		`SELECT COUNT(*) FROM sessions WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?`,
		userID, formatTime(now),
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "[SessionRepo.CountActiveForUser]")
	}
	return count, nil
}

func (sr *SessionRepo) DeleteExpired(cutoff time.Time) error {
	_, err := sr.q.Exec(`DELETE FROM sessions WHERE expires_at < ?`, formatTime(cutoff))
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.DeleteExpired]")
	}
	return nil
}
