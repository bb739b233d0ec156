package sqlite

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
)

var _ users.Repo = (*UserRepo)(nil)

// UserRepo is the SQLite users.Repo implementation. Epoch bumps happen in
// the same UPDATE as the credential change, so the token version can never
// lag the stored hash.
type UserRepo struct {
	q querier
}

const userColumns = `id, email, password_hash, name, role, verified, token_version, provider, provider_sub, created_at, updated_at`

func (ur *UserRepo) scanUser(row *sql.Row) (*users.User, error) {
	var (
		user      users.User
		role      string
		verified  int
		createdAt string
		updatedAt string
	)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &role,
		&verified, &user.TokenVersion, &user.Provider, &user.ProviderSub, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan user")
	}

	user.Role = users.RoleType(role)
	user.Verified = verified != 0
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, errors.Wrap(err, "parse created_at")
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, errors.Wrap(err, "parse updated_at")
	}
	return &user, nil
}

func (ur *UserRepo) Insert(user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = user.CreatedAt

	verified := 0
	if user.Verified {
		verified = 1
	}

	_, err := ur.q.Exec(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.Name, string(user.Role),
		verified, user.TokenVersion, user.Provider, user.ProviderSub,
		formatTime(user.CreatedAt), formatTime(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return users.ErrDuplicateEmail
		}
		return errors.Wrap(err, "[UserRepo.Insert]")
	}
	return nil
}

func (ur *UserRepo) GetByID(id string) (*users.User, error) {
	return ur.scanUser(ur.q.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (ur *UserRepo) GetByEmail(email string) (*users.User, error) {
	return ur.scanUser(ur.q.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (ur *UserRepo) GetByProviderSub(provider, subject string) (*users.User, error) {
	return ur.scanUser(ur.q.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_sub = ?`, provider, subject))
}

func (ur *UserRepo) UpdatePassword(id string, passwordHash string) error {
	result, err := ur.q.Exec(
		`UPDATE users SET password_hash = ?, token_version = token_version + 1, updated_at = ? WHERE id = ?`,
		passwordHash, formatTime(time.Now()), id,
	)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.UpdatePassword]")
	}
	return requireRow(result, users.ErrNotFound)
}

func (ur *UserRepo) UpdateEmail(id string, email string) error {
	result, err := ur.q.Exec(
		`UPDATE users SET email = ?, verified = 1, token_version = token_version + 1, updated_at = ? WHERE id = ?`,
		email, formatTime(time.Now()), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return users.ErrDuplicateEmail
		}
		return errors.Wrap(err, "[UserRepo.UpdateEmail]")
	}
	return requireRow(result, users.ErrNotFound)
}

func (ur *UserRepo) LinkProvider(id string, provider, subject string) error {
	result, err := ur.q.Exec(
		`UPDATE users SET provider = ?, provider_sub = ?, updated_at = ? WHERE id = ?`,
		provider, subject, formatTime(time.Now()), id,
	)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.LinkProvider]")
	}
	return requireRow(result, users.ErrNotFound)
}

func (ur *UserRepo) SetVerified(id string, verified bool) error {
	v := 0
	if verified {
		v = 1
	}
	result, err := ur.q.Exec(
		`UPDATE users SET verified = ?, updated_at = ? WHERE id = ?`,
		v, formatTime(time.Now()), id,
	)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.SetVerified]")
	}
	return requireRow(result, users.ErrNotFound)
}

func (ur *UserRepo) BumpTokenVersion(id string) error {
	result, err := ur.q.Exec(
		`UPDATE users SET token_version = token_version + 1, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.BumpTokenVersion]")
	}
	return requireRow(result, users.ErrNotFound)
}

func (ur *UserRepo) Delete(id string) error {
	result, err := ur.q.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Delete]")
	}
	return requireRow(result, users.ErrNotFound)
}

func (ur *UserRepo) List(offset, limit int) ([]*users.User, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := ur.q.Query(
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "[UserRepo.List]")
	}
	defer rows.Close()

	var list []*users.User
	for rows.Next() {
		var (
			user      users.User
			role      string
			verified  int
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &role,
			&verified, &user.TokenVersion, &user.Provider, &user.ProviderSub, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "[UserRepo.List] scan")
		}
		user.Role = users.RoleType(role)
		user.Verified = verified != 0
		if user.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, errors.Wrap(err, "[UserRepo.List] parse created_at")
		}
		if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, errors.Wrap(err, "[UserRepo.List] parse updated_at")
		}
		list = append(list, &user)
	}
	return list, rows.Err()
}

// requireRow converts a zero-rows-affected result into notFound.
func requireRow(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
