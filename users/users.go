package users

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a coarse application role carried inside access tokens.
type RoleType string

const (
	RoleUser     RoleType = "USER"
	RoleAdmin    RoleType = "ADMIN"
	RoleStartup  RoleType = "STARTUP"
	RoleInvestor RoleType = "INVESTOR"
)

// ValidRole reports whether the role is one of the known role values.
func ValidRole(role RoleType) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleStartup, RoleInvestor:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id,omitempty"`    // Unique identifier for the user
	Email        string    `json:"email,omitempty"` // Normalized (lower-cased) email address
	PasswordHash string    `json:"-"`               // Hashed version of the user's password - never serialize
	Name         string    `json:"name,omitempty"`  // Display name
	Role         RoleType  `json:"role,omitempty"`
	Verified     bool      `json:"verified,omitempty"` // Has the user confirmed their email address
	TokenVersion int64     `json:"-"`                  // Epoch embedded in access tokens; bumping it invalidates them all
	Provider     string    `json:"provider,omitempty"` // External identity provider (e.g. "google"), empty for local accounts
	ProviderSub  string    `json:"-"`                  // Subject ID at the external provider
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Public is the projection returned to clients. It never carries the
// password hash or the token version.
type Public struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name,omitempty"`
	Role     RoleType `json:"role"`
	Verified bool     `json:"verified"`
}

// Public returns the client-safe projection of the user.
func (u *User) Public() Public {
	return Public{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		Verified: u.Verified,
	}
}

// NormalizeEmail lower-cases and trims an email address. Uniqueness checks
// and lookups always operate on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
