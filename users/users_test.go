package users_test

import (
	"testing"

	"github.com/jrsteele09/go-session-auth/users"
	"github.com/stretchr/testify/require"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid password", "Password123", false},
		{"too short", "Pass1", true},
		{"no uppercase", "password123", true},
		{"no lowercase", "PASSWORD123", true},
		{"no number", "PasswordOnly", true},
		{"exactly eight chars", "Passwd12", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := users.ValidatePasswordStrength(tt.password)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "john.doe@example.com", users.NormalizeEmail("  John.Doe@Example.COM "))
	require.Equal(t, "", users.NormalizeEmail("   "))
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := users.HashPassword("Password123")
	require.NoError(t, err)
	require.NotEqual(t, "Password123", hash)

	require.True(t, users.CheckPasswordHash("Password123", hash))
	require.False(t, users.CheckPasswordHash("Password124", hash))
}

func TestPublicProjectionOmitsSecrets(t *testing.T) {
	user := users.User{
		ID:           "user-1",
		Email:        "john.doe@example.com",
		PasswordHash: "hash",
		Name:         "John Doe",
		Role:         users.RoleAdmin,
		Verified:     true,
		TokenVersion: 7,
	}

	public := user.Public()
	require.Equal(t, user.ID, public.ID)
	require.Equal(t, user.Email, public.Email)
	require.Equal(t, users.RoleAdmin, public.Role)
	require.True(t, public.Verified)
}

func TestValidRole(t *testing.T) {
	require.True(t, users.ValidRole(users.RoleUser))
	require.True(t, users.ValidRole(users.RoleAdmin))
	require.True(t, users.ValidRole(users.RoleStartup))
	require.True(t, users.ValidRole(users.RoleInvestor))
	require.False(t, users.ValidRole(users.RoleType("SUPERUSER")))
	require.False(t, users.ValidRole(users.RoleType("")))
}
