package auth

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/session"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("test-secret")

func newTestService(t *testing.T) *AuthService {
	t.Helper()
	store, err := db.Open(context.Background(), "sqlite:///"+filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewAuthService(store, session.NewMemoryStore(), testSecret, time.Hour)
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name         string
		username     string
		password     string
		confirmation string
		expectError  error
	}{
		{
			name:         "Success",
			username:     "alice",
			password:     "Abcdef1!",
			confirmation: "Abcdef1!",
		},
		{
			name:         "EmptyUsername",
			username:     "  ",
			password:     "Abcdef1!",
			confirmation: "Abcdef1!",
			expectError:  models.ErrMissingCredentials,
		},
		{
			name:         "EmptyConfirmation",
			username:     "bob",
			password:     "Abcdef1!",
			confirmation: "",
			expectError:  models.ErrMissingCredentials,
		},
		{
			name:         "Mismatch",
			username:     "bob",
			password:     "Abcdef1!",
			confirmation: "Abcdef1?",
			expectError:  models.ErrInvalidCredentials,
		},
		{
			name:         "WeakPassword",
			username:     "bob",
			password:     "abcdefgh",
			confirmation: "abcdefgh",
			expectError:  models.ErrWeakPassword,
		},
		{
			name:         "TooLong",
			username:     "bob",
			password:     "A1!aaaaaaaaaaaaaaaaaaaa",
			confirmation: "A1!aaaaaaaaaaaaaaaaaaaa",
			expectError:  models.ErrWeakPassword,
		},
		{
			name:         "MultiByteOverBcryptLimit",
			username:     "bob",
			password:     "Aa\U0001D7CF" + strings.Repeat("😀", 17),
			confirmation: "Aa\U0001D7CF" + strings.Repeat("😀", 17),
			expectError:  models.ErrWeakPassword,
		},
		{
			name:         "MultiByteWithinBcryptLimit",
			username:     "carol",
			password:     "Aa1!" + strings.Repeat("ü", 16),
			confirmation: "Aa1!" + strings.Repeat("ü", 16),
		},
		{
			name:         "UsernameTooLong",
			username:     strings.Repeat("b", 81),
			password:     "Abcdef1!",
			confirmation: "Abcdef1!",
			expectError:  models.ErrInvalidUsername,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t)
			ctx := context.Background()

			user, err := s.Register(ctx, tt.username, tt.password, tt.confirmation)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.username, user.Username)
			assert.True(t, user.Cash.Equal(models.StartingCash), "cash %s", user.Cash)

			stored, err := s.DB.GetUserByUsername(ctx, tt.username)
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, stored.PasswordHash)
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(tt.password)))
		})
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	first, err := s.Register(ctx, "Alice", "Abcdef1!", "Abcdef1!")
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Username)

	_, err = s.Register(ctx, "ALICE", "Other99#", "Other99#")
	assert.ErrorIs(t, err, models.ErrUsernameTaken)

	// The existing row is untouched.
	stored, err := s.DB.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("Abcdef1!")))

	_, err = s.DB.GetUserByID(ctx, first.ID+1)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestAuthService_Login(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	user, err := s.Register(ctx, "alice", "Abcdef1!", "Abcdef1!")
	require.NoError(t, err)

	tests := []struct {
		name        string
		username    string
		password    string
		expectError error
	}{
		{"Success", "alice", "Abcdef1!", nil},
		{"CaseInsensitiveUsername", "AliCe", "Abcdef1!", nil},
		{"WrongPassword", "alice", "Abcdef1?", models.ErrInvalidCredentials},
		{"NonExistentUser", "bob", "Abcdef1!", models.ErrInvalidCredentials},
		{"EmptyPassword", "alice", "", models.ErrMissingCredentials},
		{"EmptyUsername", "", "Abcdef1!", models.ErrMissingCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := s.Login(ctx, tt.username, tt.password)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)

			userID, err := s.Resolve(ctx, token)
			require.NoError(t, err)
			assert.Equal(t, user.ID, userID)
		})
	}
}

func TestAuthService_Login_NonDistinguishing(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, err := s.Register(ctx, "alice", "Abcdef1!", "Abcdef1!")
	require.NoError(t, err)

	_, wrongPassword := s.Login(ctx, "alice", "Wrong12#")
	_, unknownUser := s.Login(ctx, "mallory", "Wrong12#")

	require.Error(t, wrongPassword)
	require.Error(t, unknownUser)
	assert.Equal(t, wrongPassword, unknownUser)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestAuthService_Logout(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, err := s.Register(ctx, "alice", "Abcdef1!", "Abcdef1!")
	require.NoError(t, err)

	first, err := s.Login(ctx, "alice", "Abcdef1!")
	require.NoError(t, err)
	second, err := s.Login(ctx, "alice", "Abcdef1!")
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx, first))
	_, err = s.Resolve(ctx, first)
	assert.ErrorIs(t, err, ErrInvalidSession)

	// Other sessions of the same user survive.
	_, err = s.Resolve(ctx, second)
	assert.NoError(t, err)

	// Logging out garbage is a no-op.
	assert.NoError(t, s.Logout(ctx, ""))
	assert.NoError(t, s.Logout(ctx, "not-a-token"))
}

func TestAuthService_Resolve(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	user, err := s.Register(ctx, "alice", "Abcdef1!", "Abcdef1!")
	require.NoError(t, err)
	token, err := s.Login(ctx, "alice", "Abcdef1!")
	require.NoError(t, err)

	// A session that exists in the store, signed three ways.
	require.NoError(t, s.Sessions.Put(ctx, "known-sid", user.ID, time.Hour))
	sign := func(method jwt.SigningMethod, key interface{}, exp time.Time) string {
		tok := jwt.NewWithClaims(method, jwt.RegisteredClaims{
			ID:        "known-sid",
			ExpiresAt: jwt.NewNumericDate(exp),
		})
		str, err := tok.SignedString(key)
		require.NoError(t, err)
		return str
	}
	unknownSession, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        "unknown-sid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name         string
		token        string
		expectUserID int
		expectError  bool
	}{
		{"Success", token, user.ID, false},
		{"KnownSessionValidToken", sign(jwt.SigningMethodHS256, testSecret, time.Now().Add(time.Hour)), user.ID, false},
		{"ExpiredToken", sign(jwt.SigningMethodHS256, testSecret, time.Now().Add(-time.Hour)), 0, true},
		{"InvalidSignature", sign(jwt.SigningMethodHS256, []byte("wrong-key"), time.Now().Add(time.Hour)), 0, true},
		{"WrongAlgorithm", sign(jwt.SigningMethodHS512, testSecret, time.Now().Add(time.Hour)), 0, true},
		{"UnknownSession", unknownSession, 0, true},
		{"EmptyToken", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := s.Resolve(ctx, tt.token)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrInvalidSession)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectUserID, userID)
		})
	}
}
