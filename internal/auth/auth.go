package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/session"
	"github.com/xtrntr/papertrade/internal/validate"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidSession is returned by Resolve for missing, forged, expired or
// logged-out session tokens.
var ErrInvalidSession = errors.New("invalid session")

// dummyHash is compared against when the username does not exist. Unknown
// users and wrong passwords take the same time.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

// AuthService handles user registration and session-based authentication
type AuthService struct {
	DB       db.Store
	Sessions session.Store
	secret   []byte
	ttl      time.Duration
}

// NewAuthService creates a new auth service. Session tokens are signed with
// secret and expire after ttl.
func NewAuthService(store db.Store, sessions session.Store, secret []byte, ttl time.Duration) *AuthService {
	return &AuthService{DB: store, Sessions: sessions, secret: secret, ttl: ttl}
}

// NormalizeUsername lowercases and trims a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Register creates a new user with a hashed password and the starting cash balance
func (s *AuthService) Register(ctx context.Context, username, password, confirmation string) (*models.User, error) {
	username = NormalizeUsername(username)
	if username == "" || password == "" || confirmation == "" {
		return nil, models.ErrMissingCredentials
	}
	if err := validate.Username(username); err != nil {
		return nil, err
	}
	if password != confirmation {
		return nil, models.NewUserError(models.InvalidCredentials, "passwords must match")
	}
	if err := validate.Password(password); err != nil {
		return nil, err
	}

	_, err := s.DB.GetUserByUsername(ctx, username)
	if err == nil {
		return nil, models.ErrUsernameTaken
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.DB.CreateUser(ctx, username, string(hashedPassword), models.StartingCash)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateUsername) {
			return nil, models.ErrUsernameTaken
		}
		return nil, err
	}
	return user, nil
}

// Login verifies credentials, binds the user to a new session and returns
// the signed session token. Unknown users and wrong passwords both yield
// models.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return "", models.ErrMissingCredentials
	}

	user, err := s.DB.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return "", err
		}
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", models.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.ErrInvalidCredentials
	}

	sid := uuid.NewString()
	if err := s.Sessions.Put(ctx, sid, user.ID, s.ttl); err != nil {
		return "", err
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		s.Sessions.Delete(ctx, sid)
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return tokenString, nil
}

// Resolve returns the user id bound to a session token
func (s *AuthService) Resolve(ctx context.Context, tokenString string) (int, error) {
	sid, err := s.sessionID(tokenString)
	if err != nil {
		return 0, ErrInvalidSession
	}

	userID, err := s.Sessions.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return 0, ErrInvalidSession
		}
		return 0, err
	}
	return userID, nil
}

// Logout forgets the session behind a token. Unparseable or expired tokens
// have nothing to forget, so Logout never fails for them.
func (s *AuthService) Logout(ctx context.Context, tokenString string) error {
	sid, err := s.sessionID(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil
	}
	return s.Sessions.Delete(ctx, sid)
}

func (s *AuthService) sessionID(tokenString string, opts ...jwt.ParserOption) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidSession
	}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.ID == "" {
		return "", ErrInvalidSession
	}
	return claims.ID, nil
}
