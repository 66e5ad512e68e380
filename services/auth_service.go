package services

import (
	"context"
	"net/http"
	"strings"
	"time"

	"places-server/models"
	"places-server/store"
	"places-server/utils/errors"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type SignupRequest struct {
	Name      string `validate:"required"`
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=8,max=72"`
	ImagePath string `validate:"required"`
}

const invalidCredentialsMessage = "Invalid credentials, could not log you in."

// LoginRequest is not validated. Missing credentials fail the same way as
// wrong ones.
type LoginRequest struct {
	Email    string
	Password string
}

// AuthResult is returned by Signup and Login.
type AuthResult struct {
	User  models.User
	Token string
}

// TokenIssuer signs HS256 tokens carrying the user id.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (t *TokenIssuer) Issue(user models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID": user.ID,
		"email":  user.Email,
		"exp":    time.Now().Add(t.ttl).Unix(),
	})
	return token.SignedString(t.secret)
}

// Signup creates a user with an empty places list. Emails are unique; the
// pre-check gives the common case a clean error and the unique index covers
// the race between two signups.
func (s *UserService) Signup(ctx context.Context, req SignupRequest) (AuthResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if err := validateRequest(req); err != nil {
		return AuthResult{}, err
	}

	_, err := s.store.FindUserByEmail(ctx, req.Email)
	if err == nil {
		return AuthResult{}, errors.ErrDuplicateEmail
	}
	if !errors.Is(err, store.ErrNotFound) {
		return AuthResult{}, errors.Storage("Signing up failed, please try again later.", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return AuthResult{}, errors.Wrap(err, errors.CodeInternal, "Could not create user, please try again.", http.StatusInternalServerError)
	}

	user := models.User{
		ID:           store.NewID(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		Image:        req.ImagePath,
		Places:       []string{},
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return AuthResult{}, errors.ErrDuplicateEmail
		}
		return AuthResult{}, errors.Storage("Signing up failed, please try again later.", err)
	}

	return s.authResult(user, "Signing up failed, please try again later.")
}

// Login checks the password against the stored bcrypt hash. Unknown email
// and wrong password produce the same error.
func (s *UserService) Login(ctx context.Context, req LoginRequest) (AuthResult, error) {
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return AuthResult{}, errors.Auth(invalidCredentialsMessage)
	}

	user, err := s.store.FindUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, errors.Auth(invalidCredentialsMessage)
		}
		return AuthResult{}, errors.Storage("Logging in failed, please try again later.", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return AuthResult{}, errors.Auth(invalidCredentialsMessage)
	}

	return s.authResult(user, "Logging in failed, please try again later.")
}

func (s *UserService) authResult(user models.User, failure string) (AuthResult, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return AuthResult{}, errors.Wrap(err, errors.CodeInternal, failure, http.StatusInternalServerError)
	}
	user.PasswordHash = ""
	return AuthResult{User: user, Token: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
