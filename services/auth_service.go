package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

const (
	OperatorRole    = "operator"
	ClaimRole       = "role"
	defaultIssuer   = "racing-tournament"
	DefaultTokenTTL = 12 * time.Hour

	// OperatorBcryptCost is used when hashing a new operator password.
	OperatorBcryptCost = 12
	minPasswordLength  = 8
)

type AuthService interface {
	Login(ctx context.Context, password string) (*LoginResult, error)
	ParseToken(token string) (jwt.MapClaims, error)
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type authService struct {
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

// NewAuthService authenticates the single race operator against a bcrypt
// hash and issues HS256 tokens signed with secret.
func NewAuthService(passwordHash string, secret []byte, ttl time.Duration) AuthService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &authService{
		passwordHash: []byte(passwordHash),
		secret:       secret,
		ttl:          ttl,
		now:          time.Now,
	}
}

// HashOperatorPassword produces the value for OPERATOR_PASSWORD_HASH.
func HashOperatorPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrValidationFailed, minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), OperatorBcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (s *authService) Login(ctx context.Context, password string) (*LoginResult, error) {
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub":     OperatorRole,
		ClaimRole: OperatorRole,
		"iss":     defaultIssuer,
		"iat":     now.Unix(),
		"exp":     expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

// ParseToken verifies signature, algorithm and expiry and returns the claims.
func (s *authService) ParseToken(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if role, _ := claims[ClaimRole].(string); role != OperatorRole {
		return nil, fmt.Errorf("%w: missing operator role", ErrAuthenticationFailed)
	}
	return claims, nil
}
