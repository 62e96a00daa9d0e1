package service

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

// IDTokenVerifier is implemented by *auth.Client.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// AuthConfig defines how bearer tokens are checked. When Firebase is set it
// takes precedence over the shared secret.
type AuthConfig struct {
	AccessTokenSecret string
	Issuer            string
	Firebase          IDTokenVerifier
}

// AuthService validates bearer tokens issued by the external auth service.
// It never issues credentials to end users.
type AuthService struct {
	config AuthConfig
	logger *zap.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(config AuthConfig, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{config: config, logger: logger}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	if s.config.Firebase != nil {
		return s.validateFirebaseToken(ctx, tokenString)
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token carries no known role")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}

	return claims, nil
}

// validateFirebaseToken maps a verified Firebase ID token onto JWTClaims.
// The role is read from the "role" custom claim.
func (s *AuthService) validateFirebaseToken(ctx context.Context, idToken string) (*models.JWTClaims, error) {
	token, err := s.config.Firebase.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	role, _ := token.Claims["role"].(string)
	claims := &models.JWTClaims{
		UserID: token.UID,
		Role:   models.UserRole(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    token.Issuer,
			Subject:   token.Subject,
			ExpiresAt: jwt.NewNumericDate(time.Unix(token.Expires, 0)),
			IssuedAt:  jwt.NewNumericDate(time.Unix(token.IssuedAt, 0)),
		},
	}
	if email, ok := token.Claims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := token.Claims["name"].(string); ok {
		claims.FullName = name
	}
	if !claims.Role.Valid() {
		s.logger.Warn("firebase token without role claim", zap.String("uid", token.UID))
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token carries no known role")
	}
	return claims, nil
}

// IssueToken signs claims with the shared secret. It backs local tooling and
// tests; production tokens come from the auth service.
func (s *AuthService) IssueToken(claims models.JWTClaims, ttl time.Duration) (string, error) {
	issuedAt := time.Now().UTC()
	if claims.Subject == "" {
		claims.Subject = claims.UserID
	}
	if claims.Issuer == "" {
		claims.Issuer = s.config.Issuer
	}
	claims.IssuedAt = jwt.NewNumericDate(issuedAt)
	claims.NotBefore = jwt.NewNumericDate(issuedAt)
	claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}
