package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "sma-attendance"}, nil)

	token, err := svc.IssueToken(models.JWTClaims{UserID: "u-1", Role: models.RoleAcademicHead, Email: "head@school.test"}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, models.RoleAcademicHead, claims.Role)
	assert.Equal(t, "head@school.test", claims.Email)
	assert.Equal(t, "sma-attendance", claims.Issuer)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret"}, nil)
	other := NewAuthService(AuthConfig{AccessTokenSecret: "other"}, nil)

	foreign, err := other.IssueToken(models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	expired, err := svc.IssueToken(models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin}, -time.Minute)
	require.NoError(t, err)
	roleless, err := svc.IssueToken(models.JWTClaims{UserID: "u-1", Role: "JANITOR"}, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "u-1", "role": "ADMIN"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong secret": foreign,
		"expired":      expired,
		"unknown role": roleless,
		"alg none":     none,
		"garbage":      "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(context.Background(), token)
			requireCode(t, err, appErrors.ErrUnauthorized)
		})
	}
}

func TestAuthServiceSubjectFallback(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret"}, nil)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "u-9",
		"role": "TEACHER",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-9", claims.UserID)
}

type stubVerifier struct {
	token *auth.Token
	err   error
}

func (v stubVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	return v.token, v.err
}

func TestAuthServiceFirebaseTokens(t *testing.T) {
	now := time.Now()
	verified := &auth.Token{
		UID:      "fb-1",
		Issuer:   "https://securetoken.google.com/sma",
		Subject:  "fb-1",
		IssuedAt: now.Unix(),
		Expires:  now.Add(time.Hour).Unix(),
		Claims:   map[string]interface{}{"role": "ADMIN", "email": "admin@school.test", "name": "Admin"},
	}

	svc := NewAuthService(AuthConfig{AccessTokenSecret: "ignored", Firebase: stubVerifier{token: verified}}, nil)
	claims, err := svc.ValidateToken(context.Background(), "id-token")
	require.NoError(t, err)
	assert.Equal(t, "fb-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "admin@school.test", claims.Email)
	assert.Equal(t, "Admin", claims.FullName)

	noRole := *verified
	noRole.Claims = map[string]interface{}{}
	svc = NewAuthService(AuthConfig{Firebase: stubVerifier{token: &noRole}}, nil)
	_, err = svc.ValidateToken(context.Background(), "id-token")
	requireCode(t, err, appErrors.ErrUnauthorized)

	svc = NewAuthService(AuthConfig{Firebase: stubVerifier{err: errors.New("expired")}}, nil)
	_, err = svc.ValidateToken(context.Background(), "id-token")
	requireCode(t, err, appErrors.ErrUnauthorized)
}
