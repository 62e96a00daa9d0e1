package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the verified identity of the caller. Tokens come from
// the external auth service; Firebase ID tokens are mapped onto the same shape.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
