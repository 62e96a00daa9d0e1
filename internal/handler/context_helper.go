package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/middleware"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type sessionResolver interface {
	Current(ctx context.Context) (models.SessionSnapshot, error)
}

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// activeSession resolves the session for a scoped request. An incomplete
// session is returned as is; the services reject it with NO_ACTIVE_SESSION.
// It writes the error response and returns false when resolution fails.
func activeSession(c *gin.Context, sessions sessionResolver) (models.ActiveSession, bool) {
	snapshot, err := sessions.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return models.ActiveSession{}, false
	}
	return snapshot.Session(), true
}
