package auth

import (
	"context"

	apperrors "mathtutor_go_backend/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const userIDKey = "userID"

type ctxKey struct{}

// Middleware rejects requests without a valid bearer token before any
// handler runs, and stores the verified user id for the handlers.
func Middleware(tm *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractBearer(c.GetHeader("Authorization"))
		if err != nil {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		userID, err := tm.Verify(token)
		if err != nil {
			apperrors.HandleError(c, apperrors.NewInvalidTokenError(err))
			return
		}

		ctx := context.WithValue(c.Request.Context(), ctxKey{}, userID)
		logger := zerolog.Ctx(ctx).With().Str("userID", userID.String()).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(ctx))
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserIDFromContext returns the user id stored by Middleware.
func UserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	if v, ok := c.Get(userIDKey); ok {
		id, ok := v.(uuid.UUID)
		return id, ok
	}
	id, ok := c.Request.Context().Value(ctxKey{}).(uuid.UUID)
	return id, ok
}

// MustUserID aborts with 401 when the middleware did not run.
func MustUserID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := UserIDFromContext(c)
	if !ok {
		apperrors.HandleError(c, apperrors.New401Error())
	}
	return id, ok
}
