package handler

import (
	"net/http"
	"strings"
	"time"

	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionKey = "session"

// SessionMiddleware resolves the bearer token into a *models.Session.
// Requests without a token continue with no session and are rejected by
// the operations that need one; an invalid token is rejected here.
// Websocket clients may pass the token as the access_token query parameter.
func (h *Handler) SessionMiddleware(auth *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		sess, err := auth.Parse(token)
		if err != nil {
			h.Logger.Debug("rejected token", zap.Error(err))
			h.respondError(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return c.Query("access_token")
}

// SessionFrom returns the caller's session, or nil when anonymous.
func SessionFrom(c *gin.Context) *models.Session {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(*models.Session); ok {
			return sess
		}
	}
	return nil
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if sess := SessionFrom(c); sess != nil {
			fields = append(fields, zap.String("user_id", sess.UserID))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Info("request", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}
