package testserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/xipher-messenger/chatcore/internal/auth"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUsername is the context key for storing username.
	ContextKeyUsername = "username"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AuthMiddleware validates the token the client puts in the JSON body.
// The body is restored for the handler.
func AuthMiddleware(cfg *auth.JWTConfig, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Message: "unreadable body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		var envelope struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Token == "" {
			logger.Debug().Msg("missing token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: "missing token"})
			return
		}

		claims, err := auth.ValidateToken(cfg, envelope.Token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: "invalid token"})
			return
		}

		c.Set(ContextKeyUserID, claims.User())
		c.Set(ContextKeyUsername, claims.DisplayName())
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// faultMiddleware answers with queued injected failures before auth runs.
func (s *Server) faultMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		s.mu.Lock()
		s.requests[path]++
		status := 0
		if queue := s.faults[path]; len(queue) > 0 {
			status = queue[0]
			s.faults[path] = queue[1:]
		}
		s.mu.Unlock()

		if status == 0 {
			c.Next()
			return
		}
		s.log.Debug().Str("path", path).Int("status", status).Msg("injecting failure")
		c.AbortWithStatusJSON(status, errorResponse{Message: "injected failure"})
	}
}
