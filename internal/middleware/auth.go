package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"turn-coordinator/internal/service"
)

// Context keys set by Auth.
const (
	ContextUserID    = "user_id"
	ContextSessionID = "session_id"
)

// ErrMissingAuthHeader means the request carried no token at all.
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// SessionToucher records activity on a session. *service.AuthService implements it.
type SessionToucher interface {
	TouchSession(ctx context.Context, sessionID string) error
}

// Auth validates the bearer token, touches its session and stores user_id and
// session_id in the gin context. With required=false requests without a
// usable token pass through anonymously.
func Auth(jwtSecret string, sessions SessionToucher, required bool) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for Auth middleware")
	}
	if sessions == nil {
		panic("session toucher cannot be nil for Auth middleware")
	}

	reject := func(c *gin.Context, status int, msg string) {
		if !required && status == http.StatusUnauthorized {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
	}

	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				reject(c, http.StatusUnauthorized, "Authorization header is required")
				return
			}
			logrus.WithError(err).Warn("Auth middleware: Malformed token format")
			reject(c, http.StatusUnauthorized, "Invalid token format")
			return
		}

		claims, err := validateToken(tokenStr, jwtSecret)
		if err != nil {
			logCtx := logrus.WithError(err)
			var validationError *jwt.ValidationError
			if errors.As(err, &validationError) && validationError.Errors&jwt.ValidationErrorExpired != 0 {
				logCtx = logCtx.WithField("reason", "expired")
			}
			logCtx.Warn("Auth middleware: Invalid token")
			reject(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		userID, sessionID, err := identity(claims)
		if err != nil {
			logrus.WithError(err).Error("Auth middleware: Token carries no usable identity")
			reject(c, http.StatusUnauthorized, "Invalid token claims")
			return
		}

		if err := sessions.TouchSession(c.Request.Context(), sessionID); err != nil {
			if errors.Is(err, service.ErrAuthenticationRequired) {
				logrus.WithField("session_id", sessionID).Info("Auth middleware: Session is gone")
				reject(c, http.StatusUnauthorized, "Session expired, please log in again")
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify session"})
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextSessionID, sessionID)
		logrus.WithField("user_id", userID).Debug("Auth middleware: User authenticated via JWT")
		c.Next()
	}
}

// UserID returns the authenticated user of c.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id > 0
}

// SessionID returns the session of the authenticated user of c.
func SessionID(c *gin.Context) string {
	return c.GetString(ContextSessionID)
}

// extractToken reads "Authorization: Bearer <token>". Browsers cannot set
// headers on websocket upgrades, so a "token" query parameter is accepted too.
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if q := c.Query("token"); q != "" {
			return q, nil
		}
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

func validateToken(tokenStr string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token or claims type")
}

// identity pulls user_id and session_id out of claims. JSON numbers decode as float64.
func identity(claims jwt.MapClaims) (uint, string, error) {
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat <= 0 || userIDFloat != float64(uint(userIDFloat)) {
		return 0, "", fmt.Errorf("user_id claim is not a positive integer: %v", claims["user_id"])
	}
	sessionID, ok := claims["session_id"].(string)
	if !ok || sessionID == "" {
		return 0, "", errors.New("session_id claim missing")
	}
	return uint(userIDFloat), sessionID, nil
}
