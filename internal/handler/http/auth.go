package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/dto"
	"turn-coordinator/internal/middleware"
)

// AuthAPI is the part of service.AuthService the handlers use.
type AuthAPI interface {
	Register(ctx context.Context, name, password, email string) (*domain.User, error)
	Login(ctx context.Context, name, password string) (string, error)
	Logout(ctx context.Context, sessionID string) error
	SetNotifications(ctx context.Context, userID uint, enabled bool) error
}

// AuthHandler serves accounts, logins and user preferences.
type AuthHandler struct {
	authService AuthAPI
}

func NewAuthHandler(authService AuthAPI) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Register: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	newUser, err := h.authService.Register(c.Request.Context(), req.Name, req.Password, req.Email)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, dto.RegisterResponse{
		Message: "User registered successfully",
		UserID:  newUser.ID,
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: name and password required")
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, dto.LoginResponse{Message: "Login successful", Token: token})
}

// Logout handles POST /api/auth/logout. The token stops working afterwards.
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := middleware.SessionID(c)
	if sessionID == "" {
		ErrorResponse(c, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := h.authService.Logout(c.Request.Context(), sessionID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dto.MessageResponse{Message: "Logged out"})
}

// SetNotifications handles PUT /api/users/me/notifications.
func (h *AuthHandler) SetNotifications(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.NotificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: enabled is required")
		return
	}
	if err := h.authService.SetNotifications(c.Request.Context(), userID, *req.Enabled); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"enabled": *req.Enabled})
}
