package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"turn-coordinator/internal/middleware"
	"turn-coordinator/internal/service"
)

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrOutOfSync),
		errors.Is(err, service.ErrRuleViolation),
		errors.Is(err, service.ErrRegistrationFailed):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAuthenticationRequired),
		errors.Is(err, service.ErrAuthenticationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAuthorizationDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrGameNotFound),
		errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// HandleServiceError writes err with the status it maps to. Internal errors
// never leak their text.
func HandleServiceError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled internal server error")
		ErrorResponse(c, status, "An unexpected error occurred")
		return
	}
	ErrorResponse(c, status, service.Reason(err))
}

// requireUser returns the authenticated user or writes 401.
func requireUser(c *gin.Context) (uint, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		HandleServiceError(c, service.ErrAuthenticationRequired)
		return 0, false
	}
	return userID, true
}

// gameIDParam parses :id or writes 400.
func gameIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		ErrorResponse(c, http.StatusBadRequest, "Invalid game ID format")
		return 0, false
	}
	return uint(id), true
}
