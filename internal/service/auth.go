package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/repository"
)

// AuthService handles accounts, logins and sessions.
type AuthService struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	jwtSecret   []byte
	jwtExpiry   time.Duration
	now         func() time.Time
}

// NewAuthService builds an AuthService. jwtExpiryHours <= 0 means 24 hours.
func NewAuthService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository, jwtSecretKey string, jwtExpiryHours int) (*AuthService, error) {
	if userRepo == nil || sessionRepo == nil {
		panic("repositories cannot be nil for AuthService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		jwtSecret:   []byte(jwtSecretKey),
		jwtExpiry:   time.Duration(jwtExpiryHours) * time.Hour,
		now:         time.Now,
	}, nil
}

// Register creates an account. Email notifications start enabled.
func (s *AuthService) Register(ctx context.Context, name, password, email string) (*domain.User, error) {
	logCtx := logrus.WithFields(logrus.Fields{"name": name, "email": email})

	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return nil, withReason(ErrValidation, "name and password are required")
	}
	if strings.ContainsAny(name, " @") {
		return nil, withReason(ErrValidation, "name must not contain spaces or @")
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, ErrInternalServer
	}

	user := &domain.User{
		Name:                 name,
		Password:             hashedPassword,
		Email:                email,
		NotificationsEnabled: true,
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Warn("Registration failed: name or email already exists")
			return nil, fmt.Errorf("%w: %w", ErrValidation, ErrRegistrationFailed)
		}
		logCtx.WithError(err).Error("Database error during user creation")
		return nil, ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User registered successfully")
	user.Password = ""
	return user, nil
}

// Login checks the credentials, opens a session and returns a token bound to it.
func (s *AuthService) Login(ctx context.Context, name, password string) (string, error) {
	logCtx := logrus.WithField("name", name)

	user, err := s.userRepo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.WithError(err).Warn("Login attempt failed: User not found")
		} else {
			logCtx.WithError(err).Warn("Login attempt failed: Error finding user")
		}
		return "", ErrAuthenticationFailed
	}
	if !checkPassword(password, user.Password) {
		logCtx.Warn("Login attempt failed: Invalid password")
		return "", ErrAuthenticationFailed
	}

	now := s.now()
	session := &domain.Session{ID: uuid.NewString(), UserID: user.ID, CreatedAt: now, UpdatedAt: now}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		logCtx.WithError(err).Error("Failed to create session during login")
		return "", ErrInternalServer
	}

	token, err := s.generateJWT(user.ID, session.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate JWT token during login")
		return "", ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User logged in successfully")
	return token, nil
}

// Logout ends a session. Tokens bound to it stop working.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessionRepo.Delete(ctx, sessionID); err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to delete session")
		return ErrInternalServer
	}
	return nil
}

// TouchSession records activity on a session; this is the presence signal
// the turn notifier looks at.
func (s *AuthService) TouchSession(ctx context.Context, sessionID string) error {
	err := s.sessionRepo.Touch(ctx, sessionID, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrAuthenticationRequired
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to touch session")
		return ErrInternalServer
	}
	return nil
}

// SetNotifications stores whether userID wants turn emails.
func (s *AuthService) SetNotifications(ctx context.Context, userID uint, enabled bool) error {
	err := s.userRepo.SetNotificationsEnabled(ctx, userID, enabled)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to update notification setting")
		return ErrInternalServer
	}
	return nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from password: %w", err)
	}
	return string(bytes), nil
}

func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *AuthService) generateJWT(userID uint, sessionID string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    userID,
		"session_id": sessionID,
		"exp":        now.Add(s.jwtExpiry).Unix(),
		"iat":        now.Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
