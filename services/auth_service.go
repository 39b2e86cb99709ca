package services

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"campus-server/models"
	"campus-server/store"
	"campus-server/utils/errors"
)

// Register creates a new user
func (s *UserService) Register(ctx context.Context, username, email, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.User{}, errors.ErrInvalidInput.WithDetails("username and password are required")
	}

	var existing []models.User
	if err := s.store.Find(ctx, store.Users, store.Query{Equals: map[string]any{"username": username}}, &existing); err != nil {
		return models.User{}, errors.Wrap(err, "DB_ERROR", "failed to look up username", http.StatusInternalServerError)
	}
	if len(existing) > 0 {
		return models.User{}, errors.ErrUsernameTaken.WithDetails("username=%s", username)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, errors.Wrap(err, "HASH_ERROR", "failed to hash password", http.StatusInternalServerError)
	}

	// Edge sets start empty, not nil: $addToSet refuses to touch a null field.
	user := models.User{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		PasswordHash:   string(passwordHash),
		Following:      []string{},
		Followers:      []string{},
		FollowRequests: []string{},
		Wishlist:       []string{},
		CreatedAt:      s.now().UTC(),
	}

	if err := s.store.Insert(ctx, store.Users, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.User{}, errors.ErrUsernameTaken.WithDetails("username=%s", username)
		}
		return models.User{}, errors.Wrap(err, "DB_ERROR", "failed to create user in database", http.StatusInternalServerError)
	}

	s.log.WithField("user_id", user.ID).Info("Registered user")
	return user, nil
}

// Login authenticates a user and returns a JWT
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	var users []models.User
	if err := s.store.Find(ctx, store.Users, store.Query{Equals: map[string]any{"username": username}}, &users); err != nil {
		return "", errors.Wrap(err, "DB_ERROR", "failed to look up user", http.StatusInternalServerError)
	}
	if len(users) == 0 || users[0].Deleted() {
		return "", errors.NewAPIError("INVALID_CREDENTIALS", "Invalid username or password", http.StatusUnauthorized)
	}
	user := users[0]

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", errors.NewAPIError("INVALID_CREDENTIALS", "Invalid username or password", http.StatusUnauthorized)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID":   user.ID,
		"username": user.Username,
		"exp":      s.now().Add(s.tokenTTL).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", errors.Wrap(err, "JWT_ERROR", "Failed to generate token", http.StatusInternalServerError)
	}

	if err := s.cache.SetJSON(ctx, store.UserKey(user.ID), user, s.cacheTTL); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("Failed to cache user")
	}
	return tokenString, nil
}

// tokenTTLOrDefault keeps zero-config setups issuing usable tokens.
func tokenTTLOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}
