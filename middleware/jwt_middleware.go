package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"campus-server/utils/errors"
)

type contextKey string

const userIDKey contextKey = "userID"

func JWTMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				WriteError(w, r, errors.ErrUnauthorized.WithDetails("missing bearer token"))
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.NewAPIError("INVALID_TOKEN", "Unexpected signing method", http.StatusUnauthorized)
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				WriteError(w, r, errors.ErrUnauthorized.WithDetails("invalid token"))
				return
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				WriteError(w, r, errors.ErrUnauthorized)
				return
			}
			userID, ok := claims["userID"].(string)
			if !ok || userID == "" {
				WriteError(w, r, errors.ErrUnauthorized.WithDetails("token has no userID"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated caller set by JWTMiddleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// RequireAdmin lets through only callers listed in adminIDs. It must run
// after JWTMiddleware.
func RequireAdmin(adminIDs []string) func(http.Handler) http.Handler {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				WriteError(w, r, errors.ErrUnauthorized)
				return
			}
			if _, admin := admins[userID]; !admin {
				WriteError(w, r, errors.ErrForbidden.WithDetails("user_id=%s is not an administrator", userID))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
