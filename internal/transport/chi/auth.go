package chi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDHeader names the user on whose behalf a trusted service calls.
const UserIDHeader = "X-User-ID"

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	// JWTSecret verifies HS256 user tokens.
	JWTSecret string
	// APIKeys admit trusted services, which must name the user in X-User-ID.
	APIKeys []string
}

type userIDKey struct{}

// ContextWithUserID stores the authenticated user id.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// AuthMiddleware resolves the calling user from a Bearer JWT or an API key
// plus X-User-ID. With neither a secret nor keys configured authentication
// is disabled and X-User-ID is trusted as is.
func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	validKeys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			validKeys[k] = struct{}{}
		}
	}
	secret := []byte(cfg.JWTSecret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			if len(validKeys) == 0 && len(secret) == 0 {
				ctx := ContextWithUserID(r.Context(), r.Header.Get(UserIDHeader))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized,
					ErrorCodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}
			token := auth[len(bearerPrefix):]

			var userID string
			if _, ok := validKeys[token]; ok {
				userID = r.Header.Get(UserIDHeader)
				if userID == "" {
					writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "api key requests must set "+UserIDHeader)
					return
				}
			} else {
				if len(secret) == 0 {
					writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "invalid api key")
					return
				}
				var err error
				if userID, err = userFromToken(token, secret); err != nil {
					writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "invalid token")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// userFromToken verifies an HS256 token and returns its user_id claim, or sub.
func userFromToken(raw string, secret []byte) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if id, ok := claims["user_id"].(string); ok && id != "" {
		return id, nil
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("subject claim: %w", err)
	}
	if sub == "" {
		return "", errors.New("token names no user")
	}
	return sub, nil
}
