package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuth requires an HS256 bearer token signed with secret. Paths listed in
// exclude pass through unauthenticated.
func JWTAuth(secret string, logger *slog.Logger, exclude ...string) Middleware {
	key := []byte(secret)

	excluded := make(map[string]struct{}, len(exclude))
	for _, path := range exclude {
		excluded[path] = struct{}{}
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := excluded[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(header, "Bearer ")
			if !found || tokenString == "" {
				logger.Warn("Missing bearer token",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			token, err := parser.Parse(tokenString, func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil || !token.Valid {
				logger.Warn("Invalid bearer token",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
					slog.Any("err", err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SignToken issues an HS256 token for subject, used by operators and tests.
func SignToken(secret, subject string, claims jwt.MapClaims) (string, error) {
	all := jwt.MapClaims{"sub": subject}
	for k, v := range claims {
		all[k] = v
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, all).SignedString([]byte(secret))
}
