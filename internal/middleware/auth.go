// Package middleware provides HTTP middleware for the marketplace API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nftbay/marketplace/internal/domain/market"
	"github.com/nftbay/marketplace/pkg/logger"
)

type contextKey string

const callerKey contextKey = "caller"

// Claims carries the wallet address the token was issued for.
type Claims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates bearer tokens and puts the caller's wallet address
// into the request context. Requests without an Authorization header pass
// through anonymously; endpoints that need a caller reject those themselves.
// A token that is present but invalid is always rejected.
type AuthMiddleware struct {
	secret    []byte
	log       *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates authentication middleware. Requests to skipPaths
// pass through without a token.
func NewAuthMiddleware(secret []byte, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &AuthMiddleware{secret: secret, log: log, skipPaths: skip}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.unauthorized(w, "malformed Authorization header")
			return
		}

		wallet, err := m.validateToken(parts[1])
		if err != nil {
			m.log.WithError(err).Warn("token validation failed")
			m.unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, wallet)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) validateToken(tokenString string) (market.Address, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Wallet == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return market.Normalize(market.Address(claims.Wallet)), nil
}

func (m *AuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"code":  "unauthorized",
		"error": message,
	})
}

// Caller extracts the authenticated wallet address from the context. The
// second return is false when the request was not authenticated.
func Caller(ctx context.Context) (market.Address, bool) {
	wallet, ok := ctx.Value(callerKey).(market.Address)
	return wallet, ok
}

// WithCaller injects a caller address, used by tests and internal dispatch.
func WithCaller(ctx context.Context, wallet market.Address) context.Context {
	return context.WithValue(ctx, callerKey, market.Normalize(wallet))
}
