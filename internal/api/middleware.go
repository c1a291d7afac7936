/**
 * @description
 * Authentication and authorization middleware for the batch ledger API.
 * Wallet sessions are issued by the wallet-connection flow as HS256 JWTs whose
 * subject is the wallet address.
 */
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// CallerContextKey is the key used to store the caller address in the request context.
const CallerContextKey = contextKey("caller")

// WalletAuthMiddleware validates wallet session tokens and injects the caller address.
func WalletAuthMiddleware(secret, issuer string) func(http.Handler) http.Handler {
	key := []byte(secret)
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(issuer))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "Unauthenticated", "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				respondWithError(w, http.StatusUnauthorized, "Unauthenticated", "Invalid Authorization header format")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				return key, nil
			}, parserOpts...)
			if err != nil || !token.Valid {
				respondWithError(w, http.StatusUnauthorized, "Unauthenticated", fmt.Sprintf("Invalid token: %v", err))
				return
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || !common.IsHexAddress(subject) {
				respondWithError(w, http.StatusUnauthorized, "Unauthenticated", "Wallet address not found in token")
				return
			}

			ctx := context.WithValue(r.Context(), CallerContextKey, common.HexToAddress(subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnlyMiddleware rejects callers without the admin role before the handler runs.
func AdminOnlyMiddleware(isAdmin func(common.Address) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok || !isAdmin(caller) {
				respondWithError(w, http.StatusForbidden, "Unauthorized", "admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// InternalAuthMiddleware validates optional internal API key for server-to-server calls.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-Internal-API-Key")
			if provided == "" || provided != requiredKey {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CallerFromContext retrieves the caller address from the request context.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(CallerContextKey).(common.Address)
	return caller, ok
}
