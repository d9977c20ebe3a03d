// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	xglog "github.com/yoyostream/transcoderd/internal/log"
)

// HeaderAPIKey carries the admin token.
const HeaderAPIKey = "X-API-Key"

// authMiddleware enforces the API token. An empty token disables auth.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		token := s.cfg.Token
		s.mu.RUnlock()

		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		logger := xglog.WithComponentFromContext(r.Context(), "auth")
		reqToken := extractToken(r)
		if reqToken == "" {
			logger.Warn().Str(xglog.FieldEvent, "auth.missing_header").Msg("api key missing")
			writeUnauthorized(w, r)
			return
		}
		if !authorizeToken(reqToken, token) {
			logger.Warn().Str(xglog.FieldEvent, "auth.invalid_token").Msg("invalid api key")
			writeUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken reads X-API-Key, falling back to a Bearer token.
// Query parameters are never accepted.
func extractToken(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}
	if authz := r.Header.Get("Authorization"); len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// authorizeToken compares in constant time.
func authorizeToken(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
