// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	xglog "github.com/yoyostream/transcoderd/internal/log"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// RespondError writes {"error": msg, "requestId": id}.
func RespondError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	body := map[string]string{"error": msg}
	if id := xglog.RequestIDFromContext(r.Context()); id != "" {
		body["requestId"] = id
	}
	writeJSON(w, code, body)
}

// writeBadRequest writes a 400 with the error text.
func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	RespondError(w, r, http.StatusBadRequest, err.Error())
}

// writeUnauthorized writes a 401 Unauthorized response
func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	RespondError(w, r, http.StatusUnauthorized, "unauthorized")
}

// writeNotFound writes a 404 Not Found response
func writeNotFound(w http.ResponseWriter, r *http.Request, what string) {
	RespondError(w, r, http.StatusNotFound, what+" not found")
}

// writeServiceUnavailable writes a 503 Service Unavailable response
func writeServiceUnavailable(w http.ResponseWriter, r *http.Request, err error) {
	RespondError(w, r, http.StatusServiceUnavailable, err.Error())
}
