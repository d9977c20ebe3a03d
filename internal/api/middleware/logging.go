// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	xglog "github.com/yoyostream/transcoderd/internal/log"
)

// AccessLog logs one line per request after the handler returns.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		logger := xglog.WithComponentFromContext(r.Context(), "api")
		evt := logger.Info()
		if rw.statusCode >= http.StatusInternalServerError {
			evt = logger.Error()
		} else if isProbe(r.URL.Path) {
			evt = logger.Debug()
		}
		if _, spanID := ExtractTraceContext(r); spanID != "" {
			evt = evt.Str(xglog.FieldSpanID, spanID)
		}
		evt.Str(xglog.FieldEvent, "http.request").
			Str("method", r.Method).
			Str(xglog.FieldPath, r.URL.Path).
			Int("status", rw.statusCode).
			Dur(xglog.FieldDuration, time.Since(start)).
			Msg("request served")
	})
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sw *statusWriter) WriteHeader(statusCode int) {
	if !sw.written {
		sw.statusCode = statusCode
		sw.written = true
	}
	sw.ResponseWriter.WriteHeader(statusCode)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.written {
		sw.WriteHeader(http.StatusOK)
	}
	return sw.ResponseWriter.Write(b)
}

func isProbe(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}
