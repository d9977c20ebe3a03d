package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	xglog "github.com/yoyostream/transcoderd/internal/log"
	"github.com/yoyostream/transcoderd/internal/recovery"
	"github.com/yoyostream/transcoderd/internal/schedule"
	"github.com/yoyostream/transcoderd/internal/workday"
)

var (
	errRecoveryUnavailable = errors.New("recovery service not configured")
	errHistoryUnavailable  = errors.New("sweep history disabled")
	errWorkdayUnavailable  = errors.New("workday calendar not configured")
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptimeSeconds"`
	Timezone      string                     `json:"timezone"`
	Schedulers    map[string]schedule.Status `json:"schedulers"`
	Recovery      *recovery.Status           `json:"recovery,omitempty"`
	Workday       *workday.Status            `json:"workday,omitempty"`
}

// WorkdayResponse is the body of GET /api/workday.
type WorkdayResponse struct {
	Date     string `json:"date"`
	Workday  bool   `json:"workday"`
	Degraded bool   `json:"degraded"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Version:       s.deps.Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Timezone:      s.deps.Location.String(),
		Schedulers:    make(map[string]schedule.Status, len(s.schedulers)),
	}
	for name, sc := range s.schedulers {
		resp.Schedulers[name] = sc.Status()
	}
	if s.deps.Recovery != nil {
		st := s.deps.Recovery.Status()
		resp.Recovery = &st
	}
	if s.deps.Workday != nil {
		st := s.deps.Workday.Status()
		resp.Workday = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) scheduler(w http.ResponseWriter, r *http.Request) (Scheduler, bool) {
	name := chi.URLParam(r, "name")
	sc, ok := s.schedulers[name]
	if !ok {
		writeNotFound(w, r, fmt.Sprintf("scheduler %q", name))
	}
	return sc, ok
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.scheduler(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sc.Status())
}

// handleSchedulerReload refetches the schedule set. A failed fetch still
// leaves the scheduler running, so the new status is returned either way.
func (s *Server) handleSchedulerReload(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.scheduler(w, r)
	if !ok {
		return
	}
	logger := xglog.WithComponentFromContext(r.Context(), "api")
	logger.Info().Str("scheduler", sc.Name()).Str(xglog.FieldEvent, "api.reload").Msg("manual schedule reload")

	// The reload outlives a disconnecting client.
	if err := sc.Reload(context.WithoutCancel(r.Context())); err != nil {
		RespondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sc.Status())
}

func (s *Server) handleRecoveryStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recovery == nil {
		writeServiceUnavailable(w, r, errRecoveryUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Recovery.Status())
}

// handleRecoveryRun runs one sweep synchronously and returns its report.
func (s *Server) handleRecoveryRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recovery == nil {
		writeServiceUnavailable(w, r, errRecoveryUnavailable)
		return
	}

	run := s.deps.Recovery.RunImmediate
	switch mode := recovery.Mode(r.URL.Query().Get("mode")); mode {
	case "", recovery.ModeImmediate:
	case recovery.ModeSizeCheck:
		run = s.deps.Recovery.RunWithSizeCheck
	default:
		writeBadRequest(w, r, fmt.Errorf("unknown mode %q (want %s or %s)", mode, recovery.ModeImmediate, recovery.ModeSizeCheck))
		return
	}

	report, err := run(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, recovery.ErrSweepRunning):
		RespondError(w, r, http.StatusConflict, err.Error())
		return
	case err != nil && report.ID == "":
		RespondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	// A sweep that ended early still produced a report.
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRecoveryHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeServiceUnavailable(w, r, errHistoryUnavailable)
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, r, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	reports, err := s.deps.History.List(r.Context(), limit)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// handleWorkday answers ?date=YYYY-MM-DD, defaulting to today in the
// platform timezone.
func (s *Server) handleWorkday(w http.ResponseWriter, r *http.Request) {
	if s.deps.Workday == nil {
		writeServiceUnavailable(w, r, errWorkdayUnavailable)
		return
	}
	day := time.Now().In(s.deps.Location)
	if raw := r.URL.Query().Get("date"); raw != "" {
		t, err := time.ParseInLocation(time.DateOnly, raw, s.deps.Location)
		if err != nil {
			writeBadRequest(w, r, fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw))
			return
		}
		day = t.Add(12 * time.Hour)
	}
	ok := s.deps.Workday.IsWorkday(r.Context(), day)
	writeJSON(w, http.StatusOK, WorkdayResponse{
		Date:     day.Format(time.DateOnly),
		Workday:  ok,
		Degraded: s.deps.Workday.Status().Degraded,
	})
}
