// Package api exposes the HTTP surface of the marathon service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"example.com/marathon/internal/auth"
	"example.com/marathon/internal/domain"
	"example.com/marathon/internal/plan"
	"example.com/marathon/internal/report"
	"example.com/marathon/internal/scheduler"
)

const (
	dateLayout     = "2006-01-02"
	maxPlanUpload  = 10 << 20
	defaultLogs    = 50
	maxLogs        = 500
	defaultWeeks   = 4
	maxTrendWeeks  = 52
	xlsxMediaType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	markdownFormat = "markdown"
)

// SyncRunner starts orchestration runs.
type SyncRunner interface {
	RunWindow(ctx context.Context) (scheduler.RunResult, error)
	RunForDate(ctx context.Context, date time.Time) (scheduler.RunResult, error)
	Today() time.Time
	Running() bool
}

// DashboardBuilder assembles the daily dashboard.
type DashboardBuilder interface {
	Build(ctx context.Context, reportDate, today time.Time) (report.Dashboard, error)
}

// TrendSource computes weekly trend series.
type TrendSource interface {
	WeeklyTrend(ctx context.Context, endDate time.Time, weeks int) ([]domain.WeekTrend, error)
}

// PlanImporter stores parsed plan entries.
type PlanImporter interface {
	Import(ctx context.Context, entries []domain.PlanEntry) (plan.ImportResult, error)
}

// StravaAuthorizer runs the OAuth consent flow.
type StravaAuthorizer interface {
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code string) (domain.AuthorizedAthlete, error)
}

// Store is the slice of persistence the handlers read and write directly.
type Store interface {
	domain.AthleteRepository
	domain.AuditLog
	domain.UsageStore
}

// Dependencies groups the collaborators a Handler needs. Strava may be nil,
// in which case the OAuth endpoints answer 503.
type Dependencies struct {
	Runner    SyncRunner
	Dashboard DashboardBuilder
	Trends    TrendSource
	Plans     PlanImporter
	Strava    StravaAuthorizer
	Store     Store
	Logger    zerolog.Logger
}

// Handler serves the HTTP surface.
type Handler struct {
	deps   Dependencies
	states *stateStore
}

// NewHandler builds a Handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps, states: newStateStore(10 * time.Minute)}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("POST /v1/sync", h.triggerSync)
	mux.HandleFunc("GET /v1/dashboard", h.dashboard)
	mux.HandleFunc("GET /v1/trends", h.trends)
	mux.HandleFunc("POST /v1/plan/import", h.importPlan)
	mux.HandleFunc("GET /v1/athletes", h.listAthletes)
	mux.HandleFunc("POST /v1/athletes/{id}/active", h.setAthleteActive)
	mux.HandleFunc("GET /v1/system-logs", h.systemLogs)
	mux.HandleFunc("GET /v1/strava/authorize", h.stravaAuthorize)
	mux.HandleFunc("GET /v1/strava/callback", h.stravaCallback)
}

// healthz reports liveness plus the last successful sync.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", SyncRunning: h.deps.Runner.Running()}

	last, err := h.deps.Store.LastSuccess(r.Context())
	if err != nil {
		h.deps.Logger.Warn().Err(err).Msg("healthz: last success lookup failed")
		resp.Status = "degraded"
	} else if last != nil {
		resp.LastSuccessfulSync = &last.LoggedAt
	}

	usage, err := h.deps.Store.UsageOn(r.Context(), h.deps.Runner.Today())
	if err == nil {
		resp.StravaRequestsToday = usage.Requests
		resp.StravaLimitReached = usage.LimitReached
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeSyncTrigger) {
		return
	}

	// The run records its outcome in the audit log; a dropped client must not abort it.
	ctx := context.WithoutCancel(r.Context())

	var (
		result scheduler.RunResult
		err    error
	)
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, parseErr := time.Parse(dateLayout, raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
			return
		}
		result, err = h.deps.Runner.RunForDate(ctx, date)
	} else {
		result, err = h.deps.Runner.RunWindow(ctx)
	}

	if errors.Is(err, scheduler.ErrRunInProgress) {
		writeError(w, http.StatusConflict, "sync_in_progress", err.Error())
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, toSyncResponse(result))
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeDashboardRead) {
		return
	}

	today := h.deps.Runner.Today()
	reportDate := today.AddDate(0, 0, -1)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
			return
		}
		reportDate = parsed
	}

	dashboard, err := h.deps.Dashboard.Build(r.Context(), reportDate, today)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	if r.URL.Query().Get("format") == markdownFormat {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.Markdown(dashboard)))
		return
	}
	writeJSON(w, http.StatusOK, toDashboardResponse(dashboard))
}

func (h *Handler) trends(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeDashboardRead) {
		return
	}

	weeks := defaultWeeks
	if raw := r.URL.Query().Get("weeks"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "weeks must be a positive integer")
			return
		}
		weeks = min(parsed, maxTrendWeeks)
	}
	end := h.deps.Runner.Today().AddDate(0, 0, -1)
	if raw := r.URL.Query().Get("end"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "end must be YYYY-MM-DD")
			return
		}
		end = parsed
	}

	series, err := h.deps.Trends.WeeklyTrend(r.Context(), end, weeks)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	resp := TrendResponse{EndDate: end.Format(dateLayout), Weeks: make([]WeekTrendView, 0, len(series))}
	for _, week := range series {
		resp.Weeks = append(resp.Weeks, toWeekTrendView(week))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) importPlan(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopePlanWrite) {
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxPlanUpload)
	var (
		entries []domain.PlanEntry
		err     error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), xlsxMediaType) {
		entries, err = plan.ParseXLSX(body, r.URL.Query().Get("sheet"))
	} else {
		entries, err = plan.ParseCSV(body)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "plan upload exceeds 10 MiB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_plan", err.Error())
		return
	}

	result, err := h.deps.Plans.Import(r.Context(), entries)
	resp := PlanImportResponse{Rows: len(entries), Athletes: result.Athletes, AthletesCreated: result.Created, Workouts: result.Workouts}
	if err != nil {
		resp.Error = err.Error()
		h.deps.Logger.Warn().Err(err).Int("imported", result.Workouts).Msg("plan import finished with errors")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listAthletes(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeDashboardRead, auth.ScopeAthletesWrite) {
		return
	}

	athletes, err := h.deps.Store.ListAthletes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	items := make([]AthleteView, 0, len(athletes))
	for _, athlete := range athletes {
		items = append(items, toAthleteView(athlete))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) setAthleteActive(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeAthletesWrite) {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid athlete id")
		return
	}
	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", `body must be {"active": true|false}`)
		return
	}

	if err := h.deps.Store.SetActive(r.Context(), id, *req.Active); err != nil {
		if errors.Is(err, domain.ErrAthleteNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "athlete not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	athlete, err := h.deps.Store.GetAthlete(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toAthleteView(*athlete))
}

func (h *Handler) systemLogs(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, auth.ScopeLogsRead) {
		return
	}

	limit := defaultLogs
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxLogs)
		}
	}
	logs, err := h.deps.Store.RecentLogs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	items := make([]SystemLogView, 0, len(logs))
	for _, entry := range logs {
		items = append(items, toSystemLogView(entry))
	}
	writeJSON(w, http.StatusOK, items)
}

// requireScope writes 401/403 and returns false unless the caller holds one of scopes.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) bool {
	allowed, authenticated := auth.Allowed(r.Context(), scopes...)
	if !authenticated {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("scope %s required", strings.Join(scopes, " or ")))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
