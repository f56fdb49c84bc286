package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"resalewatch/middleware"
	"resalewatch/models"
	"resalewatch/scheduler"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// AlertStateReader exposes the alert state table read-only
type AlertStateReader interface {
	IsAlerted(eventURL string) bool
}

// BlockStreaks exposes per-event consecutive block counts
type BlockStreaks interface {
	BlockStreak(eventURL string) int
}

// AlertHistory lists delivered alerts
type AlertHistory interface {
	RecentAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error)
}

type Handlers struct {
	checker      *scheduler.ResaleChecker
	state        AlertStateReader
	streaks      BlockStreaks
	history      AlertHistory
	metrics      http.Handler
	checkTimeout time.Duration
	startedAt    time.Time
	logger       *logrus.Logger
}

// Options carries the optional pieces of the API
type Options struct {
	// History is nil when no database is configured
	History      AlertHistory
	Metrics      http.Handler
	CheckTimeout time.Duration
}

func NewHandlers(checker *scheduler.ResaleChecker, state AlertStateReader, streaks BlockStreaks, opts Options, logger *logrus.Logger) *Handlers {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 2 * time.Minute
	}
	return &Handlers{
		checker:      checker,
		state:        state,
		streaks:      streaks,
		history:      opts.History,
		metrics:      opts.Metrics,
		checkTimeout: opts.CheckTimeout,
		startedAt:    time.Now(),
		logger:       logger,
	}
}

// Router builds the HTTP routes. apiKey guards /api/v1 when non-empty; the
// endpoints that make the service fetch pages are only registered with a key.
func (h *Handlers) Router(apiKey string, rateLimit float64) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggingMiddleware(h.logger))
	if rateLimit > 0 {
		r.Use(middleware.RateLimitMiddleware(rateLimit))
	}

	// Health and monitoring endpoints (no auth required)
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/status", h.Status).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(middleware.APIKeyMiddleware(apiKey))

	apiV1.HandleFunc("/events", h.GetEvents).Methods("GET")
	apiV1.HandleFunc("/alerts/state", h.GetAlertState).Methods("GET")
	apiV1.HandleFunc("/alerts", h.GetAlertHistory).Methods("GET")
	if apiKey == "" {
		h.logger.Warn("⚠️ API_KEY not set, sweep and check endpoints are disabled")
		return r
	}
	apiV1.HandleFunc("/sweeps", h.TriggerSweep).Methods("POST")
	apiV1.HandleFunc("/check", h.CheckURL).Methods("POST")

	return r
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "resalewatch",
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"timestamp":      time.Now(),
		"uptime":         time.Since(h.startedAt).Round(time.Second).String(),
		"events":         len(h.checker.Events()),
		"sweep_running":  h.checker.Running(),
		"history_stored": h.history != nil,
	}
	if last := h.checker.LastReport(); last != nil {
		status["last_sweep"] = last
		status["last_sweep_outcomes"] = last.Counts()
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handlers) GetEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": h.checker.Events(),
	})
}

type alertStateEntry struct {
	URL         string `json:"url"`
	Label       string `json:"label"`
	Alerted     bool   `json:"alerted"`
	BlockStreak int    `json:"block_streak"`
}

func (h *Handlers) GetAlertState(w http.ResponseWriter, r *http.Request) {
	events := h.checker.Events()
	entries := make([]alertStateEntry, 0, len(events))
	for _, e := range events {
		entry := alertStateEntry{
			URL:     e.URL,
			Label:   e.Label(),
			Alerted: h.state.IsAlerted(e.URL),
		}
		if h.streaks != nil {
			entry.BlockStreak = h.streaks.BlockStreak(e.URL)
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": entries})
}

func (h *Handlers) GetAlertHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "Alert history requires DATABASE_URL")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	alerts, err := h.history.RecentAlerts(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load alert history")
		writeError(w, http.StatusInternalServerError, "Failed to load alert history")
		return
	}
	if alerts == nil {
		alerts = []models.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (h *Handlers) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	id, err := h.checker.StartSweep(scheduler.TriggerManual)
	if errors.Is(err, scheduler.ErrSweepInProgress) {
		writeError(w, http.StatusConflict, "A sweep is already running")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"sweep_id": id,
		"status":   string(models.SweepStatusRunning),
	})
}

type checkRequest struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// CheckURL runs one fetch+classify+extract for a URL without touching alert state
func (h *Handlers) CheckURL(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	u, err := url.Parse(req.URL)
	if req.URL == "" || err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}
	if req.Label == "" {
		req.Label = u.Host
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
	defer cancel()

	result, err := h.checker.CheckOnce(ctx, req.URL, req.Label)
	if errors.Is(err, scheduler.ErrSweepInProgress) {
		writeError(w, http.StatusConflict, "A sweep is in progress, try again later")
		return
	}
	if err != nil {
		h.logger.WithField("url", req.URL).WithError(err).Warn("One-off check failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if result.Offers == nil {
		result.Offers = []models.Offer{}
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
