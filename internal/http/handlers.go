package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/degraded"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/lifecycle"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/observability"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/validation"
)

// WeatherProvider assembles the weather bundle for an incoming request.
type WeatherProvider interface {
	WeatherForRequest(r *http.Request) models.WeatherBundle
}

// CalendarStore reads and overwrites the stored calendar event map.
type CalendarStore interface {
	Events(ctx context.Context) models.CalendarEventMap
	SaveEvents(ctx context.Context, events models.CalendarEventMap) error
}

// ContextBuilder renders the prompt context text for a weather bundle.
type ContextBuilder interface {
	Build(ctx context.Context, bundle models.WeatherBundle, period *models.Period) string
}

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	StartTime        time.Time
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// DBPing, when set, is called to check calendar database reachability.
	DBPing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather          WeatherProvider
	calendar         CalendarStore
	contexts         ContextBuilder
	healthConfig     *HealthConfig
	logger           *zap.Logger
	contextMaxDays   int
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	weather WeatherProvider,
	calendar CalendarStore,
	contexts ContextBuilder,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	contextMaxDays int,
) *Handler {
	return &Handler{
		weather:        weather,
		calendar:       calendar,
		contexts:       contexts,
		healthConfig:   healthConfig,
		logger:         logger,
		contextMaxDays: contextMaxDays,
	}
}

// GetWeather handles GET /weather?lat=&lon=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if _, _, _, err := validation.ValidateCoords(q.Get("lat"), q.Get("lon")); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDS", err.Error())
		return
	}

	bundle := h.weather.WeatherForRequest(r)
	writeJSON(w, http.StatusOK, bundle)
}

// GetCalendar handles GET /calendar. Storage failures degrade to an empty map.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	events := h.calendar.Events(r.Context())
	writeJSON(w, http.StatusOK, events)
}

// PutCalendar handles PUT /calendar. The write replaces the stored map
// wholesale; a storage failure here is the one error callers see.
func (h *Handler) PutCalendar(w http.ResponseWriter, r *http.Request) {
	var events models.CalendarEventMap
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be a calendar event map")
		return
	}
	if events == nil {
		events = models.CalendarEventMap{}
	}

	if err := h.calendar.SaveEvents(r.Context(), events); err != nil {
		writeError(w, r, http.StatusInternalServerError, "STORAGE_FAILURE", "unable to save calendar events")
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Error("calendar save failed", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"saved": len(events)})
}

type contextRequest struct {
	Period struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"period"`
}

// PostContext handles POST /context. Renders the prompt context block for the
// resolved location over the requested period (default: today).
func (h *Handler) PostContext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if _, _, _, err := validation.ValidateCoords(q.Get("lat"), q.Get("lon")); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDS", err.Error())
		return
	}

	var body contextRequest
	if r.Body != nil {
		// An empty body means "today"; only malformed JSON is rejected.
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be JSON")
			return
		}
	}

	period, err := validation.ValidatePeriod(body.Period.Start, body.Period.End, h.contextMaxDays)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PERIOD", err.Error())
		return
	}

	bundle := h.weather.WeatherForRequest(r)
	text := h.contexts.Build(r.Context(), bundle, period)
	observability.PromptContextsTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"location": bundle.Location.City,
		"zoneId":   bundle.ZoneID,
		"context":  text,
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["weatherUpstream"] = "unhealthy"
	} else {
		checks["weatherUpstream"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	if h.healthConfig != nil && h.healthConfig.DBPing != nil {
		if h.healthConfig.DBPing(r.Context()) == nil {
			checks["database"] = "healthy"
		} else {
			checks["database"] = "unhealthy"
		}
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "wardrobe-weather-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > upstream error rate breach > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errors, total := degraded.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errors) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard envelope with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
