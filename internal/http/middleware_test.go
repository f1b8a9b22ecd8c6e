package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/traffic"
)

func TestCorrelationIDMiddleware_GeneratesWhenMissing(t *testing.T) {
	var seenID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Context().Value("correlation_id"); v != nil {
			seenID = v.(string)
		}
	})
	handler := CorrelationIDMiddleware(zap.NewNop())(next)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seenID == "" {
		t.Fatal("correlation_id missing from request context")
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != seenID {
		t.Errorf("response header = %q, want %q", got, seenID)
	}
}

func TestCorrelationIDMiddleware_PreservesProvided(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := CorrelationIDMiddleware(zap.NewNop())(next)

	req := httptest.NewRequest(http.MethodGet, "/weather", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("response header = %q, want abc-123", got)
	}
}

func TestRateLimitMiddleware_DeniesWhenExhausted(t *testing.T) {
	traffic.Reset()
	t.Cleanup(traffic.Reset)

	limiter := rate.NewLimiter(rate.Limit(1), 1)
	var served int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { served++ })
	handler := RateLimitMiddleware(limiter)(next)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/weather", nil))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/weather", nil))

	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if served != 1 {
		t.Errorf("served = %d, want 1", served)
	}
	if !strings.Contains(second.Body.String(), "RATE_LIMITED") {
		t.Errorf("body = %s, want RATE_LIMITED error code", second.Body.String())
	}
	if got := traffic.DenialCount(time.Minute); got != 1 {
		t.Errorf("denial count = %d, want 1", got)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	var served bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { served = true })
	handler := RateLimitMiddleware(nil)(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/weather", nil))

	if !served {
		t.Error("nil limiter should pass requests through")
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var hadDeadline bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadDeadline = r.Context().Deadline()
	})
	handler := TimeoutMiddleware(50 * time.Millisecond)(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/weather", nil))

	if !hadDeadline {
		t.Error("request context missing deadline")
	}
}

func TestGetRoute_CollapsesUnknownPaths(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/weather", "/weather"},
		{"/calendar", "/calendar"},
		{"/context", "/context"},
		{"/favicon.ico", "other"},
		{"/weather/extra", "other"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if got := getRoute(req); got != tt.want {
			t.Errorf("getRoute(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	release := make(chan struct{})
	observed := make(chan int64, 1)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observed <- InFlightCount()
		<-release
	})
	handler := MetricsMiddleware(next)

	done := make(chan struct{})
	go func() {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/weather", nil))
		close(done)
	}()

	if got := <-observed; got != 1 {
		t.Errorf("in-flight during request = %d, want 1", got)
	}
	close(release)
	<-done

	if got := InFlightCount(); got != 0 {
		t.Errorf("in-flight after request = %d, want 0", got)
	}
}
