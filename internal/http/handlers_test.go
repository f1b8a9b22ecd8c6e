package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/degraded"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/lifecycle"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
)

type fakeWeather struct {
	bundle models.WeatherBundle
	calls  int
}

func (f *fakeWeather) WeatherForRequest(r *http.Request) models.WeatherBundle {
	f.calls++
	return f.bundle
}

type fakeCalendar struct {
	events  models.CalendarEventMap
	saved   models.CalendarEventMap
	saveErr error
}

func (f *fakeCalendar) Events(ctx context.Context) models.CalendarEventMap {
	return f.events
}

func (f *fakeCalendar) SaveEvents(ctx context.Context, events models.CalendarEventMap) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = events
	return nil
}

type fakeBuilder struct {
	text       string
	gotPeriod  *models.Period
	gotBundle  models.WeatherBundle
	buildCalls int
}

func (f *fakeBuilder) Build(ctx context.Context, bundle models.WeatherBundle, period *models.Period) string {
	f.buildCalls++
	f.gotBundle = bundle
	f.gotPeriod = period
	return f.text
}

func testBundle() models.WeatherBundle {
	return models.WeatherBundle{
		Location: models.Location{City: "수원", Region: "경기도", Lat: 37.26, Lon: 127.01},
		ZoneID:   "11B20601",
	}
}

func newTestHandler(weather *fakeWeather, cal *fakeCalendar, builder *fakeBuilder, hc *HealthConfig) *Handler {
	return NewHandler(weather, cal, builder, hc, zap.NewNop(), 14)
}

func TestGetWeather_ReturnsBundle(t *testing.T) {
	weather := &fakeWeather{bundle: testBundle()}
	h := newTestHandler(weather, &fakeCalendar{}, &fakeBuilder{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/weather?lat=37.26&lon=127.01", nil)
	rec := httptest.NewRecorder()
	h.GetWeather(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got models.WeatherBundle
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ZoneID != "11B20601" {
		t.Errorf("zoneId = %q, want 11B20601", got.ZoneID)
	}
	if weather.calls != 1 {
		t.Errorf("WeatherForRequest calls = %d, want 1", weather.calls)
	}
}

func TestGetWeather_OutOfRangeCoords(t *testing.T) {
	weather := &fakeWeather{bundle: testBundle()}
	h := newTestHandler(weather, &fakeCalendar{}, &fakeBuilder{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/weather?lat=91&lon=0", nil)
	rec := httptest.NewRecorder()
	h.GetWeather(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INVALID_COORDS") {
		t.Errorf("body = %s, want INVALID_COORDS error code", rec.Body.String())
	}
	if weather.calls != 0 {
		t.Errorf("WeatherForRequest calls = %d, want 0 on invalid coords", weather.calls)
	}
}

func TestGetWeather_UnparseableCoordsFallThrough(t *testing.T) {
	// Non-numeric coords are not an error: resolution falls back to the
	// client IP path inside the weather provider.
	weather := &fakeWeather{bundle: testBundle()}
	h := newTestHandler(weather, &fakeCalendar{}, &fakeBuilder{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/weather?lat=abc&lon=def", nil)
	rec := httptest.NewRecorder()
	h.GetWeather(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if weather.calls != 1 {
		t.Errorf("WeatherForRequest calls = %d, want 1", weather.calls)
	}
}

func TestGetCalendar_ReturnsStoredEvents(t *testing.T) {
	cal := &fakeCalendar{events: models.CalendarEventMap{
		"2025-06-01": {{ID: "1", Title: "결혼식"}},
	}}
	h := newTestHandler(&fakeWeather{}, cal, &fakeBuilder{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/calendar", nil)
	rec := httptest.NewRecorder()
	h.GetCalendar(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got models.CalendarEventMap
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got["2025-06-01"]) != 1 || got["2025-06-01"][0].Title != "결혼식" {
		t.Errorf("events = %+v, want stored event", got)
	}
}

func TestPutCalendar_SavesReplacementMap(t *testing.T) {
	cal := &fakeCalendar{}
	h := newTestHandler(&fakeWeather{}, cal, &fakeBuilder{}, nil)

	body := `{"2025-06-01":[{"id":"1","title":"출근"}],"2025-06-02":[]}`
	req := httptest.NewRequest(http.MethodPut, "/calendar", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PutCalendar(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(cal.saved) != 2 {
		t.Errorf("saved %d date keys, want 2", len(cal.saved))
	}
	if cal.saved["2025-06-01"][0].Title != "출근" {
		t.Errorf("saved event = %+v, want 출근", cal.saved["2025-06-01"])
	}
}

func TestPutCalendar_StorageFailurePropagates(t *testing.T) {
	cal := &fakeCalendar{saveErr: errors.New("connection refused")}
	h := newTestHandler(&fakeWeather{}, cal, &fakeBuilder{}, nil)

	req := httptest.NewRequest(http.MethodPut, "/calendar", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.PutCalendar(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "STORAGE_FAILURE") {
		t.Errorf("body = %s, want STORAGE_FAILURE error code", rec.Body.String())
	}
}

func TestPutCalendar_RejectsMalformedBody(t *testing.T) {
	h := newTestHandler(&fakeWeather{}, &fakeCalendar{}, &fakeBuilder{}, nil)

	req := httptest.NewRequest(http.MethodPut, "/calendar", strings.NewReader(`[not json`))
	rec := httptest.NewRecorder()
	h.PutCalendar(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INVALID_BODY") {
		t.Errorf("body = %s, want INVALID_BODY error code", rec.Body.String())
	}
}

func TestPostContext_EmptyBodyDefaultsToToday(t *testing.T) {
	weather := &fakeWeather{bundle: testBundle()}
	builder := &fakeBuilder{text: "■ 2025-06-01 (일요일)"}
	h := newTestHandler(weather, &fakeCalendar{}, builder, nil)

	req := httptest.NewRequest(http.MethodPost, "/context", nil)
	rec := httptest.NewRecorder()
	h.PostContext(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if builder.buildCalls != 1 {
		t.Fatalf("Build calls = %d, want 1", builder.buildCalls)
	}
	if builder.gotPeriod != nil {
		t.Errorf("period = %+v, want nil (builder defaults to today)", builder.gotPeriod)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["context"] != "■ 2025-06-01 (일요일)" {
		t.Errorf("context = %v, want builder output", resp["context"])
	}
	if resp["zoneId"] != "11B20601" {
		t.Errorf("zoneId = %v, want 11B20601", resp["zoneId"])
	}
}

func TestPostContext_ExplicitPeriod(t *testing.T) {
	weather := &fakeWeather{bundle: testBundle()}
	builder := &fakeBuilder{text: "ctx"}
	h := newTestHandler(weather, &fakeCalendar{}, builder, nil)

	body := `{"period":{"start":"2025-06-01","end":"2025-06-03"}}`
	req := httptest.NewRequest(http.MethodPost, "/context", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PostContext(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if builder.gotPeriod == nil {
		t.Fatal("period = nil, want parsed period")
	}
	if got := builder.gotPeriod.Start.Format("2006-01-02"); got != "2025-06-01" {
		t.Errorf("period start = %s, want 2025-06-01", got)
	}
	if got := builder.gotPeriod.End.Format("2006-01-02"); got != "2025-06-03" {
		t.Errorf("period end = %s, want 2025-06-03", got)
	}
}

func TestPostContext_RejectsOutOfRangeCoords(t *testing.T) {
	weather := &fakeWeather{bundle: testBundle()}
	builder := &fakeBuilder{}
	h := newTestHandler(weather, &fakeCalendar{}, builder, nil)

	req := httptest.NewRequest(http.MethodPost, "/context?lat=999&lon=999", nil)
	rec := httptest.NewRecorder()
	h.PostContext(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INVALID_COORDS") {
		t.Errorf("body = %s, want INVALID_COORDS error code", rec.Body.String())
	}
	if weather.calls != 0 || builder.buildCalls != 0 {
		t.Errorf("weather calls = %d, build calls = %d, want 0 on invalid coords", weather.calls, builder.buildCalls)
	}
}

func TestPostContext_RejectsInvalidPeriod(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed start", `{"period":{"start":"junk","end":"2025-06-03"}}`},
		{"inverted range", `{"period":{"start":"2025-06-03","end":"2025-06-01"}}`},
		{"too long", `{"period":{"start":"2025-06-01","end":"2025-12-01"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := &fakeBuilder{}
			h := newTestHandler(&fakeWeather{}, &fakeCalendar{}, builder, nil)

			req := httptest.NewRequest(http.MethodPost, "/context", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.PostContext(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "INVALID_PERIOD") {
				t.Errorf("body = %s, want INVALID_PERIOD error code", rec.Body.String())
			}
			if builder.buildCalls != 0 {
				t.Errorf("Build calls = %d, want 0 on invalid period", builder.buildCalls)
			}
		})
	}
}

func TestGetHealth_Healthy(t *testing.T) {
	degraded.Reset()
	t.Cleanup(degraded.Reset)

	h := newTestHandler(&fakeWeather{}, &fakeCalendar{}, &fakeBuilder{}, &HealthConfig{
		DegradedWindow:   60 * time.Second,
		DegradedErrorPct: 50,
		StartTime:        time.Now(),
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.GetHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("body = %s, want healthy status", rec.Body.String())
	}
}

func TestGetHealth_DegradedOnErrorRateBreach(t *testing.T) {
	degraded.Reset()
	t.Cleanup(degraded.Reset)
	for i := 0; i < 9; i++ {
		degraded.RecordError()
	}
	degraded.RecordSuccess()

	h := newTestHandler(&fakeWeather{}, &fakeCalendar{}, &fakeBuilder{}, &HealthConfig{
		DegradedWindow:   60 * time.Second,
		DegradedErrorPct: 50,
		StartTime:        time.Now(),
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.GetHealth(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
		t.Errorf("body = %s, want degraded status", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"weatherUpstream":"unhealthy"`) {
		t.Errorf("body = %s, want unhealthy upstream check", rec.Body.String())
	}
}

// The error-rate window must reflect upstream outcomes only. Allowed HTTP
// traffic passing the rate limiter must not dilute the denominator, or a
// total upstream outage under normal request volume would read as healthy.
func TestGetHealth_DegradedDespiteAllowedTraffic(t *testing.T) {
	degraded.Reset()
	t.Cleanup(degraded.Reset)

	for i := 0; i < 5; i++ {
		degraded.RecordError()
	}

	limiter := rate.NewLimiter(rate.Limit(1000), 1000)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	limited := RateLimitMiddleware(limiter)(next)
	for i := 0; i < 200; i++ {
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calendar", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}

	errors, total := degraded.ErrorRate(time.Minute)
	if errors != 5 || total != 5 {
		t.Fatalf("ErrorRate() = (%d, %d), want (5, 5) - allowed requests must not enter the window", errors, total)
	}

	h := newTestHandler(&fakeWeather{}, &fakeCalendar{}, &fakeBuilder{}, &HealthConfig{
		DegradedWindow:   60 * time.Second,
		DegradedErrorPct: 5,
		StartTime:        time.Now(),
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.GetHealth(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when upstream is fully failing", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
		t.Errorf("body = %s, want degraded status", rec.Body.String())
	}
}

func TestGetHealth_ShuttingDown(t *testing.T) {
	degraded.Reset()
	lifecycle.SetShuttingDown(true)
	t.Cleanup(func() {
		lifecycle.SetShuttingDown(false)
		degraded.Reset()
	})

	h := newTestHandler(&fakeWeather{}, &fakeCalendar{}, &fakeBuilder{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.GetHealth(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"shutting-down"`) {
		t.Errorf("body = %s, want shutting-down status", rec.Body.String())
	}
}

func TestGetHealth_ProbeChecks(t *testing.T) {
	degraded.Reset()
	t.Cleanup(degraded.Reset)

	h := newTestHandler(&fakeWeather{}, &fakeCalendar{}, &fakeBuilder{}, &HealthConfig{
		DegradedWindow:   60 * time.Second,
		DegradedErrorPct: 50,
		CachePing:        func() error { return nil },
		DBPing:           func(ctx context.Context) error { return errors.New("down") },
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.GetHealth(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `"cache":"healthy"`) {
		t.Errorf("body = %s, want healthy cache check", body)
	}
	if !strings.Contains(body, `"database":"unhealthy"`) {
		t.Errorf("body = %s, want unhealthy database check", body)
	}
}
