package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/circuitbreaker"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/observability"
)

// DefaultLocation is returned for private, loopback, absent, or unresolvable
// addresses. The raw IP (when known) is preserved on the returned record.
var DefaultLocation = models.Location{
	Country: "South Korea",
	Region:  "서울특별시",
	City:    "서울",
	Lat:     37.5665,
	Lon:     126.9780,
}

// Resolver maps requests to best-effort locations via an external
// IP-geolocation JSON API. Every failure path is absorbed locally; the
// resolver never returns an error.
type Resolver struct {
	apiURL  string
	client  *http.Client
	logger  *zap.Logger
	breaker *circuitbreaker.CircuitBreaker
}

// geoResponse mirrors the geolocation API payload. Only status == "success"
// is trusted.
type geoResponse struct {
	Status     string  `json:"status"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Query      string  `json:"query"`
}

// NewResolver creates a Resolver against the given geolocation API base URL
// (e.g. "http://ip-api.com/json").
func NewResolver(apiURL string, timeout time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// SetCircuitBreaker wires a circuit breaker around geolocation calls. When the
// circuit is open, resolution degrades straight to the default location.
func (r *Resolver) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	r.breaker = cb
}

// FromRequest resolves the caller of an HTTP request. Explicit numeric lat/lon
// query parameters short-circuit to a synthetic selected location with no IP
// lookup; otherwise resolution is IP-based.
func (r *Resolver) FromRequest(req *http.Request) models.Location {
	q := req.URL.Query()
	if lat, lon, ok := parseCoords(q.Get("lat"), q.Get("lon")); ok {
		return SelectedLocation(lat, lon)
	}
	return r.Resolve(req.Context(), ClientIP(req))
}

// SelectedLocation builds the synthetic record for explicitly supplied
// coordinates.
func SelectedLocation(lat, lon float64) models.Location {
	return models.Location{
		Country: "South Korea",
		Region:  "선택한 위치",
		City:    "선택한 위치",
		Lat:     lat,
		Lon:     lon,
	}
}

// Resolve maps an IP address to a location. Private, loopback, and empty
// addresses return the fixed default immediately; public addresses are looked
// up upstream with every failure degrading to the default while preserving
// the queried IP.
func (r *Resolver) Resolve(ctx context.Context, ip string) models.Location {
	loc := DefaultLocation
	loc.IP = ip

	if ip == "" || IsPrivate(ip) {
		return loc
	}

	var resolved models.Location
	call := func() error {
		got, err := r.lookup(ctx, ip)
		if err != nil {
			return err
		}
		resolved = got
		return nil
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Call(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		observability.GeoIPCallsTotal.WithLabelValues("error").Inc()
		if r.logger != nil {
			r.logger.Warn("geolocation lookup failed, using default location", zap.String("ip", ip), zap.Error(err))
		}
		return loc
	}
	observability.GeoIPCallsTotal.WithLabelValues("success").Inc()
	return resolved
}

func (r *Resolver) lookup(ctx context.Context, ip string) (models.Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.apiURL+"/"+ip, nil)
	if err != nil {
		return models.Location{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return models.Location{}, fmt.Errorf("geolocation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Location{}, fmt.Errorf("geolocation HTTP %d", resp.StatusCode)
	}

	var body geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Location{}, fmt.Errorf("parse geolocation response: %w", err)
	}
	if body.Status != "success" {
		return models.Location{}, fmt.Errorf("geolocation status %q", body.Status)
	}

	return models.Location{
		IP:      body.Query,
		Country: body.Country,
		Region:  body.RegionName,
		City:    body.City,
		Lat:     body.Lat,
		Lon:     body.Lon,
	}, nil
}

// ClientIP extracts the client address: first X-Forwarded-For entry when
// present, else the transport address, with any IPv6-mapped-IPv4 prefix
// stripped.
func ClientIP(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return stripMapped(first)
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	return stripMapped(host)
}

func stripMapped(ip string) string {
	return strings.TrimPrefix(ip, "::ffff:")
}

// IsPrivate reports whether ip is loopback or in a private range
// (127.0.0.1, ::1, 10.*, 192.168.*, 172.16–31.*).
func IsPrivate(ip string) bool {
	parsed := net.ParseIP(stripMapped(ip))
	if parsed == nil {
		return false
	}
	return parsed.IsLoopback() || parsed.IsPrivate()
}

func parseCoords(latStr, lonStr string) (lat, lon float64, ok bool) {
	if latStr == "" || lonStr == "" {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
