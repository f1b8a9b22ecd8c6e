package kma

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/degraded"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/observability"
)

// ErrUpstreamFailure marks a non-OK response from the weather service.
var ErrUpstreamFailure = errors.New("weather upstream failure")

// Client talks to the upstream forecast and advisory endpoints. The clock is
// injectable so issue-stamp computation is testable.
type Client struct {
	forecastURL string
	advisoryURL string
	authKey     string
	client      *http.Client
	clock       clockwork.Clock
}

// NewClient creates a Client. A nil clock defaults to the real clock.
func NewClient(forecastURL, advisoryURL, authKey string, timeout time.Duration, clock clockwork.Clock) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		forecastURL: forecastURL,
		advisoryURL: advisoryURL,
		authKey:     authKey,
		client:      &http.Client{Timeout: timeout},
		clock:       clock,
	}
}

// FetchForecast retrieves and parses the forecast table for a zone. The
// request carries the latest scheduled issue stamp (tmfc) for the current
// time. Transport and HTTP errors are returned to the caller; the cache layer
// decides how to degrade.
func (c *Client) FetchForecast(ctx context.Context, zoneID string) ([]models.ForecastRow, error) {
	start := time.Now()

	params := url.Values{}
	params.Set("reg", zoneID)
	params.Set("tmfc", LatestIssueTime(c.clock.Now()))
	params.Set("disp", "0")
	params.Set("help", "0")
	params.Set("authKey", c.authKey)

	body, err := c.get(ctx, c.forecastURL, params)
	status := "success"
	if err != nil {
		status = "error"
		degraded.RecordError()
	} else {
		degraded.RecordSuccess()
	}
	observability.ForecastFetchTotal.WithLabelValues(status).Inc()
	observability.ForecastFetchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return ParseForecast(body), nil
}

// FetchAdvisory retrieves the current weather-advisory payload. Advisories are
// time-sensitive and never cached, so every call hits upstream.
func (c *Client) FetchAdvisory(ctx context.Context) (*models.Advisory, error) {
	params := url.Values{}
	params.Set("tmfc", "0")
	params.Set("disp", "0")
	params.Set("authKey", c.authKey)

	body, err := c.get(ctx, c.advisoryURL, params)
	status := "success"
	if err != nil {
		status = "error"
		degraded.RecordError()
	} else {
		degraded.RecordSuccess()
	}
	observability.AdvisoryFetchTotal.WithLabelValues(status).Inc()
	if err != nil {
		return nil, err
	}
	return &models.Advisory{Raw: body, FetchedAt: c.clock.Now()}, nil
}

func (c *Client) get(ctx context.Context, base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid upstream URL: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return decodeBody(resp.Body, resp.Header.Get("Content-Type"))
}

// decodeBody reads the response as UTF-8, or EUC-KR when the declared
// content type names the legacy Korean encoding.
func decodeBody(r io.Reader, contentType string) (string, error) {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "euc-kr") || strings.Contains(ct, "ks_c_5601") {
		r = transform.NewReader(r, korean.EUCKR.NewDecoder())
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	return string(data), nil
}
