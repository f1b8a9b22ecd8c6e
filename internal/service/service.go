package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/cache"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/observability"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/region"
)

// AdvisoryFetcher is implemented by the upstream client. Advisories are
// time-sensitive and always fetched live, never cached.
type AdvisoryFetcher interface {
	FetchAdvisory(ctx context.Context) (*models.Advisory, error)
}

// LocationResolver is implemented by the geoip resolver.
type LocationResolver interface {
	FromRequest(req *http.Request) models.Location
}

// WeatherService composes the region directory, forecast cache, advisory
// fetch, and location resolution into per-request weather bundles. All
// shared state (directory, cache) is injected at construction; nothing is
// package-level.
type WeatherService struct {
	directory  *region.Directory
	forecasts  *cache.ForecastCache
	advisories AdvisoryFetcher
	resolver   LocationResolver
	logger     *zap.Logger
}

// NewWeatherService creates a WeatherService with the provided dependencies.
func NewWeatherService(directory *region.Directory, forecasts *cache.ForecastCache, advisories AdvisoryFetcher, resolver LocationResolver, logger *zap.Logger) *WeatherService {
	return &WeatherService{
		directory:  directory,
		forecasts:  forecasts,
		advisories: advisories,
		resolver:   resolver,
		logger:     logger,
	}
}

// WeatherForRequest resolves the caller's location (explicit coordinates or
// IP-based) and returns the weather bundle for it.
func (s *WeatherService) WeatherForRequest(req *http.Request) models.WeatherBundle {
	loc := s.resolver.FromRequest(req)
	return s.WeatherForLocation(req.Context(), loc)
}

// WeatherForLocation builds the weather bundle for a location: zone
// resolution via the directory, then the cached forecast and a live advisory
// fetched concurrently. Both legs are fail-soft; the bundle always comes back
// with at least the location and zone fields populated.
func (s *WeatherService) WeatherForLocation(ctx context.Context, loc models.Location) models.WeatherBundle {
	start := time.Now()
	zoneID := s.directory.ResolveZoneID(loc)

	bundle := models.WeatherBundle{
		Location:   loc,
		ZoneID:     zoneID,
		RegionName: s.directory.ZoneName(zoneID),
		Region:     s.directory.FindByZoneID(zoneID),
		RegionMeta: s.directory.Meta(),
	}

	var forecast models.ForecastEntry
	var forecastErr error
	var advisory *models.Advisory
	var advisoryErr error

	done := make(chan struct{}, 2)
	go func() {
		forecast, forecastErr = s.forecasts.GetForecast(ctx, zoneID)
		done <- struct{}{}
	}()
	go func() {
		advisory, advisoryErr = s.advisories.FetchAdvisory(ctx)
		done <- struct{}{}
	}()
	<-done
	<-done

	if forecastErr != nil {
		if s.logger != nil {
			s.logger.Warn("forecast unavailable", zap.String("zone", zoneID), zap.Error(forecastErr))
		}
		forecast = models.ForecastEntry{ZoneID: zoneID, Name: bundle.RegionName}
	}
	bundle.Forecast = &forecast

	if advisoryErr != nil {
		if s.logger != nil {
			s.logger.Warn("advisory unavailable", zap.Error(advisoryErr))
		}
	} else {
		bundle.Advisory = advisory
	}

	observability.WeatherBundlesTotal.Inc()
	observability.WeatherBundleDuration.Observe(time.Since(start).Seconds())
	if s.logger != nil {
		s.logger.Debug("weather bundle built",
			zap.String("zone", zoneID),
			zap.String("city", loc.City),
			zap.Int("forecast_rows", len(forecast.Items)),
			zap.Bool("advisory", bundle.Advisory != nil),
			zap.Duration("duration", time.Since(start)))
	}
	return bundle
}
