package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/kma"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
)

// ErrPeriodStartInvalid is returned when the start date does not parse as YYYY-MM-DD.
var ErrPeriodStartInvalid = errors.New("period start is not a valid date")

// ErrPeriodEndInvalid is returned when the end date does not parse as YYYY-MM-DD.
var ErrPeriodEndInvalid = errors.New("period end is not a valid date")

// ErrPeriodInverted is returned when the end date precedes the start date.
var ErrPeriodInverted = errors.New("period end precedes start")

// ErrPeriodTooLong is returned when the range exceeds the allowed day count.
var ErrPeriodTooLong = errors.New("period too long")

// ErrCoordsOutOfRange is returned for coordinates outside WGS84 bounds.
var ErrCoordsOutOfRange = errors.New("coordinates out of range")

const dateLayout = "2006-01-02"

// ValidatePeriod parses an optional start/end date pair. Both empty returns
// (nil, nil): the context builder then defaults to today. A missing end
// collapses to a single-day range. maxDays bounds the inclusive range length
// (0 = unbounded).
func ValidatePeriod(start, end string, maxDays int) (*models.Period, error) {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" {
		return nil, ErrPeriodStartInvalid
	}

	s, err := time.ParseInLocation(dateLayout, start, kma.KST)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrPeriodStartInvalid, start)
	}
	e := s
	if end != "" {
		e, err = time.ParseInLocation(dateLayout, end, kma.KST)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrPeriodEndInvalid, end)
		}
	}
	if e.Before(s) {
		return nil, ErrPeriodInverted
	}
	if maxDays > 0 {
		days := int(e.Sub(s).Hours()/24) + 1
		if days > maxDays {
			return nil, fmt.Errorf("%w: %d days (max %d)", ErrPeriodTooLong, days, maxDays)
		}
	}
	return &models.Period{Start: s, End: e}, nil
}

// ValidateCoords parses optional lat/lon strings. Both empty returns
// ok=false with no error (IP-based resolution applies). Parse failures also
// return ok=false without error, matching the resolver's lenient
// short-circuit; only syntactically valid but out-of-bounds coordinates are
// rejected.
func ValidateCoords(latStr, lonStr string) (lat, lon float64, ok bool, err error) {
	latStr = strings.TrimSpace(latStr)
	lonStr = strings.TrimSpace(lonStr)
	if latStr == "" || lonStr == "" {
		return 0, 0, false, nil
	}
	lat, errLat := strconv.ParseFloat(latStr, 64)
	lon, errLon := strconv.ParseFloat(lonStr, 64)
	if errLat != nil || errLon != nil {
		return 0, 0, false, nil
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false, fmt.Errorf("%w: %g, %g", ErrCoordsOutOfRange, lat, lon)
	}
	return lat, lon, true, nil
}
