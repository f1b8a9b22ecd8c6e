package prompt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/kma"
	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
)

// noEventsText is the fixed sentinel rendered for days without calendar
// entries. The downstream model keys off this exact string.
const noEventsText = "일정 없음"

// weekdayNames maps time.Weekday to Korean day names.
var weekdayNames = [...]string{"일요일", "월요일", "화요일", "수요일", "목요일", "금요일", "토요일"}

// EventSource supplies the calendar snapshot. Implemented by the calendar
// store; reads are fail-soft and return an empty map on storage trouble.
type EventSource interface {
	Events(ctx context.Context) models.CalendarEventMap
}

// Builder renders the natural-language context block fed to the outfit
// recommendation model: one block per day in the period, merging forecast
// rows with calendar events.
type Builder struct {
	events EventSource
	clock  clockwork.Clock
}

// NewBuilder creates a Builder. A nil clock defaults to the real clock.
func NewBuilder(events EventSource, clock clockwork.Clock) *Builder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Builder{events: events, clock: clock}
}

// Build renders the context string for the bundle over the given period. A
// nil period defaults to today in KST (a fixed +9h offset; Korea has no DST).
// The calendar is snapshotted once and reused for every day in the range.
// Build always returns a usable string: empty calendars, empty forecasts,
// and single-day ranges are all normal inputs.
func (b *Builder) Build(ctx context.Context, bundle models.WeatherBundle, period *models.Period) string {
	start, end := b.resolvePeriod(period)
	events := b.events.Events(ctx)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[위치] %s", locationLine(bundle))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "[기간] %s ~ %s\n", start.Format("2006-01-02"), end.Format("2006-01-02"))
	if bundle.Advisory != nil && strings.TrimSpace(bundle.Advisory.Raw) != "" {
		fmt.Fprintf(&sb, "[기상특보] %s\n", strings.TrimSpace(bundle.Advisory.Raw))
	}

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "■ %s (%s)\n", day.Format("2006-01-02"), weekdayNames[day.Weekday()])
		fmt.Fprintf(&sb, "  날씨: %s\n", b.weatherLine(bundle, day))
		fmt.Fprintf(&sb, "  일정: %s\n", eventLine(events, day))
	}
	return sb.String()
}

// resolvePeriod normalizes the requested period to whole KST days. A missing
// period means today; an inverted range is clamped to a single day.
func (b *Builder) resolvePeriod(period *models.Period) (start, end time.Time) {
	if period == nil || period.Start.IsZero() {
		today := dateOnly(b.clock.Now())
		return today, today
	}
	start = dateOnly(period.Start)
	end = dateOnly(period.End)
	if period.End.IsZero() || end.Before(start) {
		end = start
	}
	return start, end
}

func dateOnly(t time.Time) time.Time {
	local := t.In(kma.KST)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, kma.KST)
}

// weatherLine summarizes a day's forecast rows: first matched row's sky text
// plus the min/max over the numeric temperatures of all matched rows. When
// the day is past the forecast horizon, a seasonal average keyed by calendar
// month stands in.
func (b *Builder) weatherLine(bundle models.WeatherBundle, day time.Time) string {
	var items []models.ForecastRow
	if bundle.Forecast != nil {
		items = bundle.Forecast.Items
	}

	prefix := day.Format("20060102")
	var matched []models.ForecastRow
	for _, row := range items {
		if strings.HasPrefix(row.EffectiveTime, prefix) {
			matched = append(matched, row)
		}
	}
	if len(matched) == 0 {
		return seasonalDescription(day.Month())
	}

	summary := strings.TrimSpace(matched[0].Summary)
	if summary == "" {
		summary = "예보 없음"
	}

	lo, hi, ok := temperatureRange(matched)
	if !ok {
		return summary
	}
	return fmt.Sprintf("%s, 기온 %s℃ ~ %s℃", summary, formatTemp(lo), formatTemp(hi))
}

// temperatureRange computes min/max over the numeric temperature fields.
// Non-numeric tokens and upstream sentinel values (-900 and below) are
// excluded from the range.
func temperatureRange(rows []models.ForecastRow) (lo, hi float64, ok bool) {
	for _, row := range rows {
		v, err := strconv.ParseFloat(strings.TrimSpace(row.Temperature), 64)
		if err != nil || v <= -900 {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, ok
}

func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func eventLine(events models.CalendarEventMap, day time.Time) string {
	dayEvents := events[day.Format("2006-01-02")]
	if len(dayEvents) == 0 {
		return noEventsText
	}
	titles := make([]string, 0, len(dayEvents))
	for _, ev := range dayEvents {
		titles = append(titles, ev.Title)
	}
	return strings.Join(titles, ", ")
}

func locationLine(bundle models.WeatherBundle) string {
	parts := make([]string, 0, 3)
	if bundle.Location.Region != "" {
		parts = append(parts, bundle.Location.Region)
	}
	if bundle.Location.City != "" && bundle.Location.City != bundle.Location.Region {
		parts = append(parts, bundle.Location.City)
	}
	line := strings.Join(parts, " ")
	if line == "" {
		line = bundle.RegionName
	} else if bundle.RegionName != "" && bundle.RegionName != bundle.Location.City {
		line = fmt.Sprintf("%s (%s 예보구역)", line, bundle.RegionName)
	}
	return line
}

// seasonalDescription is the last-resort weather text for days beyond the
// forecast horizon. Northern-hemisphere Korean seasons.
func seasonalDescription(month time.Month) string {
	switch month {
	case time.March, time.April, time.May:
		return "평년 기온 8℃ ~ 18℃ 안팎의 포근한 봄 날씨 예상"
	case time.June, time.July, time.August:
		return "평년 기온 22℃ ~ 30℃ 안팎의 덥고 습한 여름 날씨 예상"
	case time.September, time.October, time.November:
		return "평년 기온 10℃ ~ 20℃ 안팎의 선선한 가을 날씨 예상"
	default:
		return "평년 기온 -5℃ ~ 5℃ 안팎의 추운 겨울 날씨 예상"
	}
}
