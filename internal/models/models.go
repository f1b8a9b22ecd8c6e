package models

import "time"

// Region is one entry of the static forecast-region directory.
type Region struct {
	Area   string `json:"area"`
	Name   string `json:"name"`
	ZoneID string `json:"zoneId"`
}

// RegionMeta is the loaded region directory. Built once at startup and
// read-only afterwards.
type RegionMeta struct {
	DefaultZoneID string            `json:"defaultZoneId"`
	CityToZone    map[string]string `json:"cityToZone"`
	RegionToZone  map[string]string `json:"regionToZone"`
	Regions       []Region          `json:"regions"`
}

// Location is a best-effort per-request location record. Never persisted.
type Location struct {
	IP      string  `json:"ip,omitempty"`
	Country string  `json:"country"`
	Region  string  `json:"region"`
	City    string  `json:"city"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// ForecastRow is one parsed line of the upstream fixed-width forecast table.
// Temperature and PrecipProb keep the upstream string form; sentinel values
// ("-999" and friends) are not valid numbers and callers must coerce.
type ForecastRow struct {
	ZoneID        string `json:"zoneId"`
	IssueTime     string `json:"issueTime"`
	EffectiveTime string `json:"effectiveTime"`
	ModeCode      string `json:"modeCode"`
	NextEffective string `json:"nextEffective"`
	Sky           string `json:"sky"`
	Precip        string `json:"precip"`
	WindDir       string `json:"windDir"`
	WindSpeed     string `json:"windSpeed"`
	Temperature   string `json:"temperature"`
	TempMax       string `json:"tempMax"`
	TempMin       string `json:"tempMin"`
	Humidity      string `json:"humidity"`
	PrecipProb    string `json:"precipProb"`
	WaveHeight    string `json:"waveHeight"`
	RainAmount    string `json:"rainAmount"`
	Summary       string `json:"summary"`
}

// ForecastEntry is the cached forecast for one zone.
type ForecastEntry struct {
	ZoneID    string        `json:"zoneId"`
	Name      string        `json:"name"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Items     []ForecastRow `json:"items"`
}

// Advisory is the live weather-warning payload, passed through largely
// unparsed because only the raw text reaches the prompt.
type Advisory struct {
	Raw       string    `json:"raw"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// WeatherBundle joins everything the prompt builder needs for one request.
// Constructed fresh per request, never cached.
type WeatherBundle struct {
	Location   Location       `json:"location"`
	ZoneID     string         `json:"zoneId"`
	RegionName string         `json:"regionName"`
	Region     *Region        `json:"region,omitempty"`
	Forecast   *ForecastEntry `json:"forecast"`
	Advisory   *Advisory      `json:"advisory,omitempty"`
	RegionMeta *RegionMeta    `json:"-"`
}

// CalendarEvent is a single scheduled item on a day.
type CalendarEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// CalendarEventMap maps a YYYY-MM-DD date key to that day's ordered events.
type CalendarEventMap map[string][]CalendarEvent

// Period is an inclusive date range for context building.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
