package kma

import (
	"strings"

	"github.com/minjaeyoo/wardrobe-weather-service/internal/models"
)

// forecastColumns is the documented width of the upstream text table. The
// final column is free text and may span any number of tokens.
const forecastColumns = 17

// ParseForecast tokenizes the upstream forecast table into rows. Blank lines
// and comment lines (leading '#') are skipped; lines shorter than the column
// schema are discarded.
func ParseForecast(body string) []models.ForecastRow {
	var rows []models.ForecastRow
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < forecastColumns {
			continue
		}
		rows = append(rows, models.ForecastRow{
			ZoneID:        fields[0],
			IssueTime:     fields[1],
			EffectiveTime: fields[2],
			ModeCode:      fields[3],
			NextEffective: fields[4],
			Sky:           fields[5],
			Precip:        fields[6],
			WindDir:       fields[7],
			WindSpeed:     fields[8],
			Temperature:   fields[9],
			TempMax:       fields[10],
			TempMin:       fields[11],
			Humidity:      fields[12],
			PrecipProb:    fields[13],
			WaveHeight:    fields[14],
			RainAmount:    fields[15],
			Summary:       trimQuotes(strings.Join(fields[16:], " ")),
		})
	}
	return rows
}

func trimQuotes(s string) string {
	return strings.Trim(s, `"'`)
}
