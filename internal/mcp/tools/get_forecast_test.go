package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Laisky/weather-mcp-gateway/library/log"
)

func mustForecastTool(t *testing.T, nws *fakeNWS) *ForecastTool {
	t.Helper()
	tool, err := NewForecastTool(nws.client(t), log.Logger)
	require.NoError(t, err)
	return tool
}

func pointsBody(nws *fakeNWS) string {
	return fmt.Sprintf(`{"properties":{"forecast":%q}}`, nws.server.URL+"/gridpoints/OKX/33,35/forecast")
}

func periodJSON(i int) string {
	return fmt.Sprintf(`{"name":"Period %d","temperature":%d,"temperatureUnit":"F",`+
		`"windSpeed":"%d mph","windDirection":"NW","detailedForecast":"Forecast %d."}`, i, 60+i, i, i)
}

func periodText(i int) string {
	return fmt.Sprintf("\nPeriod %d:\nTemperature: %d°F\nWind: %d mph NW\nForecast: Forecast %d.\n", i, 60+i, i, i)
}

func TestForecastDefinition(t *testing.T) {
	nws := newFakeNWS(t)
	def := mustForecastTool(t, nws).Definition()
	require.Equal(t, "get_forecast", def.Name)
	require.ElementsMatch(t, []string{"latitude", "longitude"}, def.InputSchema.Required)
}

func TestForecastMissingCoordinatesSkipsUpstream(t *testing.T) {
	nws := newFakeNWS(t)
	tool := mustForecastTool(t, nws)

	for _, args := range []map[string]any{
		{},
		{"latitude": 40.7},
		{"longitude": -74.0},
		{"latitude": nil, "longitude": -74.0},
		{"latitude": "north", "longitude": -74.0},
	} {
		result, err := tool.Handle(context.Background(), callRequest("get_forecast", args))
		require.NoError(t, err)
		require.Equal(t, "Error: Both latitude and longitude are required", resultText(t, result))
	}
	require.Zero(t, nws.totalHits())
}

func TestForecastRendersFirstFivePeriods(t *testing.T) {
	nws := newFakeNWS(t)
	nws.handle("/points/40.7128,-74.006", 0, pointsBody(nws))

	periods := make([]string, 0, 8)
	for i := 1; i <= 8; i++ {
		periods = append(periods, periodJSON(i))
	}
	nws.handle("/gridpoints/OKX/33,35/forecast", 0, `{"properties":{"periods":[`+strings.Join(periods, ",")+`]}}`)
	tool := mustForecastTool(t, nws)

	result, err := tool.Handle(context.Background(), callRequest("get_forecast", map[string]any{
		"latitude":  40.7128,
		"longitude": -74.006,
	}))
	require.NoError(t, err)

	expected := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		expected = append(expected, periodText(i))
	}
	require.Equal(t, strings.Join(expected, "\n---\n"), resultText(t, result))
	require.Equal(t, 2, nws.totalHits())
}

func TestForecastAcceptsNumericStrings(t *testing.T) {
	nws := newFakeNWS(t)
	nws.handle("/points/40,-74", 0, pointsBody(nws))
	nws.handle("/gridpoints/OKX/33,35/forecast", 0, `{"properties":{"periods":[`+periodJSON(1)+`]}}`)
	tool := mustForecastTool(t, nws)

	result, err := tool.Handle(context.Background(), callRequest("get_forecast", map[string]any{
		"latitude":  "40",
		"longitude": -74,
	}))
	require.NoError(t, err)
	require.Equal(t, periodText(1), resultText(t, result))
}

func TestForecastStageFailures(t *testing.T) {
	t.Run("points", func(t *testing.T) {
		nws := newFakeNWS(t)
		nws.handle("/points/1,2", http.StatusNotFound, `{}`)
		tool := mustForecastTool(t, nws)

		result, err := tool.Handle(context.Background(), callRequest("get_forecast", map[string]any{"latitude": 1.0, "longitude": 2.0}))
		require.NoError(t, err)
		require.Equal(t, "Unable to fetch forecast data for this location.", resultText(t, result))
		require.Equal(t, 1, nws.totalHits())
	})

	t.Run("detail", func(t *testing.T) {
		nws := newFakeNWS(t)
		nws.handle("/points/1,2", 0, pointsBody(nws))
		nws.handle("/gridpoints/OKX/33,35/forecast", http.StatusServiceUnavailable, "")
		tool := mustForecastTool(t, nws)

		result, err := tool.Handle(context.Background(), callRequest("get_forecast", map[string]any{"latitude": 1.0, "longitude": 2.0}))
		require.NoError(t, err)
		require.Equal(t, "Unable to fetch detailed forecast.", resultText(t, result))
		require.Equal(t, 2, nws.totalHits())
	})
}

func TestForecastMalformedPayloads(t *testing.T) {
	cases := []struct {
		name     string
		points   string
		forecast string
		want     string
	}{
		{name: "points without properties", points: `{"type":"Feature"}`, want: "'properties'"},
		{name: "points without forecast", points: `{"properties":{}}`, want: "'forecast'"},
		{name: "forecast without properties", forecast: `{"type":"Feature"}`, want: "'properties'"},
		{name: "forecast without periods", forecast: `{"properties":{}}`, want: "'periods'"},
		{
			name:     "period without temperature",
			forecast: `{"properties":{"periods":[{"name":"Tonight","temperatureUnit":"F","windSpeed":"5 mph","windDirection":"S","detailedForecast":"Clear."}]}}`,
			want:     "'temperature'",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nws := newFakeNWS(t)
			points := tc.points
			if points == "" {
				points = pointsBody(nws)
			}
			nws.handle("/points/1,2", 0, points)
			nws.handle("/gridpoints/OKX/33,35/forecast", 0, tc.forecast)
			tool := mustForecastTool(t, nws)

			result, err := tool.Handle(context.Background(), callRequest("get_forecast", map[string]any{"latitude": 1, "longitude": 2}))
			require.NoError(t, err)
			require.Equal(t, "Error parsing forecast data: "+tc.want, resultText(t, result))
		})
	}
}

func TestForecastEmptyStagePayloads(t *testing.T) {
	t.Run("points", func(t *testing.T) {
		nws := newFakeNWS(t)
		nws.handle("/points/1,2", 0, `{}`)
		tool := mustForecastTool(t, nws)

		result, err := tool.Handle(context.Background(), callRequest("get_forecast", map[string]any{"latitude": 1, "longitude": 2}))
		require.NoError(t, err)
		require.Equal(t, "Unable to fetch forecast data for this location.", resultText(t, result))
		require.Equal(t, 1, nws.totalHits())
	})

	t.Run("forecast", func(t *testing.T) {
		nws := newFakeNWS(t)
		nws.handle("/points/1,2", 0, pointsBody(nws))
		nws.handle("/gridpoints/OKX/33,35/forecast", 0, `{}`)
		tool := mustForecastTool(t, nws)

		result, err := tool.Handle(context.Background(), callRequest("get_forecast", map[string]any{"latitude": 1, "longitude": 2}))
		require.NoError(t, err)
		require.Equal(t, "Unable to fetch detailed forecast.", resultText(t, result))
		require.Equal(t, 2, nws.totalHits())
	})
}

func TestForecastEmptyPeriods(t *testing.T) {
	nws := newFakeNWS(t)
	nws.handle("/points/1,2", 0, pointsBody(nws))
	nws.handle("/gridpoints/OKX/33,35/forecast", 0, `{"properties":{"periods":[]}}`)
	tool := mustForecastTool(t, nws)

	result, err := tool.Handle(context.Background(), callRequest("get_forecast", map[string]any{"latitude": 1, "longitude": 2}))
	require.NoError(t, err)
	require.Equal(t, "", resultText(t, result))
}
