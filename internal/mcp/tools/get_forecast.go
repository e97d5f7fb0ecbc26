package tools

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	mcp "github.com/mark3labs/mcp-go/mcp"
)

const (
	forecastMissingCoordsText = "Error: Both latitude and longitude are required"
	forecastPointsFailedText  = "Unable to fetch forecast data for this location."
	forecastDetailFailedText  = "Unable to fetch detailed forecast."
	forecastParseErrorPrefix  = "Error parsing forecast data: "
	// maxForecastPeriods bounds how many periods are rendered.
	maxForecastPeriods = 5
)

// ForecastTool implements the get_forecast MCP tool.
type ForecastTool struct {
	upstream Upstream
	logger   logSDK.Logger
}

// NewForecastTool constructs a ForecastTool.
func NewForecastTool(upstream Upstream, logger logSDK.Logger) (*ForecastTool, error) {
	if upstream == nil {
		return nil, errors.New("weather upstream is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	return &ForecastTool{upstream: upstream, logger: logger}, nil
}

// Definition returns the MCP metadata describing the tool.
func (t *ForecastTool) Definition() mcp.Tool {
	return mcp.NewTool(
		ForecastToolName,
		mcp.WithDescription("Get weather forecast for a location"),
		mcp.WithNumber(
			"latitude",
			mcp.Required(),
			mcp.Description("Latitude of the location"),
		),
		mcp.WithNumber(
			"longitude",
			mcp.Required(),
			mcp.Description("Longitude of the location"),
		),
	)
}

// Handle resolves the grid point for a coordinate, then renders its forecast periods.
func (t *ForecastTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := ParseForecastArgs(req.GetArguments())
	if !ok {
		return mcp.NewToolResultText(forecastMissingCoordsText), nil
	}

	text, err := t.forecast(ctx, args)
	if err != nil {
		var fe *fieldError
		if errors.As(err, &fe) {
			t.logger.Warn("malformed forecast payload", zap.String("field", fe.field))
			return mcp.NewToolResultText(forecastParseErrorPrefix + fe.Error()), nil
		}
		return nil, err
	}

	return mcp.NewToolResultText(text), nil
}

func (t *ForecastTool) forecast(ctx context.Context, args ForecastArgs) (string, error) {
	points, ok := t.upstream.Fetch(ctx, t.upstream.PointsURL(args.Latitude, args.Longitude))
	if !ok || len(points) == 0 {
		return forecastPointsFailedText, nil
	}

	pointProps, err := getObject(points, "properties")
	if err != nil {
		return "", err
	}
	forecastURL, err := getString(pointProps, "forecast")
	if err != nil {
		return "", err
	}

	forecast, ok := t.upstream.Fetch(ctx, forecastURL)
	if !ok || len(forecast) == 0 {
		return forecastDetailFailedText, nil
	}

	forecastProps, err := getObject(forecast, "properties")
	if err != nil {
		return "", err
	}
	periods, err := getList(forecastProps, "periods")
	if err != nil {
		return "", err
	}

	if len(periods) > maxForecastPeriods {
		periods = periods[:maxForecastPeriods]
	}

	blocks := make([]string, 0, len(periods))
	for _, raw := range periods {
		period, ok := raw.(map[string]any)
		if !ok {
			return "", &fieldError{field: "periods"}
		}
		block, err := formatPeriod(period)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, block)
	}

	return strings.Join(blocks, blockSeparator), nil
}

func formatPeriod(period map[string]any) (string, error) {
	fields := [...]string{"name", "temperature", "temperatureUnit", "windSpeed", "windDirection", "detailedForecast"}
	values := make(map[string]string, len(fields))
	for _, key := range fields {
		v, err := getField(period, key)
		if err != nil {
			return "", err
		}
		values[key] = render(v)
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(values["name"])
	sb.WriteString(":\nTemperature: ")
	sb.WriteString(values["temperature"])
	sb.WriteString("°")
	sb.WriteString(values["temperatureUnit"])
	sb.WriteString("\nWind: ")
	sb.WriteString(values["windSpeed"])
	sb.WriteString(" ")
	sb.WriteString(values["windDirection"])
	sb.WriteString("\nForecast: ")
	sb.WriteString(values["detailedForecast"])
	sb.WriteString("\n")
	return sb.String(), nil
}
