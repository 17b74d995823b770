// Package weather derives the pruning assistant's weather fields from a
// reverse-geocoded place name (Nominatim) and a daily forecast (Open-Meteo).
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drpaneas/vitisexpert/internal/textutil"
)

const (
	TrendRising       = "Ansteigend"
	TrendFalling      = "Sinkend"
	TrendStableFrosty = "Stabil (frostig)"
	TrendStableMild   = "Stabil (mild)"

	FrostHigh   = "Hoch (Spätfrostgefahr)"
	FrostMedium = "Mittel"
	FrostLow    = "Gering"

	// UnknownRegion is used when the geocoder knows no settlement or state.
	UnknownRegion = "Unbekannt"

	dailyFields = "temperature_2m_max,temperature_2m_min,precipitation_sum,wind_speed_10m_max"
	userAgent   = "vitisexpert/1.0 (+https://github.com/drpaneas/vitisexpert)"
)

var (
	// ErrFetch is the user-facing error for any weather lookup failure.
	ErrFetch = errors.New("Fehler beim Abrufen der Wetterdaten")
	// ErrInvalidCoordinates reports a latitude or longitude out of range.
	ErrInvalidCoordinates = errors.New("ungültige Koordinaten")
)

// AutoWeather holds the values that pre-fill the pruning form.
type AutoWeather struct {
	Region        string `json:"region"`
	TempTrend     string `json:"tempTrend"`
	FrostRisk     string `json:"frostRisk"`
	Precipitation string `json:"precipitation"`
	WindSpeed     string `json:"windSpeed"`
}

// Forecast is the daily section of an Open-Meteo forecast response.
type Forecast struct {
	Time          []string  `json:"time"`
	TempMax       []float64 `json:"temperature_2m_max"`
	TempMin       []float64 `json:"temperature_2m_min"`
	Precipitation []float64 `json:"precipitation_sum"`
	WindSpeedMax  []float64 `json:"wind_speed_10m_max"`
}

type forecastResponse struct {
	Daily Forecast `json:"daily"`
}

// Address is the subset of a Nominatim address used for naming a place.
type Address struct {
	City    string `json:"city"`
	Town    string `json:"town"`
	Village string `json:"village"`
	State   string `json:"state"`
}

// Name returns the most specific available place name.
func (a Address) Name() string {
	for _, s := range []string{a.City, a.Town, a.Village, a.State} {
		if s != "" {
			return s
		}
	}
	return UnknownRegion
}

type reverseResponse struct {
	Address Address `json:"address"`
	Error   string  `json:"error,omitempty"`
}

// Client talks to Nominatim and Open-Meteo.
type Client struct {
	http         *http.Client
	nominatimURL string
	openMeteoURL string
}

// NewClient returns a Client for the given service base URLs.
func NewClient(nominatimURL, openMeteoURL string, timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Transport: &retryTransport{base: http.DefaultTransport, userAgent: userAgent},
			Timeout:   timeout,
		},
		nominatimURL: strings.TrimRight(nominatimURL, "/"),
		openMeteoURL: strings.TrimRight(openMeteoURL, "/"),
	}
}

// ValidateCoordinates checks that lat and lon are within WGS84 bounds.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinates, lat, lon)
	}
	return nil
}

// ForPruning looks up the place name and the forecast concurrently and maps
// them onto the pruning form's fields.
func (c *Client) ForPruning(ctx context.Context, lat, lon float64) (*AutoWeather, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	var (
		region   string
		forecast *Forecast
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		region, err = c.ReverseGeocode(gCtx, lat, lon)
		return err
	})
	g.Go(func() error {
		var err error
		forecast, err = c.Forecast(gCtx, lat, lon)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Warn("weather lookup failed", "lat", lat, "lon", lon, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	aw, err := Derive(region, forecast)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	slog.Info("derived pruning weather",
		"region", aw.Region, "trend", aw.TempTrend, "frost", aw.FrostRisk)
	return aw, nil
}

// ReverseGeocode returns a human-readable place name for the coordinate.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("lat", formatNumber(lat))
	q.Set("lon", formatNumber(lon))
	q.Set("format", "json")

	var out reverseResponse
	if err := c.getJSON(ctx, c.nominatimURL+"/reverse?"+q.Encode(), &out); err != nil {
		return "", fmt.Errorf("reverse geocoding: %w", err)
	}
	// Coordinates without an address (open sea) still get a forecast.
	if out.Error != "" {
		slog.Debug("no place for coordinate", "lat", lat, "lon", lon, "reason", out.Error)
	}
	return out.Address.Name(), nil
}

// Forecast fetches the daily forecast for the coordinate.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	q := url.Values{}
	q.Set("latitude", formatNumber(lat))
	q.Set("longitude", formatNumber(lon))
	q.Set("daily", dailyFields)
	q.Set("timezone", "auto")

	var out forecastResponse
	if err := c.getJSON(ctx, c.openMeteoURL+"/v1/forecast?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("fetching forecast: %w", err)
	}
	return &out.Daily, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	slog.Debug("weather request", "url", rawURL)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned status %d: %s", req.URL.Host, resp.StatusCode, textutil.Snippet(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Host, err)
	}
	return nil
}

// Derive maps a forecast onto the pruning form's enumerations.
func Derive(region string, f *Forecast) (*AutoWeather, error) {
	if f == nil || len(f.TempMax) == 0 || len(f.TempMin) == 0 ||
		len(f.Precipitation) == 0 || len(f.WindSpeedMax) == 0 {
		return nil, fmt.Errorf("forecast contains no daily values")
	}
	return &AutoWeather{
		Region:        region,
		TempTrend:     DeriveTempTrend(f.TempMax),
		FrostRisk:     DeriveFrostRisk(f.TempMin),
		Precipitation: formatNumber(f.Precipitation[0]) + " mm",
		WindSpeed:     formatNumber(f.WindSpeedMax[0]) + " km/h",
	}, nil
}

// DeriveTempTrend compares today's maximum with the one three days ahead.
// Rules are applied in order and the first match wins. With fewer than four
// days the last available day is used as the outlook.
func DeriveTempTrend(maxTemps []float64) string {
	if len(maxTemps) == 0 {
		return TrendStableMild
	}
	current := maxTemps[0]
	future := maxTemps[min(3, len(maxTemps)-1)]

	switch {
	case future > current+2:
		return TrendRising
	case future < current-2:
		return TrendFalling
	case current < 5:
		return TrendStableFrosty
	default:
		return TrendStableMild
	}
}

// DeriveFrostRisk classifies the lowest minimum temperature of the forecast.
func DeriveFrostRisk(minTemps []float64) string {
	if len(minTemps) == 0 {
		return FrostLow
	}
	lowest := slices.Min(minTemps)
	switch {
	case lowest < -2:
		return FrostHigh
	case lowest < 2:
		return FrostMedium
	default:
		return FrostLow
	}
}

// formatNumber renders f with the shortest representation that round-trips,
// so 3 prints as "3" and 0.25 as "0.25".
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
