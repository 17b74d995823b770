package weather

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveTempTrend(t *testing.T) {
	tests := []struct {
		name string
		max  []float64
		want string
	}{
		{"rising", []float64{8, 9, 10, 10.5}, TrendRising},
		{"falling", []float64{12, 10, 9, 9.9}, TrendFalling},
		{"exactly two up is not rising", []float64{8, 8, 8, 10}, TrendStableMild},
		{"stable frosty", []float64{3, 4, 4, 4}, TrendStableFrosty},
		{"stable mild", []float64{9, 9, 9, 9}, TrendStableMild},
		{"rising wins over frosty", []float64{1, 1, 1, 4}, TrendRising},
		{"short forecast uses last day", []float64{2, 6}, TrendRising},
		{"single day", []float64{4}, TrendStableFrosty},
		{"looks only three days ahead", []float64{10, 10, 10, 10, 20, 20, 20}, TrendStableMild},
		{"empty", nil, TrendStableMild},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTempTrend(tt.max))
		})
	}
}

func TestDeriveFrostRisk(t *testing.T) {
	tests := []struct {
		name string
		min  []float64
		want string
	}{
		{"high", []float64{4, 3, -2.5, 1}, FrostHigh},
		{"exactly minus two is medium", []float64{5, -2}, FrostMedium},
		{"medium", []float64{5, 1.9, 6}, FrostMedium},
		{"exactly two is low", []float64{2, 3}, FrostLow},
		{"low", []float64{6, 7, 8}, FrostLow},
		{"empty", nil, FrostLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveFrostRisk(tt.min))
		})
	}
}

func TestAddressName(t *testing.T) {
	assert.Equal(t, "Mainz", Address{City: "Mainz", Town: "x", State: "RLP"}.Name())
	assert.Equal(t, "Bernkastel-Kues", Address{Town: "Bernkastel-Kues", Village: "y"}.Name())
	assert.Equal(t, "Kallstadt", Address{Village: "Kallstadt", State: "RLP"}.Name())
	assert.Equal(t, "Rheinland-Pfalz", Address{State: "Rheinland-Pfalz"}.Name())
	assert.Equal(t, UnknownRegion, Address{}.Name())
}

func TestDerive(t *testing.T) {
	f := &Forecast{
		TempMax:       []float64{6, 7, 8, 9.5},
		TempMin:       []float64{-1, 0, 1, 2},
		Precipitation: []float64{0.4},
		WindSpeedMax:  []float64{12},
	}
	got, err := Derive("Pfalz", f)
	require.NoError(t, err)
	assert.Equal(t, &AutoWeather{
		Region:        "Pfalz",
		TempTrend:     TrendRising,
		FrostRisk:     FrostMedium,
		Precipitation: "0.4 mm",
		WindSpeed:     "12 km/h",
	}, got)

	_, err = Derive("Pfalz", &Forecast{TempMax: []float64{1}})
	assert.Error(t, err)
	_, err = Derive("Pfalz", nil)
	assert.Error(t, err)
}

func TestValidateCoordinates(t *testing.T) {
	assert.NoError(t, ValidateCoordinates(49.99, 8.27))
	assert.NoError(t, ValidateCoordinates(-90, 180))
	assert.ErrorIs(t, ValidateCoordinates(91, 0), ErrInvalidCoordinates)
	assert.ErrorIs(t, ValidateCoordinates(0, -180.5), ErrInvalidCoordinates)
	assert.ErrorIs(t, ValidateCoordinates(math.NaN(), 0), ErrInvalidCoordinates)
}

// fakeServices serves both the Nominatim and Open-Meteo endpoints.
func fakeServices(t *testing.T, forecast Forecast, address Address) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/reverse", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "49.5", r.URL.Query().Get("lat"))
		assert.Contains(t, r.Header.Get("User-Agent"), "vitisexpert")
		_ = json.NewEncoder(w).Encode(reverseResponse{Address: address})
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, dailyFields, q.Get("daily"))
		assert.Equal(t, "auto", q.Get("timezone"))
		assert.Equal(t, "8.25", q.Get("longitude"))
		_ = json.NewEncoder(w).Encode(forecastResponse{Daily: forecast})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientForPruning(t *testing.T) {
	srv := fakeServices(t, Forecast{
		TempMax:       []float64{10, 9, 8, 7},
		TempMin:       []float64{2, 1, -3, 0},
		Precipitation: []float64{3},
		WindSpeedMax:  []float64{18.7},
	}, Address{Town: "Deidesheim", State: "Rheinland-Pfalz"})

	c := NewClient(srv.URL, srv.URL+"/", 5*time.Second)
	got, err := c.ForPruning(context.Background(), 49.5, 8.25)
	require.NoError(t, err)
	assert.Equal(t, "Deidesheim", got.Region)
	assert.Equal(t, TrendFalling, got.TempTrend)
	assert.Equal(t, FrostHigh, got.FrostRisk)
	assert.Equal(t, "3 mm", got.Precipitation)
	assert.Equal(t, "18.7 km/h", got.WindSpeed)
}

func TestClientForPruning_UpstreamError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/reverse", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(reverseResponse{})
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":true,"reason":"bad"}`, http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second)
	_, err := c.ForPruning(context.Background(), 49.5, 8.25)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "400")
}

func TestClientForPruning_NoAddress(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/reverse", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(forecastResponse{Daily: Forecast{
			TempMax:       []float64{6, 6, 6, 6},
			TempMin:       []float64{3, 4},
			Precipitation: []float64{0},
			WindSpeedMax:  []float64{31.5},
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second)
	got, err := c.ForPruning(context.Background(), 54.5, 3.2)
	require.NoError(t, err)
	assert.Equal(t, UnknownRegion, got.Region)
	assert.Equal(t, TrendStableMild, got.TempTrend)
	assert.Equal(t, FrostLow, got.FrostRisk)
}

func TestClientForPruning_InvalidCoordinates(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "http://127.0.0.1:0", time.Second)
	_, err := c.ForPruning(context.Background(), 120, 0)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestClientForPruning_EmptyForecast(t *testing.T) {
	srv := fakeServices(t, Forecast{}, Address{City: "Mainz"})
	c := NewClient(srv.URL, srv.URL, 5*time.Second)
	_, err := c.ForPruning(context.Background(), 49.5, 8.25)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestRetryTransport(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"address":{"city":"Würzburg"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second)
	name, err := c.ReverseGeocode(context.Background(), 49.79, 9.93)
	require.NoError(t, err)
	assert.Equal(t, "Würzburg", name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryTransport_GivesUpWithoutRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, 5*time.Second)
	_, err := c.ReverseGeocode(context.Background(), 49.79, 9.93)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryAfter(t *testing.T) {
	d, ok := retryAfter("2")
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	_, ok = retryAfter("")
	assert.False(t, ok)
	_, ok = retryAfter("Wed, 21 Oct 2015 07:28:00 GMT")
	assert.False(t, ok)
	_, ok = retryAfter("3600")
	assert.False(t, ok)
}
