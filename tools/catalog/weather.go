package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultWeatherURL is the Open-Meteo forecast endpoint.
const DefaultWeatherURL = "https://api.open-meteo.com/v1/forecast"

// CurrentWeather is Open-Meteo's current_weather block.
type CurrentWeather struct {
	Temperature   float64 `json:"temperature"`
	WindSpeed     float64 `json:"windspeed"`
	WindDirection float64 `json:"winddirection"`
	WeatherCode   int     `json:"weathercode"`
	IsDay         int     `json:"is_day"`
	Time          string  `json:"time"`
}

// WeatherClient fetches current weather for a coordinate.
type WeatherClient struct {
	baseURL string
	client  *http.Client
}

// NewWeatherClient creates a client. Empty baseURL uses DefaultWeatherURL.
func NewWeatherClient(baseURL string, timeout time.Duration) *WeatherClient {
	if baseURL == "" {
		baseURL = DefaultWeatherURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WeatherClient{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// Current returns the current weather at pos.
func (w *WeatherClient) Current(ctx context.Context, pos Position) (*CurrentWeather, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(pos.Lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(pos.Lng, 'f', -1, 64))
	q.Set("current_weather", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather request: status %d", resp.StatusCode)
	}

	var body struct {
		CurrentWeather *CurrentWeather `json:"current_weather"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode weather: %w", err)
	}
	if body.CurrentWeather == nil {
		return nil, fmt.Errorf("weather response has no current_weather")
	}
	return body.CurrentWeather, nil
}
