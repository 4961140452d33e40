package weather

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client fetches live weather from OpenWeatherMap and maps it to a sim
// Condition. Implements Source with caching and failure backoff so a flaky
// API never stalls a tick.
type Client struct {
	apiKey   string
	location string
	client   *http.Client

	mu          sync.Mutex
	cached      Condition
	haveCache   bool
	cachedAt    time.Time
	cacheTTL    time.Duration
	lastFailAt  time.Time
	failBackoff time.Duration
}

// NewClient creates a weather client. Returns nil if apiKey is empty, which
// callers treat as "no live weather".
func NewClient(apiKey, location string) *Client {
	if apiKey == "" {
		return nil
	}
	if location == "" {
		location = "Des Moines,US"
	}
	return &Client{
		apiKey:   apiKey,
		location: location,
		client:   &http.Client{Timeout: 10 * time.Second},
		cacheTTL: 10 * time.Minute,
	}
}

// Current returns the mapped condition, serving the cache when fresh and
// falling back to Clear if the API has never answered.
func (c *Client) Current() Condition {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.haveCache && time.Since(c.cachedAt) < c.cacheTTL {
		return c.cached
	}

	// Backoff on repeated failures (up to 30 minutes).
	if c.failBackoff > 0 && time.Since(c.lastFailAt) < c.failBackoff {
		if c.haveCache {
			return c.cached
		}
		return Clear
	}

	cond, err := c.fetch()
	if err != nil {
		c.lastFailAt = time.Now()
		if c.failBackoff == 0 {
			c.failBackoff = 1 * time.Minute
		} else if c.failBackoff < 30*time.Minute {
			c.failBackoff *= 2
		}
		slog.Debug("weather fetch failed", "error", err)
		if c.haveCache {
			return c.cached
		}
		return Clear
	}

	c.cached = cond
	c.haveCache = true
	c.cachedAt = time.Now()
	c.failBackoff = 0
	return cond
}

func (c *Client) fetch() (Condition, error) {
	apiURL := fmt.Sprintf("https://api.openweathermap.org/data/2.5/weather?q=%s&appid=%s&units=metric",
		url.QueryEscape(c.location), c.apiKey)

	resp, err := c.client.Get(apiURL)
	if err != nil {
		return Clear, fmt.Errorf("weather API call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Clear, fmt.Errorf("read weather response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Clear, fmt.Errorf("weather API error %d: %s", resp.StatusCode, string(body))
	}

	var owm struct {
		Weather []struct {
			Main string `json:"main"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}
	if err := json.Unmarshal(body, &owm); err != nil {
		return Clear, fmt.Errorf("parse weather: %w", err)
	}

	if len(owm.Weather) == 0 {
		return Clear, nil
	}

	main := strings.ToLower(owm.Weather[0].Main)
	cond := mapCondition(main, owm.Wind.Speed)
	slog.Debug("weather fetched", "main", main, "condition", cond.Name())
	return cond, nil
}

// mapCondition converts an OpenWeatherMap condition group to a sim state.
// OWM has no hail group; thunderstorms with high wind stand in for it.
func mapCondition(main string, windSpeed float64) Condition {
	switch main {
	case "thunderstorm":
		if windSpeed > 15 {
			return Hail
		}
		return Storm
	case "snow":
		return Snow
	case "rain", "drizzle":
		return Rain
	case "clouds", "mist", "fog", "haze":
		return Cloudy
	default:
		return Clear
	}
}
