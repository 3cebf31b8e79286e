// Package geocode resolves city names through the Google Geocoding API.
package geocode

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-odds/internal/weather"
)

// Google looks cities up and caches the answers.
type Google struct {
	lookup func(geocoder.Address) (geocoder.Location, error)

	mu    sync.Mutex
	cache map[string]weather.Location
}

// NewGoogle sets the geocoder API key. The key is process-wide in the
// underlying client.
func NewGoogle(apiKey string) *Google {
	geocoder.ApiKey = apiKey
	return &Google{lookup: geocoder.Geocoding, cache: make(map[string]weather.Location)}
}

func (g *Google) Locate(ctx context.Context, city, country string) (weather.Location, error) {
	key := strings.ToLower(strings.TrimSpace(city) + "|" + strings.TrimSpace(country))

	g.mu.Lock()
	loc, ok := g.cache[key]
	g.mu.Unlock()
	if ok {
		return loc, nil
	}
	if err := ctx.Err(); err != nil {
		return weather.Location{}, err
	}

	res, err := g.lookup(geocoder.Address{City: city, Country: country})
	if err != nil {
		return weather.Location{}, fmt.Errorf("geocode %s, %s: %w", city, country, err)
	}
	loc = weather.Location{Lat: res.Latitude, Lon: res.Longitude}

	g.mu.Lock()
	g.cache[key] = loc
	g.mu.Unlock()
	return loc, nil
}
