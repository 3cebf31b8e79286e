package geocode

import (
	"context"
	"errors"
	"testing"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-odds/internal/weather"
)

func TestGoogle_LocateCaches(t *testing.T) {
	calls := 0
	g := &Google{
		lookup: func(a geocoder.Address) (geocoder.Location, error) {
			calls++
			assert.Equal(t, "Paris", a.City)
			return geocoder.Location{Latitude: 48.8566, Longitude: 2.3522}, nil
		},
		cache: map[string]weather.Location{},
	}

	loc, err := g.Locate(context.Background(), "Paris", "FR")
	require.NoError(t, err)
	assert.Equal(t, 48.8566, loc.Lat)

	_, err = g.Locate(context.Background(), " paris ", "fr")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestGoogle_LocateError(t *testing.T) {
	g := &Google{
		lookup: func(geocoder.Address) (geocoder.Location, error) {
			return geocoder.Location{}, errors.New("ZERO_RESULTS")
		},
		cache: map[string]weather.Location{},
	}
	_, err := g.Locate(context.Background(), "Atlantis", "")
	assert.ErrorContains(t, err, "ZERO_RESULTS")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Locate(ctx, "Paris", "FR")
	assert.ErrorIs(t, err, context.Canceled)
}
