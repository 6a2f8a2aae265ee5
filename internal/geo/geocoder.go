// Package geo resolves street addresses to coordinates and finds nearby
// cities for the property map.
package geo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// USCenter is returned when an address cannot be located at all.
var USCenter = Coordinates{Lat: 39.8283, Lon: -98.5795}

// Coordinates is a geocoding answer. Success is false when the address fell
// through to the centre of the US.
type Coordinates struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Success bool    `json:"success"`
}

// MetricsInterface defines metrics methods needed by the geocoder
type MetricsInterface interface {
	GeocodeRequestsInc()
	GeocodeFallbacksInc()
}

type knownCity struct {
	name string
	lat  float64
	lon  float64
}

// fallbackCities is matched in order against the lower-cased address.
var fallbackCities = []knownCity{
	{"new york", 40.7128, -74.0060},
	{"los angeles", 34.0522, -118.2437},
	{"chicago", 41.8781, -87.6298},
	{"houston", 29.7604, -95.3698},
	{"phoenix", 33.4484, -112.0740},
	{"philadelphia", 39.9526, -75.1652},
	{"san antonio", 29.4241, -98.4936},
	{"san diego", 32.7157, -117.1611},
	{"dallas", 32.7767, -96.7970},
	{"san jose", 37.3382, -121.8863},
	{"seattle", 47.6062, -122.3321},
	{"denver", 39.7392, -104.9903},
	{"boston", 42.3601, -71.0589},
	{"miami", 25.7617, -80.1918},
	{"atlanta", 33.7490, -84.3880},
	{"detroit", 42.3314, -83.0458},
	{"las vegas", 36.1699, -115.1398},
	{"memphis", 35.1495, -90.0490},
	{"baltimore", 39.2904, -76.6122},
	{"milwaukee", 43.0389, -87.9065},
	{"albuquerque", 35.0844, -106.6504},
	{"tucson", 32.2226, -110.9747},
	{"fresno", 36.7378, -119.7871},
	{"sacramento", 38.5816, -121.4944},
	{"mesa", 33.4152, -111.8315},
	{"kansas city", 39.0997, -94.5786},
	{"virginia beach", 36.8529, -75.9780},
	{"omaha", 41.2565, -95.9345},
	{"colorado springs", 38.8339, -104.8214},
	{"raleigh", 35.7796, -78.6382},
}

// nominatimResult is one element of a Nominatim search response. Coordinates
// are returned as strings.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocoder queries a Nominatim-compatible search endpoint.
type Geocoder struct {
	base    string
	rest    *resty.Client
	metrics MetricsInterface
}

// NewGeocoder creates a geocoder for base (e.g. https://nominatim.openstreetmap.org).
// metrics may be nil.
func NewGeocoder(base, userAgent string, timeout time.Duration, metrics MetricsInterface) *Geocoder {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second) // default fallback
	}
	r.SetHeader("User-Agent", userAgent)
	r.SetHeader("Accept", "application/json")

	return &Geocoder{base: strings.TrimRight(base, "/"), rest: r, metrics: metrics}
}

// Geocode resolves address. It never fails: lookup errors and empty results
// fall back to the built-in city table and then to USCenter.
func (g *Geocoder) Geocode(ctx context.Context, address string) Coordinates {
	if g.metrics != nil {
		g.metrics.GeocodeRequestsInc()
	}

	coords, err := g.search(ctx, address)
	if err == nil {
		return coords
	}

	log.Warn().Err(err).Str("address", address).Msg("Geocoding failed, using city fallback")
	if g.metrics != nil {
		g.metrics.GeocodeFallbacksInc()
	}
	return FallbackGeocode(address)
}

func (g *Geocoder) search(ctx context.Context, address string) (Coordinates, error) {
	var results []nominatimResult
	resp, err := g.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format":       "json",
			"q":            address,
			"limit":        "1",
			"countrycodes": "us",
		}).
		SetResult(&results).
		Get(g.base + "/search")
	if err != nil {
		return Coordinates{}, err
	}
	if resp.IsError() {
		return Coordinates{}, fmt.Errorf("geocoding API error: %d", resp.StatusCode())
	}
	if len(results) == 0 {
		return Coordinates{}, fmt.Errorf("no results for address")
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid longitude %q: %w", results[0].Lon, err)
	}

	return Coordinates{Lat: lat, Lon: lon, Success: true}, nil
}

// FallbackGeocode matches address against the built-in city table: first
// anywhere in the address, then in the second comma-separated part.
func FallbackGeocode(address string) Coordinates {
	normalized := strings.ToLower(address)

	for _, c := range fallbackCities {
		if strings.Contains(normalized, c.name) {
			return Coordinates{Lat: c.lat, Lon: c.lon, Success: true}
		}
	}

	parts := strings.Split(normalized, ",")
	if len(parts) > 1 {
		candidate := strings.TrimSpace(parts[1])
		for _, c := range fallbackCities {
			if strings.Contains(candidate, c.name) {
				return Coordinates{Lat: c.lat, Lon: c.lon, Success: true}
			}
		}
	}

	return USCenter
}
