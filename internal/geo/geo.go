// Package geo holds the distance function and the city geocoder used for
// proximity search.
package geo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"
)

// EarthRadiusKm is the mean Earth radius.
const EarthRadiusKm = 6371.0088

var (
	// ErrCityNotFound is returned when a locator has no match for the city.
	ErrCityNotFound = errors.New("city not found")
	// ErrNoGeocoder is returned when no usable geocoder is configured.
	ErrNoGeocoder = errors.New("no geocoder configured")
	// ErrGeocodeFailed wraps errors from the geocoding backend.
	ErrGeocodeFailed = errors.New("geocoding failed")
)

// DistanceFunc returns the distance in kilometres between two points.
type DistanceFunc func(lat1, lon1, lat2, lon2 float64) float64

// Haversine is the great-circle distance in kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Point is a WGS84 position.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Locator resolves a city name to coordinates.
type Locator interface {
	Locate(ctx context.Context, city, country string) (Point, error)
}

// GoogleLocator geocodes through the Google Geocoding API.
type GoogleLocator struct {
	apiKey string
}

// NewGoogleLocator returns a locator using apiKey.
func NewGoogleLocator(apiKey string) *GoogleLocator {
	return &GoogleLocator{apiKey: apiKey}
}

// The geocoder library keeps its key in a package variable.
var geocoderMu sync.Mutex

// Locate looks up city, optionally narrowed by country. The geocoder does
// not take a context; ctx is only checked before the call.
func (g *GoogleLocator) Locate(ctx context.Context, city, country string) (Point, error) {
	if g == nil || g.apiKey == "" {
		return Point{}, ErrNoGeocoder
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return Point{}, fmt.Errorf("%w: empty name", ErrCityNotFound)
	}
	if err := ctx.Err(); err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrGeocodeFailed, err)
	}

	geocoderMu.Lock()
	geocoder.ApiKey = g.apiKey
	loc, err := geocoder.Geocoding(geocoder.Address{City: city, Country: country})
	geocoderMu.Unlock()

	if err != nil {
		log.Printf("WARN: geocoding %q failed: %v", city, err)
		if strings.Contains(strings.ToLower(err.Error()), "zero_results") {
			return Point{}, fmt.Errorf("%w: %s", ErrCityNotFound, city)
		}
		return Point{}, fmt.Errorf("%w: %s: %v", ErrGeocodeFailed, city, err)
	}
	return Point{Lat: loc.Latitude, Lon: loc.Longitude}, nil
}

// StaticLocator answers from a fixed table of lower-cased city names.
type StaticLocator map[string]Point

// Locate implements Locator.
func (s StaticLocator) Locate(_ context.Context, city, _ string) (Point, error) {
	p, ok := s[strings.ToLower(strings.TrimSpace(city))]
	if !ok {
		return Point{}, fmt.Errorf("%w: %s", ErrCityNotFound, city)
	}
	return p, nil
}
