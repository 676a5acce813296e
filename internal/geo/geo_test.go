package geo

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tolerance        float64
	}{
		{name: "Same_Point", lat1: 59.33, lon1: 18.06, lat2: 59.33, lon2: 18.06, want: 0, tolerance: 1e-9},
		{name: "Stockholm_Gothenburg", lat1: 59.3293, lon1: 18.0686, lat2: 57.7089, lon2: 11.9746, want: 398, tolerance: 3},
		{name: "Karesuando_Stations", lat1: 68.4418, lon1: 22.4440, lat2: 68.45, lon2: 22.48, want: 1.72, tolerance: 0.05},
		{name: "Quarter_Meridian", lat1: 0, lon1: 0, lat2: 90, lon2: 0, want: math.Pi / 2 * EarthRadiusKm, tolerance: 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("expected %.3f±%.3f km, got %.3f", tt.want, tt.tolerance, got)
			}
			if back := Haversine(tt.lat2, tt.lon2, tt.lat1, tt.lon1); math.Abs(back-got) > 1e-9 {
				t.Errorf("distance not symmetric: %v vs %v", got, back)
			}
		})
	}
}

func TestLocators(t *testing.T) {
	ctx := context.Background()

	s := StaticLocator{"karesuando": {Lat: 68.44, Lon: 22.45}}
	p, err := s.Locate(ctx, " Karesuando ", "Sweden")
	if err != nil || p.Lat != 68.44 {
		t.Errorf("unexpected %+v %v", p, err)
	}
	if _, err := s.Locate(ctx, "Atlantis", ""); !errors.Is(err, ErrCityNotFound) {
		t.Errorf("expected ErrCityNotFound, got %v", err)
	}

	if _, err := NewGoogleLocator("").Locate(ctx, "Kiruna", "Sweden"); !errors.Is(err, ErrNoGeocoder) {
		t.Errorf("expected ErrNoGeocoder without a key, got %v", err)
	}
	if _, err := NewGoogleLocator("key").Locate(ctx, "  ", ""); !errors.Is(err, ErrCityNotFound) {
		t.Errorf("expected ErrCityNotFound for an empty name, got %v", err)
	}
}
