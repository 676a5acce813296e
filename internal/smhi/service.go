// Package smhi stitches the MetObs catalog, the observation decoder and the
// geocoder into station-by-proximity lookups and gap filling.
package smhi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/i474232898/smhi-opendata/internal/geo"
	"github.com/i474232898/smhi-opendata/internal/metobs"
	"github.com/i474232898/smhi-opendata/internal/table"
)

// ErrNoStation is returned when no station can serve a proximity request.
var ErrNoStation = errors.New("no station available")

// NearbyStation is a station with its distance from a query point.
type NearbyStation struct {
	metobs.Station
	DistanceKm float64 `json:"distanceKm"`
}

// StationObservations are observations together with the station they came from.
type StationObservations struct {
	*metobs.Observations
	Station NearbyStation
}

// Filled is a gap-filled series and the stations that contributed rows to it.
type Filled struct {
	*metobs.Observations
	// Sources maps each contributing neighbour to the number of rows it added.
	Sources map[int]int
	// Gaps is the number of gaps left unfilled.
	Gaps int
}

// Service is the high-level entry point over the MetObs catalog.
type Service struct {
	catalog  *metobs.Catalog
	locator  geo.Locator
	distance geo.DistanceFunc
}

// Option configures a Service.
type Option func(*Service)

// WithLocator sets the geocoder used by ObservationsForCity.
func WithLocator(l geo.Locator) Option {
	return func(s *Service) { s.locator = l }
}

// WithDistance replaces the default haversine distance.
func WithDistance(d geo.DistanceFunc) Option {
	return func(s *Service) { s.distance = d }
}

// NewService creates a new Service.
func NewService(catalog *metobs.Catalog, opts ...Option) *Service {
	s := &Service{
		catalog:  catalog,
		distance: geo.Haversine,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog exposes the underlying navigator.
func (s *Service) Catalog() *metobs.Catalog { return s.catalog }

// Parameters lists the parameters of the supported catalog version.
func (s *Service) Parameters(ctx context.Context) (*metobs.Parameters, error) {
	versions, err := s.catalog.Versions(ctx)
	if err != nil {
		return nil, err
	}
	return versions.Select(ctx, metobs.ByKey(metobs.SupportedVersion))
}

// Stations lists the stations measuring parameter.
func (s *Service) Stations(ctx context.Context, parameter int) (*metobs.Stations, error) {
	params, err := s.Parameters(ctx)
	if err != nil {
		return nil, err
	}
	return params.Select(ctx, metobs.ByID(parameter))
}

func (s *Service) byDistance(stations []metobs.Station, lat, lon float64) []NearbyStation {
	out := make([]NearbyStation, 0, len(stations))
	for _, st := range stations {
		out = append(out, NearbyStation{
			Station:    st,
			DistanceKm: s.distance(lat, lon, st.Latitude, st.Longitude),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// StationsNear lists the stations measuring parameter, closest first.
func (s *Service) StationsNear(ctx context.Context, parameter int, lat, lon float64) ([]NearbyStation, error) {
	stations, err := s.Stations(ctx, parameter)
	if err != nil {
		return nil, err
	}
	return s.byDistance(stations.Stations, lat, lon), nil
}

// Observations downloads one period of one station.
func (s *Service) Observations(ctx context.Context, parameter, station int, period metobs.PeriodKind) (*metobs.Observations, error) {
	stations, err := s.Stations(ctx, parameter)
	if err != nil {
		return nil, err
	}
	return observationsOf(ctx, stations, metobs.ByID(station), period)
}

// StationSetObservations downloads one period of a station set.
func (s *Service) StationSetObservations(ctx context.Context, parameter int, set string, period metobs.PeriodKind) (*metobs.Observations, error) {
	stations, err := s.Stations(ctx, parameter)
	if err != nil {
		return nil, err
	}
	return observationsOf(ctx, stations, metobs.ByStationSet(set), period)
}

func observationsOf(ctx context.Context, stations *metobs.Stations, sel metobs.Selection, period metobs.PeriodKind) (*metobs.Observations, error) {
	periods, err := stations.Select(ctx, sel)
	if err != nil {
		return nil, err
	}
	return periods.Observations(ctx, period)
}

// ObservationsNear downloads period from the closest station that offers it.
func (s *Service) ObservationsNear(ctx context.Context, parameter int, lat, lon float64, period metobs.PeriodKind) (*StationObservations, error) {
	stations, err := s.Stations(ctx, parameter)
	if err != nil {
		return nil, err
	}

	for _, st := range s.byDistance(stations.Stations, lat, lon) {
		obs, err := observationsOf(ctx, stations, metobs.ByID(st.ID), period)
		if errors.Is(err, metobs.ErrNotFound) {
			log.Printf("DEBUG: station %d has no %s period, trying next", st.ID, period)
			continue
		}
		if err != nil {
			return nil, err
		}
		return &StationObservations{Observations: obs, Station: st}, nil
	}
	return nil, fmt.Errorf("%w: parameter %d, period %s near %.4f,%.4f", ErrNoStation, parameter, period, lat, lon)
}

// ObservationsForCity geocodes city and downloads period from the closest station.
func (s *Service) ObservationsForCity(ctx context.Context, parameter int, city, country string, period metobs.PeriodKind) (*StationObservations, error) {
	if s.locator == nil {
		return nil, geo.ErrNoGeocoder
	}
	p, err := s.locator.Locate(ctx, city, country)
	if err != nil {
		return nil, err
	}
	log.Printf("DEBUG: %s resolved to %.4f,%.4f", city, p.Lat, p.Lon)
	return s.ObservationsNear(ctx, parameter, p.Lat, p.Lon, period)
}

type gap struct{ from, to time.Time }

// medianSpacing returns the median distance between consecutive timestamps.
func medianSpacing(t *table.Table) time.Duration {
	sp := t.Spacings()
	if len(sp) == 0 {
		return 0
	}
	sort.Slice(sp, func(i, j int) bool { return sp[i] < sp[j] })
	mid := len(sp) / 2
	if len(sp)%2 == 0 {
		return (sp[mid-1] + sp[mid]) / 2
	}
	return sp[mid]
}

func findGaps(t *table.Table, threshold time.Duration) []gap {
	var gaps []gap
	index := t.Index()
	for i := 1; i < len(index); i++ {
		if index[i].Sub(index[i-1]) > threshold {
			gaps = append(gaps, gap{from: index[i-1], to: index[i]})
		}
	}
	return gaps
}

// FillGaps downloads period for station and fills spacings larger than the
// median spacing with rows from stations within radiusKm. Neighbours are
// downloaded one at a time, closest first, until no gap is left.
// Rows already present are never replaced and values are not averaged.
func (s *Service) FillGaps(ctx context.Context, parameter, station int, period metobs.PeriodKind, radiusKm float64) (*Filled, error) {
	stations, err := s.Stations(ctx, parameter)
	if err != nil {
		return nil, err
	}
	origin, ok := stations.Lookup(station)
	if !ok {
		return nil, fmt.Errorf("%w: station %d", metobs.ErrNotFound, station)
	}
	obs, err := observationsOf(ctx, stations, metobs.ByID(station), period)
	if err != nil {
		return nil, err
	}

	threshold := medianSpacing(obs.Table)
	gaps := findGaps(obs.Table, threshold)
	filled := &Filled{Observations: obs, Sources: make(map[int]int), Gaps: len(gaps)}
	if len(gaps) == 0 {
		return filled, nil
	}

	var neighbours []NearbyStation
	for _, st := range s.byDistance(stations.Stations, origin.Latitude, origin.Longitude) {
		if st.ID != origin.ID && st.DistanceKm <= radiusKm {
			neighbours = append(neighbours, st)
		}
	}
	log.Printf("INFO: station %d has %d gaps over %s, %d neighbours within %.0f km",
		station, len(gaps), threshold, len(neighbours), radiusKm)

	result := obs.Table
	for _, st := range neighbours {
		nb, err := observationsOf(ctx, stations, metobs.ByID(st.ID), period)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("WARN: neighbour station %d skipped: %v", st.ID, err)
			continue
		}
		before := result.Len()
		for _, g := range gaps {
			inside, err := nb.Table.Between(g.from, g.to)
			if err != nil {
				return nil, err
			}
			if result, err = result.Merge(inside); err != nil {
				return nil, err
			}
		}
		if added := result.Len() - before; added > 0 {
			filled.Sources[st.ID] = added
			log.Printf("INFO: station %d filled %d rows of station %d", st.ID, added, station)
		}

		gaps = findGaps(result, threshold)
		if len(gaps) == 0 {
			break
		}
	}

	filled.Observations = &metobs.Observations{URL: obs.URL, Table: result, Metadata: obs.Metadata}
	filled.Gaps = len(gaps)
	return filled, nil
}
