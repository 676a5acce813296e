package smhi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/i474232898/smhi-opendata/internal/fetch"
	"github.com/i474232898/smhi-opendata/internal/geo"
	"github.com/i474232898/smhi-opendata/internal/metobs"
	"github.com/i474232898/smhi-opendata/internal/smhitest"
	"github.com/i474232898/smhi-opendata/internal/table"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	srv := smhitest.NewServer(t)
	return NewService(metobs.NewCatalog(fetch.NewDefault(), srv.MetObsRoot()), opts...)
}

func at(hour int) time.Time {
	return time.Date(2008, 11, 1, hour, 0, 0, 0, time.UTC)
}

func TestStationsNear(t *testing.T) {
	s := newTestService(t)

	near, err := s.StationsNear(context.Background(), 1, 68.4418, 22.4440)
	if err != nil {
		t.Fatalf("StationsNear: %v", err)
	}
	want := []int{smhitest.KaresuandoA, smhitest.Karesuando, smhitest.Abisko, smhitest.Stockholm}
	if len(near) != len(want) {
		t.Fatalf("expected %d stations, got %d", len(want), len(near))
	}
	for i, id := range want {
		if near[i].ID != id {
			t.Errorf("position %d: expected %d, got %d", i, id, near[i].ID)
		}
	}
	if near[0].DistanceKm != 0 || near[1].DistanceKm > 2 {
		t.Errorf("unexpected distances %v, %v", near[0].DistanceKm, near[1].DistanceKm)
	}
}

func TestObservations(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	obs, err := s.Observations(ctx, 1, smhitest.Abisko, metobs.CorrectedArchive)
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if obs.Metadata["Stationsnummer"] != "188790" {
		t.Errorf("unexpected station %q", obs.Metadata["Stationsnummer"])
	}

	if _, err := s.Observations(ctx, 1, smhitest.Abisko, metobs.LatestHour); !errors.Is(err, metobs.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a period the station lacks, got %v", err)
	}
	if _, err := s.Observations(ctx, 99, smhitest.Abisko, metobs.CorrectedArchive); !errors.Is(err, metobs.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown parameter, got %v", err)
	}
	if _, err := s.StationSetObservations(ctx, 1, "all", metobs.LatestHour); !errors.Is(err, metobs.ErrUnsupportedMediaType) {
		t.Errorf("expected ErrUnsupportedMediaType for station set data, got %v", err)
	}
}

func TestObservationsNear(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	got, err := s.ObservationsNear(ctx, 1, 68.45, 22.48, metobs.CorrectedArchive)
	if err != nil {
		t.Fatalf("ObservationsNear: %v", err)
	}
	if got.Station.ID != smhitest.Karesuando {
		t.Errorf("expected the co-located station, got %d", got.Station.ID)
	}

	// 192830 offers no latest-hour, so the next station is tried; its file is empty.
	if _, err := s.ObservationsNear(ctx, 1, 68.45, 22.48, metobs.LatestHour); !errors.Is(err, metobs.ErrEmptyData) {
		t.Errorf("expected ErrEmptyData from the second station, got %v", err)
	}
}

func TestObservationsForCity(t *testing.T) {
	ctx := context.Background()

	s := newTestService(t, WithLocator(geo.StaticLocator{"karesuando": {Lat: 68.4418, Lon: 22.4440}}))
	got, err := s.ObservationsForCity(ctx, 1, "Karesuando", "Sweden", metobs.CorrectedArchive)
	if err != nil {
		t.Fatalf("ObservationsForCity: %v", err)
	}
	if got.Station.ID != smhitest.KaresuandoA || got.Metadata["Stationsnamn"] != "Karesuando A" {
		t.Errorf("unexpected station %d %q", got.Station.ID, got.Metadata["Stationsnamn"])
	}
	if _, err := s.ObservationsForCity(ctx, 1, "Atlantis", "", metobs.CorrectedArchive); !errors.Is(err, geo.ErrCityNotFound) {
		t.Errorf("expected ErrCityNotFound, got %v", err)
	}

	if _, err := newTestService(t).ObservationsForCity(ctx, 1, "Karesuando", "", metobs.CorrectedArchive); !errors.Is(err, geo.ErrNoGeocoder) {
		t.Errorf("expected ErrNoGeocoder, got %v", err)
	}
}

func TestFillGaps(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	filled, err := s.FillGaps(ctx, 1, smhitest.KaresuandoA, metobs.CorrectedArchive, 10)
	if err != nil {
		t.Fatalf("FillGaps: %v", err)
	}
	if filled.Gaps != 0 {
		t.Errorf("expected every gap filled, %d left", filled.Gaps)
	}
	if filled.Sources[smhitest.Karesuando] != 3 || len(filled.Sources) != 1 {
		t.Errorf("expected 3 rows from %d only, got %v", smhitest.Karesuando, filled.Sources)
	}

	tbl := filled.Table
	if tbl.Len() != 8 {
		t.Fatalf("expected 8 hourly rows, got %d", tbl.Len())
	}
	want := map[int]string{0: "-2.3", 2: "-3.1", 3: "-3.3", 4: "-3.6", 5: "-3.9", 6: "-4.0"}
	for hour, v := range want {
		row, ok := tbl.At(at(hour))
		if !ok || row[0] != v {
			t.Errorf("%02d:00 expected %s, got %v", hour, v, row)
		}
	}
	if filled.Metadata["Stationsnummer"] != "192840" {
		t.Errorf("metadata must stay the origin's, got %q", filled.Metadata["Stationsnummer"])
	}

	t.Run("Radius_Too_Small", func(t *testing.T) {
		filled, err := s.FillGaps(ctx, 1, smhitest.KaresuandoA, metobs.CorrectedArchive, 1)
		if err != nil {
			t.Fatalf("FillGaps: %v", err)
		}
		if filled.Gaps != 1 || filled.Table.Len() != 5 || len(filled.Sources) != 0 {
			t.Errorf("expected the series untouched, got %d rows %d gaps", filled.Table.Len(), filled.Gaps)
		}
	})

	t.Run("Unknown_Station", func(t *testing.T) {
		if _, err := s.FillGaps(ctx, 1, 1, metobs.CorrectedArchive, 10); !errors.Is(err, metobs.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestFillGapsNearestFirst(t *testing.T) {
	ctx := context.Background()

	requested := func(srv *smhitest.Server, station int) bool {
		prefix := fmt.Sprintf("/station/%d", station)
		for _, uri := range srv.Requests() {
			if strings.Contains(uri, prefix) {
				return true
			}
		}
		return false
	}

	tests := []struct {
		name     string
		distance geo.DistanceFunc
		source   int
		unused   int
		want     map[int]string
	}{
		{
			name:     "Closest_Station_Wins",
			distance: geo.Haversine,
			source:   smhitest.Karesuando,
			unused:   smhitest.Abisko,
			want:     map[int]string{3: "-3.3", 4: "-3.6", 5: "-3.9"},
		},
		{
			// Stockholm ranks first, has no data and is skipped.
			name:     "Westward_Ordering",
			distance: func(_, lon1, _, lon2 float64) float64 { return 10 + lon2 - lon1 },
			source:   smhitest.Abisko,
			unused:   smhitest.Karesuando,
			want:     map[int]string{3: "-6.3", 4: "-6.4", 5: "-6.5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := smhitest.NewServer(t)
			s := NewService(metobs.NewCatalog(fetch.NewDefault(), srv.MetObsRoot()), WithDistance(tt.distance))

			filled, err := s.FillGaps(ctx, 1, smhitest.KaresuandoA, metobs.CorrectedArchive, 1000)
			if err != nil {
				t.Fatalf("FillGaps: %v", err)
			}
			if filled.Gaps != 0 || len(filled.Sources) != 1 || filled.Sources[tt.source] != 3 {
				t.Fatalf("expected 3 rows from %d only, got %v (%d gaps left)", tt.source, filled.Sources, filled.Gaps)
			}
			for hour, v := range tt.want {
				row, ok := filled.Table.At(at(hour))
				if !ok || row[0] != v {
					t.Errorf("%02d:00 expected %s, got %v", hour, v, row)
				}
			}
			if requested(srv, tt.unused) {
				t.Errorf("station %d was downloaded after every gap was closed: %v", tt.unused, srv.Requests())
			}
		})
	}
}

func TestMedianSpacingAndGaps(t *testing.T) {
	tbl := table.NewIndexed("v")
	for _, h := range []int{0, 1, 2, 6, 7, 9} {
		tbl.AppendAt(at(h), "1")
	}
	// spacings 1,1,4,1,2 -> median 1h
	if m := medianSpacing(tbl); m != time.Hour {
		t.Fatalf("expected 1h median, got %s", m)
	}
	gaps := findGaps(tbl, time.Hour)
	if len(gaps) != 2 || !gaps[0].from.Equal(at(2)) || !gaps[1].to.Equal(at(9)) {
		t.Errorf("unexpected gaps %+v", gaps)
	}

	if m := medianSpacing(table.NewIndexed("v")); m != 0 {
		t.Errorf("expected 0 for an empty table, got %s", m)
	}
}
