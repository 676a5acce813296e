package metobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/i474232898/smhi-opendata/internal/fetch"
	"github.com/i474232898/smhi-opendata/internal/smhitest"
)

func newTestCatalog(t *testing.T) (*Catalog, *smhitest.Server) {
	t.Helper()
	srv := smhitest.NewServer(t)
	return NewCatalog(fetch.NewDefault(), srv.MetObsRoot()), srv
}

func stationsOf(t *testing.T, ctx context.Context, c *Catalog, parameter int) *Stations {
	t.Helper()
	versions, err := c.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	params, err := versions.Select(ctx, ByKey(SupportedVersion))
	if err != nil {
		t.Fatalf("select version: %v", err)
	}
	stations, err := params.Select(ctx, ByID(parameter))
	if err != nil {
		t.Fatalf("select parameter: %v", err)
	}
	return stations
}

func TestEpochFromNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  float64
		want time.Time
	}{
		{name: "Milliseconds", raw: 1225497600000, want: time.Date(2008, 11, 1, 0, 0, 0, 0, time.UTC)},
		{name: "Seconds", raw: 1225497600, want: time.Date(2008, 11, 1, 0, 0, 0, 0, time.UTC)},
		{name: "Negative_Milliseconds", raw: -694137600000, want: time.Date(1948, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "Negative_Seconds", raw: -694137600, want: time.Date(1948, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EpochFromNumber(tt.raw)
			if !got.Equal(tt.want) || got.Location() != time.UTC {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNavigateToObservations(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t)

	versions, err := c.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if versions.Key != "metobs" || len(versions.Versions) != 2 {
		t.Fatalf("unexpected root %q with %d versions", versions.Key, len(versions.Versions))
	}
	if versions.Updated.Location() != time.UTC || versions.Updated.IsZero() {
		t.Errorf("expected updated stamp in UTC, got %v", versions.Updated)
	}

	params, err := versions.Select(ctx, ByTitle("Version 1.0"))
	if err != nil {
		t.Fatalf("select version by title: %v", err)
	}

	t.Run("Parameters_Sorted_By_ID", func(t *testing.T) {
		var ids []int
		for _, p := range params.Resource {
			ids = append(ids, p.ID())
		}
		if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 10 {
			t.Errorf("expected ids [1 2 10], got %v", ids)
		}
		p, ok := params.Lookup(1)
		if !ok || p.Title != "Lufttemperatur" || p.Unit != "degree celsius" {
			t.Errorf("unexpected parameter 1: %+v", p)
		}
		if p.GeoBox.MaxLatitude != 71.4 {
			t.Errorf("expected geo box to be decoded, got %+v", p.GeoBox)
		}
	})

	stations, err := params.Select(ctx, ByID(1))
	if err != nil {
		t.Fatalf("select parameter: %v", err)
	}

	t.Run("Stations_Sorted_By_ID", func(t *testing.T) {
		if stations.ValueType != "SAMPLING" {
			t.Errorf("expected SAMPLING value type, got %q", stations.ValueType)
		}
		for i := 1; i < len(stations.Stations); i++ {
			if stations.Stations[i-1].ID >= stations.Stations[i].ID {
				t.Fatalf("stations not ascending at %d: %d >= %d", i, stations.Stations[i-1].ID, stations.Stations[i].ID)
			}
		}
		st, ok := stations.Lookup(smhitest.KaresuandoA)
		if !ok || st.Name != "Karesuando A" || st.MeasuringStations != NetworkCore {
			t.Errorf("unexpected station: %+v", st)
		}
		if len(stations.Active()) != 3 {
			t.Errorf("expected 3 active stations, got %d", len(stations.Active()))
		}
		if stations.StationSets[0].Key != "all" {
			t.Errorf("expected station set 'all', got %+v", stations.StationSets)
		}
	})

	periods, err := stations.Select(ctx, ByID(smhitest.KaresuandoA))
	if err != nil {
		t.Fatalf("select station: %v", err)
	}

	t.Run("Periods_In_Enumeration_Order", func(t *testing.T) {
		want := []PeriodKind{LatestHour, LatestDay, LatestMonths, CorrectedArchive}
		if len(periods.Periods) != len(want) {
			t.Fatalf("expected %d periods, got %d", len(want), len(periods.Periods))
		}
		for i, w := range want {
			if periods.Periods[i].Key != string(w) {
				t.Errorf("period %d: expected %s, got %s", i, w, periods.Periods[i].Key)
			}
		}
		if periods.Owner != "SMHI" || !periods.Active || len(periods.Position) != 1 {
			t.Errorf("station level fields not hoisted: %+v", periods)
		}
	})

	obs, err := periods.Observations(ctx, CorrectedArchive)
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if obs.Metadata["Stationsnamn"] != "Karesuando A" {
		t.Errorf("expected Karesuando A, got %q", obs.Metadata["Stationsnamn"])
	}
	if obs.Metadata["Stationsnummer"] != "192840" {
		t.Errorf("metadata station number must match the request, got %q", obs.Metadata["Stationsnummer"])
	}
	row, ok := obs.Table.At(time.Date(2008, 11, 1, 0, 0, 0, 0, time.UTC))
	if !ok || row[0] != "-2.3" {
		t.Errorf("expected -2.3 at 2008-11-01 00:00Z, got %v", row)
	}
}

func TestStationSetNavigation(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t)
	stations := stationsOf(t, ctx, c, 1)

	periods, err := stations.Select(ctx, ByStationSet("all"))
	if err != nil {
		t.Fatalf("select station set: %v", err)
	}
	if len(periods.Periods) != 1 || periods.Periods[0].Key != string(LatestHour) {
		t.Fatalf("unexpected periods %+v", periods.Periods)
	}

	// Station set data is only published as JSON.
	_, err = periods.Observations(ctx, LatestHour)
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Errorf("expected ErrUnsupportedMediaType, got %v", err)
	}
}

func TestSelectionErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t)
	stations := stationsOf(t, ctx, c, 1)

	tests := []struct {
		name    string
		sel     Selection
		wantErr error
	}{
		{name: "Missing", sel: Selection{}, wantErr: ErrSelectionMissing},
		{name: "Ambiguous", sel: Selection{Key: "192840", Title: "Karesuando A"}, wantErr: ErrSelectionAmbiguous},
		{name: "Unknown_Station", sel: ByID(1), wantErr: ErrNotFound},
		{name: "Unknown_Title", sel: ByTitle("Karesuando B"), wantErr: ErrNotFound},
		{name: "Unknown_Station_Set", sel: ByStationSet("some"), wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stations.Select(ctx, tt.sel)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("Title_Selects_Station", func(t *testing.T) {
		periods, err := stations.Select(ctx, ByTitle("Karesuando A"))
		if err != nil {
			t.Fatalf("select by title: %v", err)
		}
		if periods.Key != "192840" {
			t.Errorf("expected station 192840, got %q", periods.Key)
		}
	})
}

func TestUnsupportedVersion(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t)
	versions, err := c.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if _, err := versions.Select(ctx, ByKey("0.9")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for version 0.9, got %v", err)
	}
	if _, err := versions.Select(ctx, ByStationSet("all")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for station set at version level, got %v", err)
	}
}

func TestMissingPeriodDocument(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCatalog(t)
	periods, err := stationsOf(t, ctx, c, 1).Select(ctx, ByID(smhitest.KaresuandoA))
	if err != nil {
		t.Fatalf("select station: %v", err)
	}

	// latest-day is advertised but not served.
	if _, err := periods.Select(ctx, ByKey(string(LatestDay))); !errors.Is(err, fetch.ErrRequestFailed) {
		t.Errorf("expected ErrRequestFailed, got %v", err)
	}

	// latest-hour is served but its file has no rows.
	if _, err := periods.Observations(ctx, LatestHour); !errors.Is(err, ErrEmptyData) {
		t.Errorf("expected ErrEmptyData, got %v", err)
	}
}

func TestParsePeriodKind(t *testing.T) {
	for _, k := range PeriodKinds {
		got, err := ParsePeriodKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParsePeriodKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParsePeriodKind("latest-year"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
