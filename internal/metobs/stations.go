package metobs

import (
	"context"
	"fmt"
	"sort"
)

// Measuring station networks.
const (
	NetworkCore       = "CORE"
	NetworkAdditional = "ADDITIONAL"
)

// Station is a fixed measuring site.
type Station struct {
	Header
	ID                int     `json:"id"`
	Name              string  `json:"name"`
	Owner             string  `json:"owner"`
	OwnerCategory     string  `json:"ownerCategory"`
	MeasuringStations string  `json:"measuringStations"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	Height            float64 `json:"height"`
	Active            bool    `json:"active"`
	From              Epoch   `json:"from"`
	To                Epoch   `json:"to"`
}

// StationSet is a named group of stations, addressed by key.
type StationSet struct {
	Header
}

// Stations is the station list of one parameter, sorted by id.
type Stations struct {
	Header
	URL         string
	ValueType   string
	StationSets []StationSet
	Stations    []Station

	getter Getter
}

// Lookup returns the station with the given id.
func (s *Stations) Lookup(id int) (Station, bool) {
	i := sort.Search(len(s.Stations), func(i int) bool { return s.Stations[i].ID >= id })
	if i < len(s.Stations) && s.Stations[i].ID == id {
		return s.Stations[i], true
	}
	return Station{}, false
}

// Active returns the stations currently reporting.
func (s *Stations) Active() []Station {
	var out []Station
	for _, st := range s.Stations {
		if st.Active {
			out = append(out, st)
		}
	}
	return out
}

// Select descends into the period list of a station or a station set.
func (s *Stations) Select(ctx context.Context, sel Selection) (*Periods, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}

	var h Header
	if sel.StationSet != "" {
		set, err := pick(s.StationSets, ByKey(sel.StationSet), "station set")
		if err != nil {
			return nil, err
		}
		h = set.Header
	} else {
		st, err := pick(s.Stations, sel, "station")
		if err != nil {
			return nil, err
		}
		h = st.Header
	}

	var payload struct {
		Header
		Owner             string        `json:"owner"`
		OwnerCategory     string        `json:"ownerCategory"`
		MeasuringStations string        `json:"measuringStations"`
		Active            bool          `json:"active"`
		From              Epoch         `json:"from"`
		To                Epoch         `json:"to"`
		Position          []Position    `json:"position"`
		Period            []PeriodEntry `json:"period"`
	}
	url, err := follow(ctx, s.getter, h, &payload)
	if err != nil {
		return nil, err
	}
	if payload.Period == nil {
		return nil, fmt.Errorf("%w: %s: missing period list", ErrMalformedCatalog, url)
	}

	periods := append([]PeriodEntry(nil), payload.Period...)
	sortPeriods(periods)

	return &Periods{
		Header:            payload.Header,
		URL:               url,
		Owner:             payload.Owner,
		OwnerCategory:     payload.OwnerCategory,
		MeasuringStations: payload.MeasuringStations,
		Active:            payload.Active,
		From:              payload.From.Time,
		To:                payload.To.Time,
		Position:          payload.Position,
		Periods:           periods,
		getter:            s.getter,
	}, nil
}
