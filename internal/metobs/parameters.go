package metobs

import (
	"context"
	"fmt"
	"sort"
)

// GeoBox is the area a parameter is observed in.
type GeoBox struct {
	MinLatitude  float64 `json:"minLatitude"`
	MinLongitude float64 `json:"minLongitude"`
	MaxLatitude  float64 `json:"maxLatitude"`
	MaxLongitude float64 `json:"maxLongitude"`
}

// Parameter is an observable quantity, e.g. "Lufttemperatur".
type Parameter struct {
	Header
	Unit   string `json:"unit"`
	GeoBox GeoBox `json:"geoBox"`

	id int
}

// ID returns the numeric parameter id.
func (p Parameter) ID() int { return p.id }

// Parameters is the parameter list of a catalog version, sorted by id.
type Parameters struct {
	Header
	URL      string
	Resource []Parameter

	getter Getter
}

func newParameters(url string, h Header, resource []Parameter, g Getter) (*Parameters, error) {
	if resource == nil {
		return nil, fmt.Errorf("%w: %s: missing resource list", ErrMalformedCatalog, url)
	}
	params := make([]Parameter, len(resource))
	for i, p := range resource {
		id, err := numericKey(p.Header, url)
		if err != nil {
			return nil, err
		}
		p.id = id
		params[i] = p
	}
	sort.SliceStable(params, func(a, b int) bool { return params[a].id < params[b].id })

	return &Parameters{Header: h, URL: url, Resource: params, getter: g}, nil
}

// Lookup returns the parameter with the given id.
func (p *Parameters) Lookup(id int) (Parameter, bool) {
	for _, r := range p.Resource {
		if r.id == id {
			return r, true
		}
	}
	return Parameter{}, false
}

// Select descends into a parameter's station list.
func (p *Parameters) Select(ctx context.Context, sel Selection) (*Stations, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}
	if sel.StationSet != "" {
		return nil, fmt.Errorf("%w: parameters cannot be selected by %s", ErrNotFound, sel)
	}

	param, err := pick(p.Resource, sel, "parameter")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Header
		ValueType  string       `json:"valueType"`
		StationSet []StationSet `json:"stationSet"`
		Station    []Station    `json:"station"`
	}
	url, err := follow(ctx, p.getter, param.Header, &payload)
	if err != nil {
		return nil, err
	}
	if payload.Station == nil && payload.StationSet == nil {
		return nil, fmt.Errorf("%w: %s: missing station list", ErrMalformedCatalog, url)
	}

	stations := append([]Station(nil), payload.Station...)
	sort.SliceStable(stations, func(a, b int) bool { return stations[a].ID < stations[b].ID })

	return &Stations{
		Header:      payload.Header,
		URL:         url,
		ValueType:   payload.ValueType,
		StationSets: payload.StationSet,
		Stations:    stations,
		getter:      p.getter,
	}, nil
}
