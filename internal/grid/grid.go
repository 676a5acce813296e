// Package grid is a thin client for SMHI's gridded products: the Mesan
// analysis and the Metfcst (pmp3g) point forecast. Both share the same API
// shape and differ only by their root URL.
package grid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/smhi-opendata/internal/fetch"
	"github.com/i474232898/smhi-opendata/internal/table"
)

const (
	MesanBaseURL   = "https://opendata-download-metanalys.smhi.se/api/category/mesan1g/version/2"
	MetfcstBaseURL = "https://opendata-download-metfcst.smhi.se/api/category/pmp3g/version/2"

	// MesanPath and MetfcstPath are the product roots below an API base.
	MesanPath   = "/category/mesan1g/version/2"
	MetfcstPath = "/category/pmp3g/version/2"
)

// validTimeStamp is the compact form multipoint URLs use, e.g. 240201T060000Z.
const validTimeStamp = "060102T150405Z"

var (
	// ErrInvalidCoordinates is returned when lat or lon is outside the valid range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidRequest is returned for multipoint requests failing validation.
	ErrInvalidRequest = errors.New("invalid grid request")
)

var validate = validator.New()

// Getter fetches a URL asking for the given media type.
type Getter interface {
	GetAs(ctx context.Context, rawURL, mediaType string) (*fetch.Response, error)
}

// Client talks to one gridded product.
type Client struct {
	name   string
	base   string
	getter Getter
}

// NewMesan returns a Mesan client rooted at base, or MesanBaseURL when empty.
func NewMesan(getter Getter, base string) *Client {
	if base == "" {
		base = MesanBaseURL
	}
	return &Client{name: "mesan", base: strings.TrimSuffix(base, "/"), getter: getter}
}

// NewMetfcst returns a forecast client rooted at base, or MetfcstBaseURL when empty.
func NewMetfcst(getter Getter, base string) *Client {
	if base == "" {
		base = MetfcstBaseURL
	}
	return &Client{name: "metfcst", base: strings.TrimSuffix(base, "/"), getter: getter}
}

// Name identifies the product in logs.
func (c *Client) Name() string { return c.name }

// Approved holds when the current run was approved and its reference time.
type Approved struct {
	ApprovedTime  time.Time `json:"approvedTime"`
	ReferenceTime time.Time `json:"referenceTime"`
}

// Parameter describes one gridded quantity.
type Parameter struct {
	Name         string  `json:"name"`
	Key          string  `json:"key"`
	LevelType    string  `json:"levelType"`
	Level        int     `json:"level"`
	Unit         string  `json:"unit"`
	MissingValue float64 `json:"missingValue"`
}

// Coordinate is a lon/lat pair as SMHI orders them.
type Coordinate struct {
	Lon float64
	Lat float64
}

// UnmarshalJSON reads the [lon, lat] array form.
func (c *Coordinate) UnmarshalJSON(b []byte) error {
	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) < 2 {
		return fmt.Errorf("coordinate needs two values, got %d", len(pair))
	}
	c.Lon, c.Lat = pair[0], pair[1]
	return nil
}

type seriesParameter struct {
	Name      string    `json:"name"`
	LevelType string    `json:"levelType"`
	Level     int       `json:"level"`
	Unit      string    `json:"unit"`
	Values    []float64 `json:"values"`
}

func (p seriesParameter) column() string {
	return fmt.Sprintf("%s_%s_%d", p.Name, p.LevelType, p.Level)
}

type gridData struct {
	Approved
	Geometry struct {
		Type        string       `json:"type"`
		Coordinates []Coordinate `json:"coordinates"`
	} `json:"geometry"`
	TimeSeries []struct {
		ValidTime  time.Time         `json:"validTime"`
		Parameters []seriesParameter `json:"parameters"`
	} `json:"timeSeries"`
}

// Forecast is a point series: one column per name_levelType_level.
type Forecast struct {
	Approved
	Table *table.Table
	// Units maps each column to its unit.
	Units map[string]string
}

// MultipointRequest selects one field of the grid at one valid time.
type MultipointRequest struct {
	ValidTime  time.Time `validate:"required"`
	Parameter  string    `validate:"required"`
	LevelType  string    `validate:"required"`
	Level      int       `validate:"gte=0"`
	Downsample int       `validate:"omitempty,min=1,max=20"`
}

type position struct {
	Lat float64 `validate:"gte=-90,lte=90"`
	Lon float64 `validate:"gte=-180,lte=180"`
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	u := c.base + path
	log.Printf("DEBUG: %s: GET %s", c.name, u)
	resp, err := c.getter.GetAs(ctx, u, fetch.MediaJSON)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", fetch.ErrRequestFailed, u, err)
	}
	return nil
}

// ApprovedTime reports the latest approved run.
func (c *Client) ApprovedTime(ctx context.Context) (Approved, error) {
	var a Approved
	if err := c.getJSON(ctx, "/approvedtime.json", &a); err != nil {
		return Approved{}, err
	}
	return a, nil
}

// ValidTimes lists the valid times of the current run in ascending order.
func (c *Client) ValidTimes(ctx context.Context) ([]time.Time, error) {
	var payload struct {
		ValidTime []time.Time `json:"validTime"`
	}
	if err := c.getJSON(ctx, "/geotype/multipoint/validtime.json", &payload); err != nil {
		return nil, err
	}
	out := make([]time.Time, len(payload.ValidTime))
	for i, t := range payload.ValidTime {
		out[i] = t.UTC()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// Polygon returns the outline of the grid.
func (c *Client) Polygon(ctx context.Context) ([]Coordinate, error) {
	var payload struct {
		Coordinates [][]Coordinate `json:"coordinates"`
	}
	if err := c.getJSON(ctx, "/geotype/polygon.json", &payload); err != nil {
		return nil, err
	}
	if len(payload.Coordinates) == 0 {
		return nil, nil
	}
	return payload.Coordinates[0], nil
}

// Parameters lists the quantities the product publishes.
func (c *Client) Parameters(ctx context.Context) ([]Parameter, error) {
	var payload struct {
		Parameter []Parameter `json:"parameter"`
	}
	if err := c.getJSON(ctx, "/parameter.json", &payload); err != nil {
		return nil, err
	}
	return payload.Parameter, nil
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Point fetches the series at the grid point nearest lat/lon.
func (c *Client) Point(ctx context.Context, lat, lon float64) (*Forecast, error) {
	if err := validate.Struct(position{Lat: lat, Lon: lon}); err != nil {
		return nil, fmt.Errorf("%w: lat=%v lon=%v: %v", ErrInvalidCoordinates, lat, lon, err)
	}

	var data gridData
	path := fmt.Sprintf("/geotype/point/lon/%s/lat/%s/data.json", formatCoordinate(lon), formatCoordinate(lat))
	if err := c.getJSON(ctx, path, &data); err != nil {
		return nil, err
	}

	var columns []string
	units := make(map[string]string)
	for _, ts := range data.TimeSeries {
		for _, p := range ts.Parameters {
			col := p.column()
			if _, ok := units[col]; !ok {
				units[col] = p.Unit
				columns = append(columns, col)
			}
		}
	}

	tbl := table.NewIndexed(columns...)
	for _, ts := range data.TimeSeries {
		cells := make([]string, len(columns))
		for _, p := range ts.Parameters {
			if len(p.Values) == 0 {
				continue
			}
			i, err := tbl.ColumnIndex(p.column())
			if err != nil {
				continue
			}
			cells[i] = strconv.FormatFloat(p.Values[0], 'f', -1, 64)
		}
		tbl.AppendAt(ts.ValidTime, cells...)
	}
	tbl.SortByIndex()

	return &Forecast{Approved: data.Approved, Table: tbl, Units: units}, nil
}

// Multipoint fetches one field over the whole grid as (lat, lon, value) rows,
// the value column named after the parameter.
func (c *Client) Multipoint(ctx context.Context, r MultipointRequest) (*table.Table, error) {
	if err := validate.Struct(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	path := fmt.Sprintf("/geotype/multipoint/validtime/%s/parameter/%s/leveltype/%s/level/%d/data.json?with-geo=true",
		r.ValidTime.UTC().Format(validTimeStamp), r.Parameter, r.LevelType, r.Level)
	if r.Downsample > 0 {
		path += "&downsample=" + strconv.Itoa(r.Downsample)
	}

	var data gridData
	if err := c.getJSON(ctx, path, &data); err != nil {
		return nil, err
	}

	tbl := table.New("lat", "lon", r.Parameter)
	if len(data.TimeSeries) == 0 {
		return tbl, nil
	}
	var values []float64
	for _, p := range data.TimeSeries[0].Parameters {
		if p.Name == r.Parameter {
			values = p.Values
			break
		}
	}
	coords := data.Geometry.Coordinates
	if len(coords) != len(values) {
		log.Printf("WARN: %s: %d coordinates for %d values, truncating", c.name, len(coords), len(values))
	}
	for i := 0; i < len(coords) && i < len(values); i++ {
		tbl.Append(formatCoordinate(coords[i].Lat), formatCoordinate(coords[i].Lon), strconv.FormatFloat(values[i], 'f', -1, 64))
	}
	return tbl, nil
}
