package strang

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/i474232898/smhi-opendata/internal/fetch"
	"github.com/i474232898/smhi-opendata/internal/table"
)

// Getter fetches a URL asking for the given media type.
type Getter interface {
	GetAs(ctx context.Context, rawURL, mediaType string) (*fetch.Response, error)
}

// Client fetches STRÅNG series.
type Client struct {
	getter Getter
	base   string
}

// NewClient returns a client rooted at base, or DefaultBaseURL when empty.
func NewClient(getter Getter, base string) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{getter: getter, base: base}
}

type record struct {
	DateTime *string  `json:"date_time"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Value    *float64 `json:"value"`
}

// Point fetches a point series indexed by time, with the value column named
// after the parameter's meaning. On failure an empty table is returned along
// with the error.
func (c *Client) Point(ctx context.Context, r PointRequest) (*table.Table, error) {
	p, err := Lookup(r.Parameter)
	if err != nil {
		return table.New(), err
	}
	empty := table.NewIndexed(p.Meaning)

	u, err := BuildPointURL(c.base, r)
	if err != nil {
		return empty, err
	}
	records, err := c.fetch(ctx, u)
	if err != nil {
		return empty, err
	}
	return parsePoint(p, records, u)
}

// Multipoint fetches every grid point for one valid time as (lat, lon, value)
// rows. The value column is named "{meaning} {validTime} {interval}".
func (c *Client) Multipoint(ctx context.Context, r MultipointRequest) (*table.Table, error) {
	p, err := Lookup(r.Parameter)
	if err != nil {
		return table.New(), err
	}
	column := strings.TrimSpace(fmt.Sprintf("%s %s %s", p.Meaning, r.ValidTime, r.Interval))
	empty := table.New("lat", "lon", column)

	u, err := BuildMultipointURL(c.base, r)
	if err != nil {
		return empty, err
	}
	records, err := c.fetch(ctx, u)
	if err != nil {
		return empty, err
	}
	if len(records) > 0 && records[0].DateTime != nil {
		return parsePoint(p, records, u)
	}

	for _, rec := range records {
		empty.Append(formatCoordinate(rec.Lat), formatCoordinate(rec.Lon), formatValue(rec.Value))
	}
	return empty, nil
}

func (c *Client) fetch(ctx context.Context, u string) ([]record, error) {
	log.Printf("DEBUG: strang: GET %s", u)
	resp, err := c.getter.GetAs(ctx, u, fetch.MediaJSON)
	if err != nil {
		return nil, err
	}
	var records []record
	if err := json.Unmarshal(resp.Body, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", fetch.ErrRequestFailed, u, err)
	}
	return records, nil
}

func parsePoint(p Parameter, records []record, u string) (*table.Table, error) {
	tbl := table.NewIndexed(p.Meaning)
	for i, rec := range records {
		if rec.DateTime == nil {
			return table.NewIndexed(p.Meaning), fmt.Errorf("%w: %s: row %d has no date_time", fetch.ErrRequestFailed, u, i)
		}
		ts, err := ParseDate(*rec.DateTime)
		if err != nil {
			return table.NewIndexed(p.Meaning), fmt.Errorf("%w: %s: row %d: %v", fetch.ErrRequestFailed, u, i, err)
		}
		tbl.AppendAt(ts, formatValue(rec.Value))
	}
	tbl.SortByIndex()
	return tbl, nil
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
