package metobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/i474232898/smhi-opendata/internal/fetch"
	"github.com/i474232898/smhi-opendata/internal/table"
)

// PeriodKind names one of the four coverage windows.
type PeriodKind string

const (
	LatestHour       PeriodKind = "latest-hour"
	LatestDay        PeriodKind = "latest-day"
	LatestMonths     PeriodKind = "latest-months"
	CorrectedArchive PeriodKind = "corrected-archive"
)

// PeriodKinds lists the period kinds from shortest to longest window.
var PeriodKinds = []PeriodKind{LatestHour, LatestDay, LatestMonths, CorrectedArchive}

// ParsePeriodKind validates a period key.
func ParsePeriodKind(s string) (PeriodKind, error) {
	for _, k := range PeriodKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown period %q", ErrNotFound, s)
}

func periodRank(key string) int {
	for i, k := range PeriodKinds {
		if string(k) == key {
			return i
		}
	}
	return len(PeriodKinds)
}

func sortPeriods(periods []PeriodEntry) {
	sort.SliceStable(periods, func(a, b int) bool {
		ra, rb := periodRank(periods[a].Key), periodRank(periods[b].Key)
		if ra != rb {
			return ra < rb
		}
		return periods[a].Key < periods[b].Key
	})
}

// Position is one entry of a station's location history.
type Position struct {
	From      Epoch   `json:"from"`
	To        Epoch   `json:"to"`
	Height    float64 `json:"height"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PeriodEntry is a period advertised by a station.
type PeriodEntry struct {
	Header
	From Epoch `json:"from"`
	To   Epoch `json:"to"`
}

// Periods is the period list of a station or station set.
type Periods struct {
	Header
	URL               string
	Owner             string
	OwnerCategory     string
	MeasuringStations string
	Active            bool
	From              time.Time
	To                time.Time
	Position          []Position
	Periods           []PeriodEntry

	getter Getter
}

// DataBundle is one downloadable payload of a period.
type DataBundle struct {
	Header
}

// Period is a resolved data bundle list.
type Period struct {
	Header
	URL  string
	From time.Time
	To   time.Time
	Data []DataBundle

	getter Getter
}

// Select resolves the data bundle list of a period.
func (p *Periods) Select(ctx context.Context, sel Selection) (*Period, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}
	if sel.StationSet != "" {
		return nil, fmt.Errorf("%w: periods cannot be selected by %s", ErrNotFound, sel)
	}

	entry, err := pick(p.Periods, sel, "period")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Header
		From Epoch        `json:"from"`
		To   Epoch        `json:"to"`
		Data []DataBundle `json:"data"`
	}
	url, err := follow(ctx, p.getter, entry.Header, &payload)
	if err != nil {
		return nil, err
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("%w: %s: missing data list", ErrMalformedCatalog, url)
	}

	return &Period{
		Header: payload.Header,
		URL:    url,
		From:   payload.From.Time,
		To:     payload.To.Time,
		Data:   payload.Data,
		getter: p.getter,
	}, nil
}

// Observations resolves the period of the given kind and decodes its file.
func (p *Periods) Observations(ctx context.Context, kind PeriodKind) (*Observations, error) {
	period, err := p.Select(ctx, ByKey(string(kind)))
	if err != nil {
		return nil, err
	}
	return period.Observations(ctx)
}

// Observations is a decoded observation file.
type Observations struct {
	URL      string
	Table    *table.Table
	Metadata Metadata
}

// Observations downloads the first text/plain data link and decodes it.
func (p *Period) Observations(ctx context.Context) (*Observations, error) {
	var href string
	for _, d := range p.Data {
		if l, err := d.LinkFor(fetch.MediaText); err == nil {
			href = l.Href
			break
		}
	}
	if href == "" {
		return nil, fmt.Errorf("%w: %s has no %s data link", ErrUnsupportedMediaType, p.URL, fetch.MediaText)
	}

	resp, err := p.getter.GetAs(ctx, href, fetch.MediaText)
	if err != nil {
		return nil, err
	}

	tbl, meta, err := Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", href, err)
	}
	return &Observations{URL: href, Table: tbl, Metadata: meta}, nil
}
