// Package metobs walks the SMHI MetObs catalog (versions, parameters,
// stations, periods, data) and decodes the observation files it links to.
//
// Every level is an immutable value produced by the previous level's Select.
// A level keeps the URL it was fetched from but no reference to its parent.
package metobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/smhi-opendata/internal/fetch"
)

// DefaultRootURL is the MetObs catalog root.
const DefaultRootURL = "https://opendata-download-metobs.smhi.se/api.json"

// SupportedVersion is the only catalog version this package understands.
const SupportedVersion = "1.0"

var (
	// ErrNotFound is returned when no entry of a level matches the selection
	// or the selection is not valid for that level.
	ErrNotFound = errors.New("not found in catalog")
	// ErrMalformedCatalog is returned for documents missing a required list
	// or carrying a non-numeric key where an id is expected.
	ErrMalformedCatalog = errors.New("malformed catalog")
	// ErrUnsupportedMediaType is returned when an entry has no link of the
	// requested media type.
	ErrUnsupportedMediaType = errors.New("no link with requested media type")
	// ErrSelectionMissing is returned for a Selection with no field set.
	ErrSelectionMissing = errors.New("no selection given")
	// ErrSelectionAmbiguous is returned for a Selection with several fields set.
	ErrSelectionAmbiguous = errors.New("more than one selection given")
	// ErrEmptyData is returned when an observation file decodes to no rows.
	ErrEmptyData = errors.New("observation file has no data")
)

// Getter is the part of fetch.Fetcher the navigator needs.
type Getter interface {
	GetAs(ctx context.Context, rawURL, mediaType string) (*fetch.Response, error)
}

// Epoch is an SMHI instant. The services mix seconds and milliseconds, so
// numbers below 2e10 in magnitude are read as seconds.
type Epoch struct {
	time.Time
}

const epochSecondsLimit = 2e10

// EpochFromNumber converts a raw SMHI timestamp to a UTC time.
func EpochFromNumber(x float64) time.Time {
	if math.Abs(x) < epochSecondsLimit {
		return time.Unix(int64(x), 0).UTC()
	}
	return time.UnixMilli(int64(x)).UTC()
}

func (e *Epoch) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var x float64
	if err := json.Unmarshal(b, &x); err != nil {
		return fmt.Errorf("epoch %s: %w", b, err)
	}
	e.Time = EpochFromNumber(x)
	return nil
}

// Link describes one representation of a child resource.
type Link struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

// Header is the record shared by every catalog node.
type Header struct {
	Key     string `json:"key"`
	Updated Epoch  `json:"updated"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Links   []Link `json:"link"`
}

func (h Header) head() Header { return h }

// LinkFor returns the first link of the given media type.
func (h Header) LinkFor(mediaType string) (Link, error) {
	for _, l := range h.Links {
		if l.Type == mediaType {
			return l, nil
		}
	}
	return Link{}, fmt.Errorf("%w: %q has no %s link", ErrUnsupportedMediaType, h.label(), mediaType)
}

func (h Header) label() string {
	if h.Key != "" {
		return h.Key
	}
	return h.Title
}

// Selection picks a child record. Exactly one field must be set.
type Selection struct {
	Key        string
	Title      string
	StationSet string
}

// ByKey selects a child by its key.
func ByKey(key string) Selection { return Selection{Key: key} }

// ByID selects a child by its numeric id.
func ByID(id int) Selection { return Selection{Key: strconv.Itoa(id)} }

// ByTitle selects a child by its exact title.
func ByTitle(title string) Selection { return Selection{Title: title} }

// ByStationSet selects a station set by key.
func ByStationSet(key string) Selection { return Selection{StationSet: key} }

func (s Selection) validate() error {
	n := 0
	for _, v := range []string{s.Key, s.Title, s.StationSet} {
		if v != "" {
			n++
		}
	}
	switch {
	case n == 0:
		return ErrSelectionMissing
	case n > 1:
		return fmt.Errorf("%w: %+v", ErrSelectionAmbiguous, s)
	}
	return nil
}

func (s Selection) String() string {
	switch {
	case s.Key != "":
		return "key " + strconv.Quote(s.Key)
	case s.Title != "":
		return "title " + strconv.Quote(s.Title)
	default:
		return "station set " + strconv.Quote(s.StationSet)
	}
}

type node interface {
	head() Header
}

// pick finds the record matched by sel's key or title.
func pick[T node](items []T, sel Selection, level string) (T, error) {
	var zero T
	for _, it := range items {
		h := it.head()
		if (sel.Key != "" && h.Key == sel.Key) || (sel.Title != "" && h.Title == sel.Title) {
			return it, nil
		}
	}
	return zero, fmt.Errorf("%w: no %s with %s", ErrNotFound, level, sel)
}

// follow fetches the child linked from h and decodes it into v.
func follow(ctx context.Context, g Getter, h Header, v any) (string, error) {
	link, err := h.LinkFor(fetch.MediaJSON)
	if err != nil {
		return "", err
	}
	resp, err := g.GetAs(ctx, link.Href, fetch.MediaJSON)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMalformedCatalog, link.Href, err)
	}
	return link.Href, nil
}

func numericKey(h Header, url string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(h.Key))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: non-numeric key %q", ErrMalformedCatalog, url, h.Key)
	}
	return n, nil
}

// Catalog is the entry point of the navigator.
type Catalog struct {
	getter  Getter
	rootURL string
}

// NewCatalog creates a catalog rooted at rootURL (DefaultRootURL when empty).
func NewCatalog(getter Getter, rootURL string) *Catalog {
	if rootURL == "" {
		rootURL = DefaultRootURL
	}
	return &Catalog{getter: getter, rootURL: rootURL}
}

// Version is an entry of the catalog root.
type Version struct {
	Header
}

// Versions is the catalog root level.
type Versions struct {
	Header
	URL      string
	Versions []Version

	getter Getter
}

// Versions fetches the catalog root.
func (c *Catalog) Versions(ctx context.Context) (*Versions, error) {
	resp, err := c.getter.GetAs(ctx, c.rootURL, fetch.MediaJSON)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Header
		Version []Version `json:"version"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedCatalog, c.rootURL, err)
	}
	if payload.Version == nil {
		return nil, fmt.Errorf("%w: %s: missing version list", ErrMalformedCatalog, c.rootURL)
	}

	return &Versions{
		Header:   payload.Header,
		URL:      c.rootURL,
		Versions: payload.Version,
		getter:   c.getter,
	}, nil
}

// Select descends into a catalog version. Only SupportedVersion is accepted.
func (v *Versions) Select(ctx context.Context, sel Selection) (*Parameters, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}
	if sel.StationSet != "" {
		return nil, fmt.Errorf("%w: versions cannot be selected by %s", ErrNotFound, sel)
	}

	version, err := pick(v.Versions, sel, "version")
	if err != nil {
		return nil, err
	}
	if version.Key != SupportedVersion {
		return nil, fmt.Errorf("%w: version %q is not supported, only %q", ErrNotFound, version.Key, SupportedVersion)
	}

	var payload struct {
		Header
		Resource []Parameter `json:"resource"`
	}
	url, err := follow(ctx, v.getter, version.Header, &payload)
	if err != nil {
		return nil, err
	}
	return newParameters(url, payload.Header, payload.Resource, v.getter)
}
