// Package smhitest serves recorded SMHI payloads over httptest so clients can
// be exercised without network access.
package smhitest

import (
	"embed"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
)

//go:embed testdata
var fixtures embed.FS

// Station ids present in the fixtures.
const (
	KaresuandoA = 192840
	Karesuando  = 192830
	Abisko      = 188790
	Stockholm   = 98210
)

// queryRoutes maps requests whose answer depends on the query string.
var queryRoutes = map[string]string{
	"/api/category/strang1g/version/1/geotype/point/lon/16/lat/58/parameter/118/data.json?from=2020-01-01&to=2020-01-02&interval=hourly": "strang/point_118_hourly.json",
	"/api/category/strang1g/version/1/geotype/point/lon/16/lat/58/parameter/118/data.json?from=2020-01-01&to=2020-01-02&interval=daily":  "strang/point_118_daily.json",
	"/api/category/strang1g/version/1/geotype/point/lon/16/lat/58/parameter/118/data.json?from=2020-01-01&to=2020-02-01&interval=monthly": "strang/point_118_monthly.json",
	"/api/category/strang1g/version/1/geotype/multipoint/validtime/2020-01-01T10:00:00Z/parameter/118/data.json?interval=hourly":         "strang/multipoint_118.json",
}

// Server is an httptest server answering like the SMHI open data hosts.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []string
}

// NewServer starts a fixture server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// MetObsRoot is the MetObs catalog root URL.
func (s *Server) MetObsRoot() string { return s.URL + "/api.json" }

// APIBase is the prefix of the STRÅNG, Mesan and Metfcst endpoints.
func (s *Server) APIBase() string { return s.URL + "/api" }

// Requests returns the request URIs served so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.RequestURI())
	s.mu.Unlock()

	if strings.Contains(r.URL.Path, "/lat/80/") {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Requested point is out of bounds"))
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	if r.URL.RawQuery != "" {
		if routed, ok := queryRoutes[r.URL.Path+"?"+r.URL.RawQuery]; ok {
			name = routed
		}
	}

	body, err := fs.ReadFile(fixtures, path.Join("testdata", name))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	switch path.Ext(name) {
	case ".csv":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "application/json")
		body = []byte(strings.ReplaceAll(string(body), "{{base}}", s.URL))
	}
	w.Write(body)
}
