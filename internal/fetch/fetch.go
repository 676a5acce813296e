package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// DefaultTimeout bounds a single GET against the SMHI services.
const DefaultTimeout = 200 * time.Second

// Media types requested from the SMHI services.
const (
	MediaJSON = "application/json"
	MediaText = "text/plain"
)

var (
	// ErrTransport is returned when the request never produced a response
	// (network failure, timeout, cancellation or an open circuit).
	ErrTransport = errors.New("transport error")
	// ErrOutOfRange is returned for non-200 answers whose body reports the
	// requested point or period as out of bounds.
	ErrOutOfRange = errors.New("requested resource is out of range")
	// ErrRequestFailed is returned for any other non-200 answer.
	ErrRequestFailed = errors.New("request failed")

	errServerError   = errors.New("server error")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// BackoffConfig controls exponential backoff behaviour. The zero value
// disables retries.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config bundles HTTP client and resilience settings.
type Config struct {
	Client    *http.Client
	Backoff   BackoffConfig
	UserAgent string
}

// Response is a completed HTTP exchange. Body is never decoded.
type Response struct {
	Body       []byte
	Header     http.Header
	StatusCode int
}

// Fetcher is a uniform GET wrapper shared by every SMHI client.
type Fetcher struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates a Fetcher. A nil client gets DefaultTimeout.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.Backoff.MaxRetries < 0 || (cfg.Backoff.MaxRetries > 0 && cfg.Backoff.InitialInterval <= 0) {
		return nil, errInvalidConfig
	}
	return &Fetcher{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}, nil
}

// NewDefault returns a Fetcher with a fresh client, DefaultTimeout and no retries.
// It panics if the zero Config is ever rejected by New.
func NewDefault() *Fetcher {
	f, err := New(Config{})
	if err != nil {
		panic(fmt.Sprintf("fetch: default config rejected: %v", err))
	}
	return f
}

// Get performs a GET without an Accept header.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	return f.GetAs(ctx, rawURL, "")
}

// GetAs performs a GET asking for the given media type.
func (f *Fetcher) GetAs(ctx context.Context, rawURL, mediaType string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %v", ErrRequestFailed, rawURL, err)
	}

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		if mediaType != "" {
			req.Header.Set("Accept", mediaType)
		}
		if f.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", f.cfg.UserAgent)
		}
		return req, nil
	}

	resp, err := f.doRequestWithResilience(ctx, f.breaker(u.Host), buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrTransport, rawURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		if strings.Contains(strings.ToLower(string(resp.Body)), "out of bounds") {
			return nil, fmt.Errorf("%w: GET %s: %s", ErrOutOfRange, rawURL, strings.TrimSpace(string(resp.Body)))
		}
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrRequestFailed, rawURL, resp.StatusCode)
	}

	return resp, nil
}

func (f *Fetcher) breaker(host string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	cb, ok := f.breakers[host]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        host,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("WARN: circuit %s changed from %s to %s", name, from, to)
			},
		})
		f.breakers[host] = cb
	}
	return cb
}

// doRequestWithResilience executes the request through the circuit breaker.
// Only transport failures are retried, and only when backoff is configured.
// Non-200 answers are returned to the caller for classification; 5xx still
// counts as a failure for the breaker.
func (f *Fetcher) doRequestWithResilience(
	ctx context.Context,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*Response, error) {
	var attempt int

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}

		var served *Response
		_, err = cb.Execute(func() (interface{}, error) {
			resp, execErr := f.cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			defer resp.Body.Close()

			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, readErr
			}

			served = &Response{
				Body:       body,
				Header:     resp.Header,
				StatusCode: resp.StatusCode,
			}
			if resp.StatusCode >= 500 {
				return nil, errServerError
			}
			return nil, nil
		})

		// A 5xx is a served response, not a transport failure.
		if served != nil {
			return served, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit breaker open: %v", err)
		}

		if attempt >= f.cfg.Backoff.MaxRetries {
			return nil, err
		}

		delay := f.cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > f.cfg.Backoff.MaxInterval && f.cfg.Backoff.MaxInterval > 0 {
			delay = f.cfg.Backoff.MaxInterval
		}
		log.Printf("DEBUG: retrying %s in %s after: %v", req.URL, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}
