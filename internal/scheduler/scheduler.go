package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/smhi-opendata/internal/metobs"
)

const (
	// probeTimeout bounds a single walk of the catalog root.
	probeTimeout = 30 * time.Second

	defaultInterval = 15 * time.Minute
)

// Catalog is the part of the MetObs navigator the probe needs.
type Catalog interface {
	Versions(ctx context.Context) (*metobs.Versions, error)
}

// Status is the outcome of the last probe.
type Status struct {
	CheckedAt      time.Time `json:"checkedAt"`
	CatalogUpdated time.Time `json:"catalogUpdated,omitempty"`
	Versions       int       `json:"versions"`
	Healthy        bool      `json:"healthy"`
	Error          string    `json:"error,omitempty"`
}

// Scheduler periodically checks that the MetObs catalog answers.
type Scheduler struct {
	scheduler *gocron.Scheduler
	catalog   Catalog
	interval  time.Duration

	mu   sync.RWMutex
	last Status
}

// New creates a new Scheduler.
func New(catalog Catalog, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		catalog:   catalog,
		interval:  interval,
	}
}

// Start schedules the probe job and starts the underlying scheduler. The
// first probe runs immediately.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		log.Printf("WARN: scheduler: probe interval %s is not positive, using %s", interval, defaultInterval)
		interval = defaultInterval
	}

	_, err := s.scheduler.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		s.Check(ctx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Check walks the catalog root once and records the outcome.
func (s *Scheduler) Check(ctx context.Context) Status {
	st := Status{CheckedAt: time.Now().UTC()}

	versions, err := s.catalog.Versions(ctx)
	if err != nil {
		log.Printf("WARN: scheduler: catalog probe failed: %v", err)
		st.Error = err.Error()
	} else {
		st.Healthy = true
		st.CatalogUpdated = versions.Updated.Time
		st.Versions = len(versions.Versions)
		log.Printf("DEBUG: scheduler: catalog %s up, %d versions", versions.Key, st.Versions)
	}

	s.mu.Lock()
	s.last = st
	s.mu.Unlock()
	return st
}

// Last returns the most recent probe result; CheckedAt is zero before the first.
func (s *Scheduler) Last() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
