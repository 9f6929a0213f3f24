package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/spotify-catalog-client/pkg/pagination"
)

var spotifyOrchestratorInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "spotify_orchestrator_in_flight",
	Help: "Artist fetches currently running in the orchestrator",
})

// DefaultWorkers is the worker count used when none is given.
const DefaultWorkers = 4

// Fetcher fetches one artist catalog. *Catalog satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, artistID string) (*ArtistCatalog, error)
}

// Orchestrator fans artist fetches out over a bounded worker pool. Request
// spacing is enforced by the gate shared inside the Fetcher, not per worker.
type Orchestrator struct {
	fetcher Fetcher
	workers int
	logger  zerolog.Logger
}

// NewOrchestrator creates an orchestrator. A non-positive workers uses
// DefaultWorkers.
func NewOrchestrator(f Fetcher, workers int, logger zerolog.Logger) *Orchestrator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Orchestrator{fetcher: f, workers: workers, logger: logger}
}

// Workers returns the default pool size.
func (o *Orchestrator) Workers() int {
	return o.workers
}

// FetchMultiple fetches every artist with at most workers fetches in flight
// (the orchestrator default when workers <= 0). Duplicate ids are fetched
// once.
//
// Every requested artist gets an entry. A failed artist carries its error in
// ArtistCatalog.Err and never stops the others. Cancellation leaves artists
// not yet started with the context error.
func (o *Orchestrator) FetchMultiple(ctx context.Context, artistIDs []string, workers int) map[string]*ArtistCatalog {
	if workers <= 0 {
		workers = o.workers
	}
	ids := pagination.Dedupe(artistIDs)
	start := time.Now()

	var (
		mu      sync.Mutex
		results = make(map[string]*ArtistCatalog, len(ids))
	)
	store := func(cat *ArtistCatalog) {
		mu.Lock()
		results[cat.ArtistID] = cat
		mu.Unlock()
	}

	o.logger.Info().
		Int("artists", len(ids)).
		Int("workers", workers).
		Msg("Starting multi-artist fetch")

	// Tasks never return an error so one artist cannot cancel the rest.
	var g errgroup.Group
	g.SetLimit(workers)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			store(&ArtistCatalog{ArtistID: id, Err: fmt.Errorf("fetch not started: %w", err)})
			continue
		}
		g.Go(func() error {
			spotifyOrchestratorInFlight.Inc()
			defer spotifyOrchestratorInFlight.Dec()

			cat, err := o.fetch(ctx, id)
			if cat == nil {
				cat = &ArtistCatalog{ArtistID: id}
			}
			if err != nil && cat.Err == nil {
				cat.Err = err
			}
			store(cat)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, cat := range results {
		if cat.Err != nil {
			failed++
		}
	}
	o.logger.Info().
		Int("artists", len(ids)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Multi-artist fetch complete")

	return results
}

// fetch runs one task, turning a panic into that artist's error.
func (o *Orchestrator) fetch(ctx context.Context, artistID string) (cat *ArtistCatalog, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("artist_id", artistID).Interface("panic", r).Msg("Artist fetch panicked")
			cat, err = nil, fmt.Errorf("fetch artist %s: panic: %v", artistID, r)
		}
	}()
	return o.fetcher.Fetch(ctx, artistID)
}
