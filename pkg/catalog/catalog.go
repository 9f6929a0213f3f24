// Package catalog reconstructs complete artist catalogs from the Spotify Web
// API: every release across album types, hydrated album records, full track
// listings and ISRC-bearing track records.
//
// All requests go through one Retrier and therefore one request gate, so
// concurrent fetches share the same spacing.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/spotify-catalog-client/pkg/client"
	"github.com/Sternrassler/spotify-catalog-client/pkg/logging"
	"github.com/Sternrassler/spotify-catalog-client/pkg/pagination"
	"github.com/Sternrassler/spotify-catalog-client/pkg/spotify"
)

// Prometheus metrics for catalog fetches.
var (
	spotifyCatalogFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotify_catalog_fetches_total",
		Help: "Artist catalog fetches by outcome",
	}, []string{"outcome"})

	spotifyCatalogFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spotify_catalog_fetch_duration_seconds",
		Help:    "Artist catalog fetch duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

// API is the subset of the Web API the catalog uses. *spotify.API satisfies it.
type API interface {
	AlbumLister
	Artist(ctx context.Context, id string) (*spotify.Artist, error)
	ArtistTopTracks(ctx context.Context, artistID, market string) ([]spotify.Track, error)
	SeveralAlbums(ctx context.Context, ids []string, market string) ([]*spotify.FullAlbum, error)
	AlbumTracks(ctx context.Context, albumID, market string, cursor pagination.Cursor) (pagination.Page[spotify.SimpleTrack], error)
	SeveralTracks(ctx context.Context, ids []string, market string) ([]*spotify.Track, error)
	Playlist(ctx context.Context, id string) (*spotify.Playlist, error)
	PlaylistItems(ctx context.Context, playlistID, market string, cursor pagination.Cursor) (pagination.Page[spotify.PlaylistItem], error)
}

// Options tune catalog fetches.
type Options struct {
	Market           string
	PageSize         int
	PlaylistPageSize int
	AlbumsBatchSize  int
	TracksBatchSize  int
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		Market:           "US",
		PageSize:         spotify.MaxArtistAlbumsLimit,
		PlaylistPageSize: spotify.MaxPlaylistItemsLimit,
		AlbumsBatchSize:  spotify.MaxSeveralAlbums,
		TracksBatchSize:  spotify.MaxSeveralTracks,
	}
}

// Failure names one entity that could not be retrieved.
type Failure struct {
	// Entity is "album_type", "album", "album_tracks" or "track".
	Entity string
	ID     string
	Kind   client.ErrorKind
	Err    error
}

// MarshalJSON renders the error as text.
func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Entity string           `json:"entity"`
		ID     string           `json:"id"`
		Kind   client.ErrorKind `json:"kind"`
		Error  string           `json:"error"`
	}{f.Entity, f.ID, f.Kind, errString(f.Err)})
}

// ArtistCatalog is the result of one artist fetch.
type ArtistCatalog struct {
	FetchID  string          `json:"fetch_id"`
	ArtistID string          `json:"artist_id"`
	Artist   *spotify.Artist `json:"artist,omitempty"`

	Collection *AlbumCollection `json:"collection,omitempty"`

	// Albums holds hydrated album records by id.
	Albums map[string]spotify.FullAlbum `json:"albums,omitempty"`

	// AlbumTracks holds every album's complete track listing in order.
	AlbumTracks map[string][]spotify.SimpleTrack `json:"album_tracks,omitempty"`

	// Tracks holds hydrated tracks, with ISRC, by id.
	Tracks map[string]spotify.Track `json:"tracks,omitempty"`

	Failures []Failure `json:"failures,omitempty"`

	// Err is set when the fetch could not run to completion.
	Err error `json:"-"`

	Duration time.Duration `json:"duration"`
}

// Partial reports whether some entities are missing.
func (c *ArtistCatalog) Partial() bool {
	return c.Err != nil || len(c.Failures) > 0
}

// Catalog fetches artist catalogs, playlists and top tracks.
type Catalog struct {
	api       API
	retrier   pagination.Retrier
	collector *Collector
	opts      Options
	logger    zerolog.Logger
}

// New creates a Catalog.
func New(api API, retrier pagination.Retrier, opts Options, logger zerolog.Logger) *Catalog {
	defaults := DefaultOptions()
	if opts.PageSize <= 0 || opts.PageSize > spotify.MaxArtistAlbumsLimit {
		opts.PageSize = defaults.PageSize
	}
	if opts.PlaylistPageSize <= 0 || opts.PlaylistPageSize > spotify.MaxPlaylistItemsLimit {
		opts.PlaylistPageSize = defaults.PlaylistPageSize
	}
	if opts.AlbumsBatchSize <= 0 || opts.AlbumsBatchSize > spotify.MaxSeveralAlbums {
		opts.AlbumsBatchSize = defaults.AlbumsBatchSize
	}
	if opts.TracksBatchSize <= 0 || opts.TracksBatchSize > spotify.MaxSeveralTracks {
		opts.TracksBatchSize = defaults.TracksBatchSize
	}

	return &Catalog{
		api:       api,
		retrier:   retrier,
		collector: NewCollector(api, retrier, opts.PageSize, logger),
		opts:      opts,
		logger:    logger,
	}
}

// Collector returns the album collector used by Fetch.
func (c *Catalog) Collector() *Collector {
	return c.collector
}

// Options returns the effective options.
func (c *Catalog) Options() Options {
	return c.opts
}

// Fetch retrieves one artist's complete catalog: artist record, every
// release across album types, hydrated albums, complete track listings and
// hydrated tracks.
//
// Entity-level failures are recorded in Failures and the fetch goes on. The
// returned error, also stored in Err, means the fetch stopped early: bad id,
// unknown artist or cancellation. The catalog is never nil.
func (c *Catalog) Fetch(ctx context.Context, artistID string) (*ArtistCatalog, error) {
	start := time.Now()
	cat := &ArtistCatalog{
		FetchID:  uuid.NewString(),
		ArtistID: artistID,
	}
	logger := logging.WithFetch(c.logger, cat.FetchID, artistID)

	err := c.fetch(ctx, cat, logger)
	cat.Err = err
	cat.Duration = time.Since(start)
	spotifyCatalogFetchDuration.Observe(cat.Duration.Seconds())

	switch {
	case err != nil:
		spotifyCatalogFetchesTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Dur("duration", cat.Duration).Msg("Catalog fetch failed")
	case len(cat.Failures) > 0:
		spotifyCatalogFetchesTotal.WithLabelValues("partial").Inc()
		logger.Warn().
			Int("failures", len(cat.Failures)).
			Int("albums", len(cat.Albums)).
			Int("tracks", len(cat.Tracks)).
			Dur("duration", cat.Duration).
			Msg("Catalog fetch partially complete")
	default:
		spotifyCatalogFetchesTotal.WithLabelValues("complete").Inc()
		logger.Info().
			Int("albums", len(cat.Albums)).
			Int("tracks", len(cat.Tracks)).
			Dur("duration", cat.Duration).
			Msg("Catalog fetch complete")
	}
	return cat, err
}

func (c *Catalog) fetch(ctx context.Context, cat *ArtistCatalog, logger zerolog.Logger) error {
	if !ValidID(cat.ArtistID) {
		return fmt.Errorf("%w: artist %q", ErrInvalidID, cat.ArtistID)
	}

	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		artist, err := c.api.Artist(ctx, cat.ArtistID)
		cat.Artist = artist
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch artist %s: %w", cat.ArtistID, err)
	}

	coll, err := c.collector.CollectAlbums(ctx, cat.ArtistID, c.opts.Market)
	cat.Collection = coll
	if err != nil {
		return err
	}
	for _, f := range coll.Failed {
		cat.Failures = append(cat.Failures, Failure{Entity: "album_type", ID: string(f.AlbumType), Kind: f.Kind, Err: f.Err})
	}

	h, err := c.hydrateAlbums(ctx, coll.IDs(), logger)
	cat.Albums = h.albums
	cat.AlbumTracks = h.albumTracks
	cat.Tracks = h.tracks
	cat.Failures = append(cat.Failures, h.failures...)
	return err
}

// hydration is the outcome of hydrateAlbums.
type hydration struct {
	albums      map[string]spotify.FullAlbum
	albumTracks map[string][]spotify.SimpleTrack
	tracks      map[string]spotify.Track
	failures    []Failure
}

// hydrateAlbums resolves album ids to full albums, their complete track
// listings and hydrated tracks. Entity failures are collected; the error is
// returned only on cancellation, with whatever was hydrated so far.
func (c *Catalog) hydrateAlbums(ctx context.Context, ids []string, logger zerolog.Logger) (*hydration, error) {
	h := &hydration{}

	albums, err := pagination.FetchInBatches(ctx, c.retrier, ids, c.opts.AlbumsBatchSize, c.albumsBatch())
	h.albums = albums
	if err := recordBatch(ctx, &h.failures, "album", err); err != nil {
		return h, err
	}

	h.albumTracks = make(map[string][]spotify.SimpleTrack, len(albums))
	var trackIDs []string
	for _, id := range ids {
		album, ok := albums[id]
		if !ok {
			continue
		}
		listing, err := c.albumTracks(ctx, album)
		if err != nil {
			if ctx.Err() != nil {
				return h, fmt.Errorf("album tracks for %s: %w", id, err)
			}
			logger.Warn().Err(err).Str("album_id", id).Msg("Album track listing incomplete")
			h.failures = append(h.failures, Failure{Entity: "album_tracks", ID: id, Kind: client.KindOf(err), Err: err})
		}
		h.albumTracks[id] = listing
		for _, t := range listing {
			if t.ID != "" {
				trackIDs = append(trackIDs, t.ID)
			}
		}
	}

	tracks, err := pagination.FetchInBatches(ctx, c.retrier, trackIDs, c.opts.TracksBatchSize, c.tracksBatch())
	h.tracks = tracks
	return h, recordBatch(ctx, &h.failures, "track", err)
}

// albumTracks returns the album's complete track listing, paging past the
// embedded first page when the album is longer. On error the tracks
// gathered so far are returned with it.
func (c *Catalog) albumTracks(ctx context.Context, album spotify.FullAlbum) ([]spotify.SimpleTrack, error) {
	listing := append([]spotify.SimpleTrack(nil), album.Tracks.Items...)
	if album.Tracks.Next == "" && album.Tracks.Total <= len(listing) {
		return listing, nil
	}

	fetch := func(ctx context.Context, cursor pagination.Cursor) (pagination.Page[spotify.SimpleTrack], error) {
		return c.api.AlbumTracks(ctx, album.ID, c.opts.Market, cursor)
	}
	p := pagination.New(fetch, c.retrier, spotify.MaxAlbumTracksLimit).
		WithListing("album_tracks").
		WithLogger(c.logger).
		WithStart(pagination.Cursor{Offset: len(listing), Limit: spotify.MaxAlbumTracksLimit})

	for t := range p.All(ctx) {
		listing = append(listing, t)
	}
	return listing, p.Err()
}

// recordBatch turns a batch error into failures. Only cancellation is returned.
func recordBatch(ctx context.Context, failures *[]Failure, entity string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("hydrate %ss: %w", entity, err)
	}
	*failures = append(*failures, batchFailures(entity, err)...)
	return nil
}

// batchFailures names every id of a failed batch.
func batchFailures(entity string, err error) []Failure {
	kind := client.KindOf(err)
	var batchErr *pagination.BatchError
	if !errors.As(err, &batchErr) {
		return []Failure{{Entity: entity, Kind: kind, Err: err}}
	}

	failures := make([]Failure, 0, len(batchErr.FailedIDs))
	for _, id := range batchErr.FailedIDs {
		failures = append(failures, Failure{Entity: entity, ID: id, Kind: kind, Err: err})
	}
	return failures
}

func (c *Catalog) albumsBatch() pagination.BatchFunc[spotify.FullAlbum] {
	return func(ctx context.Context, ids []string) ([]*spotify.FullAlbum, error) {
		return c.api.SeveralAlbums(ctx, ids, c.opts.Market)
	}
}

func (c *Catalog) tracksBatch() pagination.BatchFunc[spotify.Track] {
	return func(ctx context.Context, ids []string) ([]*spotify.Track, error) {
		return c.api.SeveralTracks(ctx, ids, c.opts.Market)
	}
}

// TopTracks returns an artist's top tracks in market, or the default market.
func (c *Catalog) TopTracks(ctx context.Context, artistID, market string) ([]spotify.Track, error) {
	if !ValidID(artistID) {
		return nil, fmt.Errorf("%w: artist %q", ErrInvalidID, artistID)
	}
	if market == "" {
		market = c.opts.Market
	}
	if !ValidMarket(market) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMarket, market)
	}

	var tracks []spotify.Track
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		tracks, err = c.api.ArtistTopTracks(ctx, artistID, market)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("top tracks for %s: %w", artistID, err)
	}
	return tracks, nil
}
