package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Sternrassler/spotify-catalog-client/pkg/logging"
	"github.com/Sternrassler/spotify-catalog-client/pkg/pagination"
	"github.com/Sternrassler/spotify-catalog-client/pkg/spotify"
)

// PlaylistCatalog is the result of a playlist fetch.
type PlaylistCatalog struct {
	FetchID  string            `json:"fetch_id"`
	Playlist *spotify.Playlist `json:"playlist,omitempty"`

	// Items holds every entry in playlist order, local and removed ones included.
	Items []spotify.PlaylistItem `json:"items"`

	// Tracks holds hydrated tracks by id.
	Tracks map[string]spotify.Track `json:"tracks,omitempty"`

	Failures    []Failure                 `json:"failures,omitempty"`
	Discrepancy *pagination.CountMismatch `json:"discrepancy,omitempty"`

	Duration time.Duration `json:"duration"`
}

// FetchPlaylist retrieves playlist metadata, every entry and the hydrated
// tracks of its non-local entries. Hydration failures are recorded in
// Failures; the error return means the playlist itself could not be read.
func (c *Catalog) FetchPlaylist(ctx context.Context, playlistID string) (*PlaylistCatalog, error) {
	start := time.Now()
	pc := &PlaylistCatalog{FetchID: uuid.NewString()}
	defer func() { pc.Duration = time.Since(start) }()

	if !ValidID(playlistID) {
		return pc, fmt.Errorf("%w: playlist %q", ErrInvalidID, playlistID)
	}
	logger := logging.WithFetch(c.logger, pc.FetchID, "").With().Str("playlist_id", playlistID).Logger()

	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		playlist, err := c.api.Playlist(ctx, playlistID)
		pc.Playlist = playlist
		return err
	})
	if err != nil {
		return pc, fmt.Errorf("fetch playlist %s: %w", playlistID, err)
	}

	fetch := func(ctx context.Context, cursor pagination.Cursor) (pagination.Page[spotify.PlaylistItem], error) {
		return c.api.PlaylistItems(ctx, playlistID, c.opts.Market, cursor)
	}
	p := pagination.New(fetch, c.retrier, c.opts.PlaylistPageSize).
		WithListing("playlist_items").
		WithLogger(logger)

	var ids []string
	for item := range p.All(ctx) {
		pc.Items = append(pc.Items, item)
		if item.Track != nil && !item.IsLocal && item.Track.ID != "" {
			ids = append(ids, item.Track.ID)
		}
	}
	pc.Discrepancy = p.Discrepancy()
	if err := p.Err(); err != nil {
		return pc, fmt.Errorf("fetch playlist %s items: %w", playlistID, err)
	}

	tracks, err := pagination.FetchInBatches(ctx, c.retrier, ids, c.opts.TracksBatchSize, c.tracksBatch())
	pc.Tracks = tracks
	if err != nil {
		if ctx.Err() != nil {
			return pc, fmt.Errorf("hydrate playlist %s tracks: %w", playlistID, err)
		}
		pc.Failures = batchFailures("track", err)
	}

	logger.Info().
		Int("items", len(pc.Items)).
		Int("tracks", len(pc.Tracks)).
		Int("failures", len(pc.Failures)).
		Dur("duration", time.Since(start)).
		Msg("Playlist fetch complete")
	return pc, nil
}
