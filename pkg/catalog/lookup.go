package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/spotify-catalog-client/pkg/logging"
	"github.com/Sternrassler/spotify-catalog-client/pkg/pagination"
	"github.com/Sternrassler/spotify-catalog-client/pkg/spotify"
)

// TrackLookup is the result of FetchTracks.
type TrackLookup struct {
	FetchID string `json:"fetch_id"`

	// IDs holds the well-formed requested ids, deduplicated, in request order.
	IDs []string `json:"ids"`

	// Invalid holds requested ids that are not Spotify ids.
	Invalid []string `json:"invalid,omitempty"`

	Tracks map[string]spotify.Track `json:"tracks"`

	// NotFound holds ids the Web API answered with an empty slot.
	NotFound []string `json:"not_found,omitempty"`

	Failures []Failure    `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Ordered returns the resolved tracks in request order.
func (l *TrackLookup) Ordered() []spotify.Track {
	out := make([]spotify.Track, 0, len(l.Tracks))
	for _, id := range l.IDs {
		if t, ok := l.Tracks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// AlbumLookup is the result of FetchAlbums.
type AlbumLookup struct {
	FetchID  string   `json:"fetch_id"`
	IDs      []string `json:"ids"`
	Invalid  []string `json:"invalid,omitempty"`
	NotFound []string `json:"not_found,omitempty"`

	Albums      map[string]spotify.FullAlbum     `json:"albums"`
	AlbumTracks map[string][]spotify.SimpleTrack `json:"album_tracks,omitempty"`
	Tracks      map[string]spotify.Track         `json:"tracks,omitempty"`

	Failures []Failure    `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Rows flattens the looked-up albums in request order, one row per
// hydrated track.
func (l *AlbumLookup) Rows() []TrackRow {
	return flattenAlbums(l.IDs, l.Albums, l.AlbumTracks, l.Tracks)
}

// FetchTracks resolves track ids through the several-tracks endpoint,
// TracksBatchSize ids per request. Malformed ids are reported in Invalid and
// never sent. Failed batches are recorded in Failures; the error return means
// no id was usable or the fetch was cancelled.
func (c *Catalog) FetchTracks(ctx context.Context, ids []string) (*TrackLookup, error) {
	start := time.Now()
	l := &TrackLookup{FetchID: uuid.NewString()}
	defer func() { l.Duration = time.Since(start) }()

	l.IDs, l.Invalid = splitValid(ids)
	logger := c.lookupLogger(l.FetchID, "track", len(l.IDs), len(l.Invalid))
	if len(l.IDs) == 0 {
		return l, fmt.Errorf("%w: no valid track ids in %d", ErrInvalidID, len(ids))
	}

	tracks, err := pagination.FetchInBatches(ctx, c.retrier, l.IDs, c.opts.TracksBatchSize, c.tracksBatch())
	l.Tracks = tracks
	if err := recordBatch(ctx, &l.Failures, "track", err); err != nil {
		return l, err
	}
	l.NotFound = missing(l.IDs, l.Failures, func(id string) bool {
		_, ok := tracks[id]
		return ok
	})

	logger.Info().
		Int("tracks", len(l.Tracks)).
		Int("not_found", len(l.NotFound)).
		Int("failures", len(l.Failures)).
		Dur("duration", time.Since(start)).
		Msg("Track lookup complete")
	return l, nil
}

// FetchAlbums resolves album ids to full albums, AlbumsBatchSize ids per
// request, then completes every album's track listing and hydrates its
// tracks for ISRCs. Error semantics follow FetchTracks.
func (c *Catalog) FetchAlbums(ctx context.Context, ids []string) (*AlbumLookup, error) {
	start := time.Now()
	l := &AlbumLookup{FetchID: uuid.NewString()}
	defer func() { l.Duration = time.Since(start) }()

	l.IDs, l.Invalid = splitValid(ids)
	logger := c.lookupLogger(l.FetchID, "album", len(l.IDs), len(l.Invalid))
	if len(l.IDs) == 0 {
		return l, fmt.Errorf("%w: no valid album ids in %d", ErrInvalidID, len(ids))
	}

	h, err := c.hydrateAlbums(ctx, l.IDs, logger)
	l.Albums = h.albums
	l.AlbumTracks = h.albumTracks
	l.Tracks = h.tracks
	l.Failures = h.failures
	if err != nil {
		return l, err
	}
	l.NotFound = missing(l.IDs, l.Failures, func(id string) bool {
		_, ok := h.albums[id]
		return ok
	})

	logger.Info().
		Int("albums", len(l.Albums)).
		Int("tracks", len(l.Tracks)).
		Int("not_found", len(l.NotFound)).
		Int("failures", len(l.Failures)).
		Dur("duration", time.Since(start)).
		Msg("Album lookup complete")
	return l, nil
}

func (c *Catalog) lookupLogger(fetchID, entity string, valid, invalid int) zerolog.Logger {
	logger := logging.WithFetch(c.logger, fetchID, "").With().Str("entity", entity).Logger()
	if invalid > 0 {
		logger.Warn().Int("valid", valid).Int("invalid", invalid).Msg("Skipping malformed ids")
	}
	return logger
}

// splitValid deduplicates ids and separates malformed ones.
func splitValid(ids []string) (valid, invalid []string) {
	for _, id := range pagination.Dedupe(ids) {
		if ValidID(id) {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}
	return valid, invalid
}

// missing returns the ids neither resolved nor named by a failure.
func missing(ids []string, failures []Failure, resolved func(string) bool) []string {
	failed := make(map[string]struct{}, len(failures))
	for _, f := range failures {
		failed[f.ID] = struct{}{}
	}

	var out []string
	for _, id := range ids {
		if resolved(id) {
			continue
		}
		if _, ok := failed[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out
}
