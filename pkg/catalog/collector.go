package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/spotify-catalog-client/pkg/client"
	"github.com/Sternrassler/spotify-catalog-client/pkg/pagination"
	"github.com/Sternrassler/spotify-catalog-client/pkg/spotify"
)

var spotifyAlbumTypeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "spotify_catalog_album_type_failures_total",
	Help: "Album type queries that failed after retries by album type and kind",
}, []string{"album_type", "kind"})

// AlbumLister lists one page of an artist's releases. *spotify.API satisfies it.
type AlbumLister interface {
	ArtistAlbums(ctx context.Context, artistID string, groups []spotify.AlbumType, market string, cursor pagination.Cursor) (pagination.Page[spotify.Album], error)
}

// TypeFailure records an album type whose listing could not be drained.
type TypeFailure struct {
	AlbumType spotify.AlbumType
	Kind      client.ErrorKind
	Err       error
}

// MarshalJSON renders the error as text.
func (f TypeFailure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		AlbumType spotify.AlbumType `json:"album_type"`
		Kind      client.ErrorKind  `json:"kind"`
		Error     string            `json:"error"`
	}{f.AlbumType, f.Kind, errString(f.Err)})
}

// AlbumCollection is the deduplicated union of an artist's releases across
// album types.
type AlbumCollection struct {
	ArtistID string `json:"artist_id"`
	Market   string `json:"market,omitempty"`

	// Albums holds each release once, in first-seen order.
	Albums []spotify.Album `json:"albums"`

	// Sources maps album id to the type query that first returned it.
	Sources map[string]spotify.AlbumType `json:"sources"`

	Failed        []TypeFailure              `json:"failed,omitempty"`
	Discrepancies []pagination.CountMismatch `json:"discrepancies,omitempty"`
}

// Complete reports whether every type query was drained.
func (c *AlbumCollection) Complete() bool {
	return len(c.Failed) == 0
}

// IDs returns the album ids in first-seen order.
func (c *AlbumCollection) IDs() []string {
	ids := make([]string, len(c.Albums))
	for i, a := range c.Albums {
		ids[i] = a.ID
	}
	return ids
}

// Collector gathers an artist's complete release list. A single query with
// every group omits some compilations, so each album type is queried on its
// own and the results are merged.
type Collector struct {
	lister   AlbumLister
	retrier  pagination.Retrier
	types    []spotify.AlbumType
	pageSize int
	logger   zerolog.Logger
}

// NewCollector creates a collector querying spotify.CatalogAlbumTypes.
func NewCollector(lister AlbumLister, retrier pagination.Retrier, pageSize int, logger zerolog.Logger) *Collector {
	if pageSize <= 0 || pageSize > spotify.MaxArtistAlbumsLimit {
		pageSize = spotify.MaxArtistAlbumsLimit
	}
	return &Collector{
		lister:   lister,
		retrier:  retrier,
		types:    spotify.CatalogAlbumTypes,
		pageSize: pageSize,
		logger:   logger,
	}
}

// WithTypes overrides the album types and their query order.
func (c *Collector) WithTypes(types []spotify.AlbumType) *Collector {
	cp := *c
	cp.types = types
	return &cp
}

// CollectAlbums drains one listing per album type, in order, and unions the
// results by id. The first occurrence of an id wins.
//
// A type whose listing fails after retries is recorded in Failed and the
// remaining types still run. The error return is reserved for a malformed
// artist id or market and for cancellation; on cancellation the partial
// collection is returned with it.
func (c *Collector) CollectAlbums(ctx context.Context, artistID, market string) (*AlbumCollection, error) {
	if !ValidID(artistID) {
		return nil, fmt.Errorf("%w: artist %q", ErrInvalidID, artistID)
	}
	if market != "" && !ValidMarket(market) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMarket, market)
	}

	coll := &AlbumCollection{
		ArtistID: artistID,
		Market:   market,
		Sources:  make(map[string]spotify.AlbumType),
	}
	index := make(map[string]int)

	for _, albumType := range c.types {
		if err := ctx.Err(); err != nil {
			return coll, fmt.Errorf("collect albums for %s: %w", artistID, err)
		}

		p := pagination.New(c.typeFetcher(artistID, albumType, market), c.retrier, c.pageSize).
			WithListing("artist_albums_" + string(albumType)).
			WithLogger(c.logger)

		added := 0
		for album := range p.All(ctx) {
			if album.ID == "" {
				continue
			}
			if i, dup := index[album.ID]; dup {
				if first := coll.Albums[i]; first.ReleaseDate != album.ReleaseDate {
					c.logger.Debug().
						Str("artist_id", artistID).
						Str("album_id", album.ID).
						Str("kept_type", string(coll.Sources[album.ID])).
						Str("album_type", string(albumType)).
						Str("kept_release_date", first.ReleaseDate).
						Str("release_date", album.ReleaseDate).
						Msg("Conflicting album metadata across types, keeping first")
				}
				continue
			}
			index[album.ID] = len(coll.Albums)
			coll.Albums = append(coll.Albums, album)
			coll.Sources[album.ID] = albumType
			added++
		}

		if err := p.Err(); err != nil {
			if ctx.Err() != nil {
				return coll, fmt.Errorf("collect albums for %s: %w", artistID, err)
			}

			kind := client.KindOf(err)
			spotifyAlbumTypeFailuresTotal.WithLabelValues(string(albumType), string(kind)).Inc()
			c.logger.Warn().
				Err(err).
				Str("artist_id", artistID).
				Str("album_type", string(albumType)).
				Str("kind", string(kind)).
				Msg("Album type query failed")

			coll.Failed = append(coll.Failed, TypeFailure{AlbumType: albumType, Kind: kind, Err: err})
			continue
		}

		if d := p.Discrepancy(); d != nil {
			coll.Discrepancies = append(coll.Discrepancies, *d)
		}

		c.logger.Debug().
			Str("artist_id", artistID).
			Str("album_type", string(albumType)).
			Int("new", added).
			Int("total", len(coll.Albums)).
			Msg("Album type collected")
	}

	c.logger.Info().
		Str("artist_id", artistID).
		Int("albums", len(coll.Albums)).
		Int("failed_types", len(coll.Failed)).
		Msg("Album collection complete")

	return coll, nil
}

func (c *Collector) typeFetcher(artistID string, albumType spotify.AlbumType, market string) pagination.FetchFunc[spotify.Album] {
	groups := []spotify.AlbumType{albumType}
	return func(ctx context.Context, cursor pagination.Cursor) (pagination.Page[spotify.Album], error) {
		return c.lister.ArtistAlbums(ctx, artistID, groups, market, cursor)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
