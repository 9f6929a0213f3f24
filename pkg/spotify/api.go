// Package spotify wraps the Spotify Web API catalog endpoints.
//
// Every method performs a single attempt through a Sender and returns the
// classified *client.APIError on failure. Callers compose retries with a
// client.Retrier, per page or per batch.
package spotify

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/spotify-catalog-client/pkg/client"
	"github.com/Sternrassler/spotify-catalog-client/pkg/pagination"
)

// Request limits enforced by the Web API.
const (
	MaxSeveralAlbums      = 20
	MaxSeveralTracks      = 50
	MaxArtistAlbumsLimit  = 50
	MaxAlbumTracksLimit   = 50
	MaxPlaylistItemsLimit = 100
)

// Sender performs one Web API request. *client.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, req client.Request, out any) error
}

// API exposes typed catalog endpoints.
type API struct {
	sender Sender
}

// NewAPI creates an API on top of sender.
func NewAPI(sender Sender) *API {
	return &API{sender: sender}
}

// Artist fetches one artist.
func (a *API) Artist(ctx context.Context, id string) (*Artist, error) {
	var artist Artist
	err := a.sender.Send(ctx, client.Request{
		Endpoint: "/artists/{id}",
		Path:     "/artists/" + url.PathEscape(id),
	}, &artist)
	if err != nil {
		return nil, err
	}
	return &artist, nil
}

// ArtistAlbums fetches one page of an artist's releases restricted to the
// given groups.
func (a *API) ArtistAlbums(ctx context.Context, artistID string, groups []AlbumType, market string, cursor pagination.Cursor) (pagination.Page[Album], error) {
	query := pageQuery(cursor, MaxArtistAlbumsLimit, market)
	if len(groups) > 0 {
		names := make([]string, len(groups))
		for i, g := range groups {
			names[i] = string(g)
		}
		query.Set("include_groups", strings.Join(names, ","))
	}

	var page Paging[Album]
	err := a.sender.Send(ctx, client.Request{
		Endpoint: "/artists/{id}/albums",
		Path:     "/artists/" + url.PathEscape(artistID) + "/albums",
		Query:    query,
	}, &page)
	if err != nil {
		return pagination.Page[Album]{}, err
	}
	return toPage(page), nil
}

// ArtistTopTracks fetches an artist's top tracks in a market.
func (a *API) ArtistTopTracks(ctx context.Context, artistID, market string) ([]Track, error) {
	var resp struct {
		Tracks []Track `json:"tracks"`
	}
	err := a.sender.Send(ctx, client.Request{
		Endpoint: "/artists/{id}/top-tracks",
		Path:     "/artists/" + url.PathEscape(artistID) + "/top-tracks",
		Query:    marketQuery(market),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

// Album fetches one album with the first page of its tracks.
func (a *API) Album(ctx context.Context, id, market string) (*FullAlbum, error) {
	var album FullAlbum
	err := a.sender.Send(ctx, client.Request{
		Endpoint: "/albums/{id}",
		Path:     "/albums/" + url.PathEscape(id),
		Query:    marketQuery(market),
	}, &album)
	if err != nil {
		return nil, err
	}
	return &album, nil
}

// SeveralAlbums fetches up to MaxSeveralAlbums albums. The result is
// positional with nil for unknown ids.
func (a *API) SeveralAlbums(ctx context.Context, ids []string, market string) ([]*FullAlbum, error) {
	if err := checkBatch("/albums", ids, MaxSeveralAlbums); err != nil {
		return nil, err
	}

	query := marketQuery(market)
	query.Set("ids", strings.Join(ids, ","))

	var resp struct {
		Albums []*FullAlbum `json:"albums"`
	}
	err := a.sender.Send(ctx, client.Request{Endpoint: "/albums", Path: "/albums", Query: query}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Albums, nil
}

// AlbumTracks fetches one page of an album's track listing.
func (a *API) AlbumTracks(ctx context.Context, albumID, market string, cursor pagination.Cursor) (pagination.Page[SimpleTrack], error) {
	var page Paging[SimpleTrack]
	err := a.sender.Send(ctx, client.Request{
		Endpoint: "/albums/{id}/tracks",
		Path:     "/albums/" + url.PathEscape(albumID) + "/tracks",
		Query:    pageQuery(cursor, MaxAlbumTracksLimit, market),
	}, &page)
	if err != nil {
		return pagination.Page[SimpleTrack]{}, err
	}
	return toPage(page), nil
}

// SeveralTracks fetches up to MaxSeveralTracks tracks. The result is
// positional with nil for unknown ids.
func (a *API) SeveralTracks(ctx context.Context, ids []string, market string) ([]*Track, error) {
	if err := checkBatch("/tracks", ids, MaxSeveralTracks); err != nil {
		return nil, err
	}

	query := marketQuery(market)
	query.Set("ids", strings.Join(ids, ","))

	var resp struct {
		Tracks []*Track `json:"tracks"`
	}
	err := a.sender.Send(ctx, client.Request{Endpoint: "/tracks", Path: "/tracks", Query: query}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

// Playlist fetches playlist metadata.
func (a *API) Playlist(ctx context.Context, id string) (*Playlist, error) {
	var playlist Playlist
	err := a.sender.Send(ctx, client.Request{
		Endpoint: "/playlists/{id}",
		Path:     "/playlists/" + url.PathEscape(id),
		Query:    url.Values{"fields": {"id,name,description,owner(id,display_name),public,snapshot_id,tracks(total),external_urls"}},
	}, &playlist)
	if err != nil {
		return nil, err
	}
	return &playlist, nil
}

// PlaylistItems fetches one page of playlist entries.
func (a *API) PlaylistItems(ctx context.Context, playlistID, market string, cursor pagination.Cursor) (pagination.Page[PlaylistItem], error) {
	var page Paging[PlaylistItem]
	err := a.sender.Send(ctx, client.Request{
		Endpoint: "/playlists/{id}/tracks",
		Path:     "/playlists/" + url.PathEscape(playlistID) + "/tracks",
		Query:    pageQuery(cursor, MaxPlaylistItemsLimit, market),
	}, &page)
	if err != nil {
		return pagination.Page[PlaylistItem]{}, err
	}
	return toPage(page), nil
}

func marketQuery(market string) url.Values {
	q := url.Values{}
	if market != "" {
		q.Set("market", market)
	}
	return q
}

func pageQuery(cursor pagination.Cursor, maxLimit int, market string) url.Values {
	q := marketQuery(market)
	limit := cursor.Limit
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(cursor.Offset))
	return q
}

func checkBatch(endpoint string, ids []string, limit int) error {
	if len(ids) == 0 || len(ids) > limit {
		return &client.APIError{
			Kind:     client.KindPermanent,
			Endpoint: endpoint,
			Message:  "batch must hold 1 to " + strconv.Itoa(limit) + " ids, got " + strconv.Itoa(len(ids)),
		}
	}
	return nil
}

// toPage converts a Paging envelope. The next cursor is read from the next
// URL when present so server-chosen offsets are followed.
func toPage[T any](p Paging[T]) pagination.Page[T] {
	page := pagination.Page[T]{Items: p.Items, Total: p.Total}
	if p.Next == "" {
		return page
	}

	next := pagination.Cursor{Offset: p.Offset + len(p.Items), Limit: p.Limit}
	if u, err := url.Parse(p.Next); err == nil {
		q := u.Query()
		if v, err := strconv.Atoi(q.Get("offset")); err == nil {
			next.Offset = v
		}
		if v, err := strconv.Atoi(q.Get("limit")); err == nil {
			next.Limit = v
		}
	}
	page.Next = &next
	return page
}
