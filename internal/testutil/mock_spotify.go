// Package testutil provides a fake Spotify Web API for tests.
//
// MockSpotify serves an in-memory catalog through the real endpoint paths
// (offset pagination, batch lookups with null slots, include_groups
// filtering) and lets tests inject failures per request.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/spotify-catalog-client/pkg/spotify"
)

// MockToken is the access token issued by the mock token endpoint.
const MockToken = "mock-access-token"

// MockSpotifyResponse defines a canned response.
type MockSpotifyResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// fault is a canned response served to matching requests.
type fault struct {
	match     func(r *http.Request) bool
	remaining int // negative means forever
	resp      MockSpotifyResponse
}

// MockSpotify is a configurable fake Web API server.
type MockSpotify struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	faults   []*fault

	artists       map[string]spotify.Artist
	listings      map[string]map[spotify.AlbumType][]spotify.Album
	albums        map[string]spotify.FullAlbum
	albumTracks   map[string][]spotify.SimpleTrack
	tracks        map[string]spotify.Track
	topTracks     map[string][]spotify.Track
	playlists     map[string]spotify.Playlist
	playlistItems map[string][]spotify.PlaylistItem
	totals        map[string]int

	// OmitCompilationsInCombined drops compilations from artist album
	// listings that request more than one group.
	OmitCompilationsInCombined bool

	// Tracking
	requestCount      int
	requests          []string
	LastRequestHeader http.Header
}

// NewMockSpotify creates and starts a mock server.
func NewMockSpotify() *MockSpotify {
	mock := &MockSpotify{
		handlers:                   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		artists:                    make(map[string]spotify.Artist),
		listings:                   make(map[string]map[spotify.AlbumType][]spotify.Album),
		albums:                     make(map[string]spotify.FullAlbum),
		albumTracks:                make(map[string][]spotify.SimpleTrack),
		tracks:                     make(map[string]spotify.Track),
		topTracks:                  make(map[string][]spotify.Track),
		playlists:                  make(map[string]spotify.Playlist),
		playlistItems:              make(map[string][]spotify.PlaylistItem),
		totals:                     make(map[string]int),
		OmitCompilationsInCombined: true,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server URL, usable as the client base URL.
func (m *MockSpotify) URL() string {
	return m.server.URL
}

// TokenURL returns the mock client-credentials token endpoint.
func (m *MockSpotify) TokenURL() string {
	return m.server.URL + "/api/token"
}

// Client returns an HTTP client for the mock server.
func (m *MockSpotify) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockSpotify) Close() {
	m.server.Close()
}

// Reset clears request tracking and pending faults.
func (m *MockSpotify) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.requests = nil
	m.faults = nil
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSpotify) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// Fail serves resp to the next times requests matching match. A negative
// times fails every matching request.
func (m *MockSpotify) Fail(match func(r *http.Request) bool, times int, resp MockSpotifyResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, &fault{match: match, remaining: times, resp: resp})
}

// FailPath fails requests to an exact path.
func (m *MockSpotify) FailPath(path string, times int, resp MockSpotifyResponse) {
	m.Fail(func(r *http.Request) bool { return r.URL.Path == path }, times, resp)
}

// FailAlbumGroup fails artist album listings for one include_groups value.
func (m *MockSpotify) FailAlbumGroup(artistID string, group spotify.AlbumType, times int, resp MockSpotifyResponse) {
	path := "/artists/" + artistID + "/albums"
	m.Fail(func(r *http.Request) bool {
		return r.URL.Path == path && r.URL.Query().Get("include_groups") == string(group)
	}, times, resp)
}

// RequestCount returns the number of API requests served.
func (m *MockSpotify) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// Requests returns the served request URIs in arrival order.
func (m *MockSpotify) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.requests...)
}

// CountRequests returns how many served requests had the given path.
func (m *MockSpotify) CountRequests(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requests {
		if r == path || strings.HasPrefix(r, path+"?") {
			n++
		}
	}
	return n
}

// AddArtist registers an artist.
func (m *MockSpotify) AddArtist(artist spotify.Artist) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artists[artist.ID] = artist
}

// AddAlbum lists album under the artist's group and registers its full
// record, track listing and full tracks. Adding the same album under
// several groups lists it in each.
func (m *MockSpotify) AddAlbum(artistID string, group spotify.AlbumType, album spotify.FullAlbum, tracks []spotify.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listings[artistID] == nil {
		m.listings[artistID] = make(map[spotify.AlbumType][]spotify.Album)
	}
	listed := album.Album
	listed.AlbumGroup = string(group)
	m.listings[artistID][group] = append(m.listings[artistID][group], listed)

	simple := make([]spotify.SimpleTrack, len(tracks))
	for i, t := range tracks {
		simple[i] = t.SimpleTrack
		full := t
		full.Album = album.Album
		m.tracks[t.ID] = full
	}
	album.TotalTracks = len(tracks)
	m.albums[album.ID] = album
	m.albumTracks[album.ID] = simple
}

// SetReportedTotal overrides the total reported for an artist's group listing.
func (m *MockSpotify) SetReportedTotal(artistID string, group spotify.AlbumType, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[artistID+"/"+string(group)] = total
}

// AddTopTracks registers an artist's top tracks.
func (m *MockSpotify) AddTopTracks(artistID string, tracks []spotify.Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topTracks[artistID] = tracks
	for _, t := range tracks {
		m.tracks[t.ID] = t
	}
}

// AddPlaylist registers a playlist with its entries. Entries with a track
// are also resolvable through the tracks endpoint.
func (m *MockSpotify) AddPlaylist(playlist spotify.Playlist, items []spotify.PlaylistItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	playlist.Tracks.Total = len(items)
	m.playlists[playlist.ID] = playlist
	m.playlistItems[playlist.ID] = items
	for _, item := range items {
		if item.Track != nil && item.Track.ID != "" {
			m.tracks[item.Track.ID] = *item.Track
		}
	}
}

func (m *MockSpotify) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/token" {
		m.token(w, r)
		return
	}

	m.mu.Lock()
	m.requestCount++
	m.requests = append(m.requests, r.URL.RequestURI())
	m.LastRequestHeader = r.Header.Clone()
	injected := m.takeFault(r)
	handler, custom := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if injected != nil {
		writeResponse(w, *injected)
		return
	}
	if custom {
		handler(w, r)
		return
	}

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	m.route(w, r)
}

// takeFault returns and consumes the first matching fault. Caller holds mu.
func (m *MockSpotify) takeFault(r *http.Request) *MockSpotifyResponse {
	for i, f := range m.faults {
		if !f.match(r) {
			continue
		}
		resp := f.resp
		if f.remaining > 0 {
			f.remaining--
			if f.remaining == 0 {
				m.faults = append(m.faults[:i], m.faults[i+1:]...)
			}
		}
		return &resp
	}
	return nil
}

func (m *MockSpotify) route(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	q := r.URL.Query()

	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case len(parts) == 2 && parts[0] == "artists":
		artist, ok := m.artists[parts[1]]
		if !ok {
			writeError(w, http.StatusNotFound, "Resource not found")
			return
		}
		writeJSON(w, artist)

	case len(parts) == 3 && parts[0] == "artists" && parts[2] == "albums":
		m.serveArtistAlbums(w, r, parts[1], q)

	case len(parts) == 3 && parts[0] == "artists" && parts[2] == "top-tracks":
		writeJSON(w, map[string]any{"tracks": nonNil(m.topTracks[parts[1]])})

	case len(parts) == 1 && parts[0] == "albums":
		ids := splitIDs(q.Get("ids"))
		if len(ids) == 0 || len(ids) > spotify.MaxSeveralAlbums {
			writeError(w, http.StatusBadRequest, "Invalid ids")
			return
		}
		albums := make([]*spotify.FullAlbum, len(ids))
		for i, id := range ids {
			if _, ok := m.albums[id]; ok {
				a := m.fullAlbum(id)
				albums[i] = &a
			}
		}
		writeJSON(w, map[string]any{"albums": albums})

	case len(parts) == 2 && parts[0] == "albums":
		if _, ok := m.albums[parts[1]]; !ok {
			writeError(w, http.StatusNotFound, "Resource not found")
			return
		}
		writeJSON(w, m.fullAlbum(parts[1]))

	case len(parts) == 3 && parts[0] == "albums" && parts[2] == "tracks":
		tracks, ok := m.albumTracks[parts[1]]
		if !ok {
			writeError(w, http.StatusNotFound, "Resource not found")
			return
		}
		offset, limit := pageParams(q, spotify.MaxAlbumTracksLimit)
		writeJSON(w, pageOf(m.server.URL, r.URL.Path, tracks, offset, limit, len(tracks), q))

	case len(parts) == 1 && parts[0] == "tracks":
		ids := splitIDs(q.Get("ids"))
		if len(ids) == 0 || len(ids) > spotify.MaxSeveralTracks {
			writeError(w, http.StatusBadRequest, "Invalid ids")
			return
		}
		tracks := make([]*spotify.Track, len(ids))
		for i, id := range ids {
			if t, ok := m.tracks[id]; ok {
				tracks[i] = &t
			}
		}
		writeJSON(w, map[string]any{"tracks": tracks})

	case len(parts) == 2 && parts[0] == "playlists":
		playlist, ok := m.playlists[parts[1]]
		if !ok {
			writeError(w, http.StatusNotFound, "Resource not found")
			return
		}
		writeJSON(w, playlist)

	case len(parts) == 3 && parts[0] == "playlists" && parts[2] == "tracks":
		items, ok := m.playlistItems[parts[1]]
		if !ok {
			writeError(w, http.StatusNotFound, "Resource not found")
			return
		}
		offset, limit := pageParams(q, spotify.MaxPlaylistItemsLimit)
		writeJSON(w, pageOf(m.server.URL, r.URL.Path, items, offset, limit, len(items), q))

	default:
		writeError(w, http.StatusNotFound, "Service not found")
	}
}

func (m *MockSpotify) serveArtistAlbums(w http.ResponseWriter, r *http.Request, artistID string, q url.Values) {
	groups := splitIDs(q.Get("include_groups"))
	if len(groups) == 0 {
		groups = []string{"album", "single", "compilation", "appears_on"}
	}

	var albums []spotify.Album
	seen := make(map[string]bool)
	total := 0
	overridden := false
	for _, g := range groups {
		group := spotify.AlbumType(g)
		if group == spotify.AlbumTypeCompilation && len(groups) > 1 && m.OmitCompilationsInCombined {
			continue
		}
		for _, a := range m.listings[artistID][group] {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			albums = append(albums, a)
		}
		if t, ok := m.totals[artistID+"/"+g]; ok && len(groups) == 1 {
			total = t
			overridden = true
		}
	}
	if !overridden {
		total = len(albums)
	}

	offset, limit := pageParams(q, spotify.MaxArtistAlbumsLimit)
	writeJSON(w, pageOf(m.server.URL, r.URL.Path, albums, offset, limit, total, q))
}

// fullAlbum returns the album with its first track page embedded. Caller holds mu.
func (m *MockSpotify) fullAlbum(id string) spotify.FullAlbum {
	album := m.albums[id]
	tracks := m.albumTracks[id]
	album.Tracks = pageOf(m.server.URL, "/albums/"+id+"/tracks", tracks, 0, spotify.MaxAlbumTracksLimit, len(tracks), url.Values{})
	return album
}

func pageOf[T any](base, path string, all []T, offset, limit, total int, q url.Values) spotify.Paging[T] {
	start := min(offset, len(all))
	end := min(start+limit, len(all))

	page := spotify.Paging[T]{
		Href:   base + path,
		Items:  append([]T{}, all[start:end]...),
		Limit:  limit,
		Offset: offset,
		Total:  total,
	}
	if end < len(all) {
		next := url.Values{}
		for k, v := range q {
			next[k] = v
		}
		next.Set("offset", strconv.Itoa(end))
		next.Set("limit", strconv.Itoa(limit))
		page.Next = base + path + "?" + next.Encode()
	}
	return page
}

func (m *MockSpotify) token(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := r.BasicAuth(); !ok || r.Method != http.MethodPost {
		writeError(w, http.StatusUnauthorized, "invalid_client")
		return
	}
	writeJSON(w, map[string]any{
		"access_token": MockToken,
		"token_type":   "bearer",
		"expires_in":   3600,
	})
}

func pageParams(q url.Values, maxLimit int) (offset, limit int) {
	offset, _ = strconv.Atoi(q.Get("offset"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	return offset, limit
}

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"status": status, "message": message},
	})
}

func writeResponse(w http.ResponseWriter, resp MockSpotifyResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewRateLimitResponse creates a 429 response with a Retry-After hint in seconds.
func NewRateLimitResponse(retryAfterSeconds int) MockSpotifyResponse {
	return MockSpotifyResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":{"status":429,"message":"API rate limit exceeded"}}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfterSeconds),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 5xx response.
func NewServerErrorResponse(status int) MockSpotifyResponse {
	return MockSpotifyResponse{
		StatusCode: status,
		Body:       fmt.Sprintf(`{"error":{"status":%d,"message":"Server error"}}`, status),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 response.
func NewNotFoundResponse() MockSpotifyResponse {
	return MockSpotifyResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error":{"status":404,"message":"Resource not found"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
