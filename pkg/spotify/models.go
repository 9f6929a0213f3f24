package spotify

// AlbumType is a release grouping accepted by include_groups.
type AlbumType string

const (
	AlbumTypeAlbum       AlbumType = "album"
	AlbumTypeSingle      AlbumType = "single"
	AlbumTypeCompilation AlbumType = "compilation"
	AlbumTypeAppearsOn   AlbumType = "appears_on"
)

// CatalogAlbumTypes are the groups that make up an artist's own catalog,
// in query order.
var CatalogAlbumTypes = []AlbumType{AlbumTypeAlbum, AlbumTypeSingle, AlbumTypeCompilation}

// ExternalURLs holds public links.
type ExternalURLs struct {
	Spotify string `json:"spotify,omitempty"`
}

// ExternalIDs holds industry identifiers.
type ExternalIDs struct {
	ISRC string `json:"isrc,omitempty"`
	UPC  string `json:"upc,omitempty"`
	EAN  string `json:"ean,omitempty"`
}

// Image is a cover or profile image.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

// SimpleArtist is the artist object embedded in albums and tracks.
type SimpleArtist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	ExternalURLs ExternalURLs `json:"external_urls"`
}

// Followers is the follower count of an artist.
type Followers struct {
	Total int `json:"total"`
}

// Artist is the full artist object.
type Artist struct {
	SimpleArtist
	Genres     []string  `json:"genres,omitempty"`
	Popularity int       `json:"popularity"`
	Followers  Followers `json:"followers"`
	Images     []Image   `json:"images,omitempty"`
}

// Album is the simplified album returned by listings. Identity is ID.
type Album struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	AlbumType            string         `json:"album_type"`
	AlbumGroup           string         `json:"album_group,omitempty"`
	ReleaseDate          string         `json:"release_date"`
	ReleaseDatePrecision string         `json:"release_date_precision"`
	TotalTracks          int            `json:"total_tracks"`
	AvailableMarkets     []string       `json:"available_markets,omitempty"`
	Artists              []SimpleArtist `json:"artists"`
	ExternalURLs         ExternalURLs   `json:"external_urls"`
	Images               []Image        `json:"images,omitempty"`
}

// Copyright is a copyright statement. Type "C" is the copyright, "P" the
// sound recording (phonogram) copyright.
type Copyright struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// FullAlbum is the album object with label, copyrights and the first page
// of its tracks.
type FullAlbum struct {
	Album
	Label       string              `json:"label,omitempty"`
	Copyrights  []Copyright         `json:"copyrights,omitempty"`
	ExternalIDs ExternalIDs         `json:"external_ids"`
	Popularity  int                 `json:"popularity"`
	Tracks      Paging[SimpleTrack] `json:"tracks"`
}

// PLine returns the first phonogram copyright, or "".
func (a FullAlbum) PLine() string {
	for _, c := range a.Copyrights {
		if c.Type == "P" {
			return c.Text
		}
	}
	return ""
}

// SimpleTrack is the track object embedded in album track listings.
type SimpleTrack struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Artists      []SimpleArtist `json:"artists"`
	DiscNumber   int            `json:"disc_number"`
	TrackNumber  int            `json:"track_number"`
	DurationMS   int            `json:"duration_ms"`
	Explicit     bool           `json:"explicit"`
	IsLocal      bool           `json:"is_local,omitempty"`
	ExternalURLs ExternalURLs   `json:"external_urls"`
}

// Track is the full track object; ExternalIDs carries the ISRC.
type Track struct {
	SimpleTrack
	Album       Album       `json:"album"`
	ExternalIDs ExternalIDs `json:"external_ids"`
	Popularity  int         `json:"popularity"`
}

// ISRC returns the track's ISRC, or "".
func (t Track) ISRC() string {
	return t.ExternalIDs.ISRC
}

// PlaylistOwner is the user owning a playlist.
type PlaylistOwner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// PlaylistTracksRef is the track summary on a playlist object.
type PlaylistTracksRef struct {
	Total int `json:"total"`
}

// Playlist is the playlist object without its items.
type Playlist struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Owner        PlaylistOwner     `json:"owner"`
	Public       bool              `json:"public"`
	SnapshotID   string            `json:"snapshot_id"`
	Tracks       PlaylistTracksRef `json:"tracks"`
	ExternalURLs ExternalURLs      `json:"external_urls"`
}

// PlaylistItem is one playlist entry. Track is nil for removed or
// unavailable entries.
type PlaylistItem struct {
	AddedAt string `json:"added_at"`
	IsLocal bool   `json:"is_local"`
	Track   *Track `json:"track"`
}

// Paging is the Web API list envelope.
type Paging[T any] struct {
	Href     string `json:"href"`
	Items    []T    `json:"items"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
	Total    int    `json:"total"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}
