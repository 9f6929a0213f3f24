package catalog

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/spotify-catalog-client/pkg/spotify"
)

// TrackRow is one album track with its album metadata, ready for export.
type TrackRow struct {
	AlbumArtists string `json:"album_artists"`
	AlbumName    string `json:"album_name"`
	UPC          string `json:"upc"`
	ReleaseDate  string `json:"release_date"`
	ReleaseType  string `json:"release_type"`
	Label        string `json:"label"`
	PLine        string `json:"p_line"`
	AlbumURL     string `json:"album_url"`
	DiscNumber   int    `json:"disc_number"`
	TrackNumber  int    `json:"track_number"`
	TrackArtists string `json:"track_artists"`
	TrackName    string `json:"track_name"`
	ISRC         string `json:"isrc"`
	Explicit     bool   `json:"explicit"`
	Duration     string `json:"duration"`
	TrackURL     string `json:"track_url"`
}

// Flatten returns one row per hydrated track, albums in collection order and
// tracks in listing order. Tracks that could not be hydrated are skipped.
func Flatten(cat *ArtistCatalog) []TrackRow {
	if cat == nil || cat.Collection == nil {
		return nil
	}
	return flattenAlbums(cat.Collection.IDs(), cat.Albums, cat.AlbumTracks, cat.Tracks)
}

func flattenAlbums(order []string, albums map[string]spotify.FullAlbum, listings map[string][]spotify.SimpleTrack, tracks map[string]spotify.Track) []TrackRow {
	var rows []TrackRow
	for _, id := range order {
		album, ok := albums[id]
		if !ok {
			continue
		}
		for _, item := range listings[id] {
			track, ok := tracks[item.ID]
			if !ok {
				continue
			}
			rows = append(rows, albumRow(&album, item, &track))
		}
	}
	return rows
}

// FlattenTracks renders standalone tracks, such as top tracks or playlist
// entries, using each track's embedded album.
func FlattenTracks(tracks []spotify.Track) []TrackRow {
	rows := make([]TrackRow, 0, len(tracks))
	for i := range tracks {
		t := &tracks[i]
		rows = append(rows, TrackRow{
			AlbumArtists: ArtistNames(t.Album.Artists),
			AlbumName:    t.Album.Name,
			ReleaseDate:  t.Album.ReleaseDate,
			ReleaseType:  releaseType(t.Album.AlbumType),
			AlbumURL:     t.Album.ExternalURLs.Spotify,
			DiscNumber:   t.DiscNumber,
			TrackNumber:  t.TrackNumber,
			TrackArtists: ArtistNames(t.Artists),
			TrackName:    t.Name,
			ISRC:         t.ISRC(),
			Explicit:     t.Explicit,
			Duration:     FormatDuration(t.DurationMS),
			TrackURL:     t.ExternalURLs.Spotify,
		})
	}
	return rows
}

func albumRow(album *spotify.FullAlbum, item spotify.SimpleTrack, track *spotify.Track) TrackRow {
	return TrackRow{
		AlbumArtists: ArtistNames(album.Artists),
		AlbumName:    album.Name,
		UPC:          album.ExternalIDs.UPC,
		ReleaseDate:  album.ReleaseDate,
		ReleaseType:  releaseType(album.AlbumType),
		Label:        album.Label,
		PLine:        album.PLine(),
		AlbumURL:     album.ExternalURLs.Spotify,
		DiscNumber:   item.DiscNumber,
		TrackNumber:  item.TrackNumber,
		TrackArtists: ArtistNames(track.Artists),
		TrackName:    track.Name,
		ISRC:         track.ISRC(),
		Explicit:     track.Explicit,
		Duration:     FormatDuration(track.DurationMS),
		TrackURL:     track.ExternalURLs.Spotify,
	}
}

// ArtistNames joins artist names with ", ".
func ArtistNames(artists []spotify.SimpleArtist) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}

// FormatDuration renders milliseconds as m:ss. Negative values render as 0:00.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%d:%02d", ms/60000, (ms%60000)/1000)
}

func releaseType(albumType string) string {
	if albumType == "" {
		return ""
	}
	return strings.ToUpper(albumType[:1]) + albumType[1:]
}
