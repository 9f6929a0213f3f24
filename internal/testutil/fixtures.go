package testutil

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/Sternrassler/spotify-catalog-client/pkg/spotify"
)

// ID builds a valid 22-character base62 id from an alphanumeric prefix and n.
func ID(prefix string, n int) string {
	width := 22 - len(prefix)
	if width < 1 {
		panic("testutil: id prefix too long")
	}
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}

const base62 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// idHash encodes a 64-bit hash of id as 11 base62 characters.
func idHash(id string) string {
	h := fnv.New64a()
	h.Write([]byte(id))
	v := h.Sum64()

	var b [11]byte
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = base62[v%62]
		v /= 62
	}
	return string(b[:])
}

// TrackID returns the id of the n-th track (from 1) of albumID.
func TrackID(albumID string, n int) string {
	return fmt.Sprintf("t%s%010d", idHash(albumID), n)
}

// ISRC returns the ISRC of the n-th track (from 1) of albumID.
func ISRC(albumID string, n int) string {
	return fmt.Sprintf("US%s%05d", strings.ToUpper(idHash(albumID)[6:]), n)
}

// UPC returns the UPC of albumID.
func UPC(albumID string) string {
	h := fnv.New64a()
	h.Write([]byte(albumID))
	return fmt.Sprintf("%012d", h.Sum64()%1_000_000_000_000)
}

// Artist builds an artist.
func Artist(id, name string) spotify.Artist {
	return spotify.Artist{
		SimpleArtist: spotify.SimpleArtist{
			ID:           id,
			Name:         name,
			ExternalURLs: spotify.ExternalURLs{Spotify: "https://open.spotify.com/artist/" + id},
		},
		Followers: spotify.Followers{Total: 1000},
	}
}

// Album builds a full album by artist with n tracks. Track ids, ISRCs and
// the UPC derive from the whole album id, see TrackID, ISRC and UPC.
func Album(id, name string, albumType spotify.AlbumType, releaseDate string, artist spotify.Artist, n int) (spotify.FullAlbum, []spotify.Track) {
	album := spotify.FullAlbum{
		Album: spotify.Album{
			ID:                   id,
			Name:                 name,
			AlbumType:            string(albumType),
			ReleaseDate:          releaseDate,
			ReleaseDatePrecision: "day",
			TotalTracks:          n,
			AvailableMarkets:     []string{"US", "DE"},
			Artists:              []spotify.SimpleArtist{artist.SimpleArtist},
			ExternalURLs:         spotify.ExternalURLs{Spotify: "https://open.spotify.com/album/" + id},
		},
		Label: "Test Records",
		Copyrights: []spotify.Copyright{
			{Text: "2024 Test Records", Type: "C"},
			{Text: "2024 Test Records Recording", Type: "P"},
		},
		ExternalIDs: spotify.ExternalIDs{UPC: UPC(id)},
	}

	tracks := make([]spotify.Track, n)
	for i := range tracks {
		trackID := TrackID(id, i+1)
		tracks[i] = spotify.Track{
			SimpleTrack: spotify.SimpleTrack{
				ID:           trackID,
				Name:         fmt.Sprintf("%s Track %d", name, i+1),
				Artists:      []spotify.SimpleArtist{artist.SimpleArtist},
				DiscNumber:   1,
				TrackNumber:  i + 1,
				DurationMS:   180000 + i*1000,
				ExternalURLs: spotify.ExternalURLs{Spotify: "https://open.spotify.com/track/" + trackID},
			},
			ExternalIDs: spotify.ExternalIDs{ISRC: ISRC(id, i+1)},
		}
	}
	return album, tracks
}
