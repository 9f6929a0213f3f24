package testutil

import (
	"testing"

	"github.com/Sternrassler/spotify-catalog-client/pkg/spotify"
)

func TestID(t *testing.T) {
	id := ID("alb", 7)
	if len(id) != 22 {
		t.Errorf("len(ID) = %d, want 22", len(id))
	}
	if id != "alb0000000000000000007" {
		t.Errorf("ID = %q", id)
	}
}

func TestAlbum_IdentifiersUniqueAcrossAlbums(t *testing.T) {
	artist := Artist(ID("art", 1), "Artist")
	albumIDs := []string{ID("alb", 1), ID("cmp", 1), ID("sgl", 1), ID("alb", 2)}

	trackIDs := make(map[string]string)
	isrcs := make(map[string]string)
	upcs := make(map[string]string)
	for _, albumID := range albumIDs {
		album, tracks := Album(albumID, "Name", spotify.AlbumTypeAlbum, "2020-01-01", artist, 3)

		if prev, ok := upcs[album.ExternalIDs.UPC]; ok {
			t.Errorf("UPC %s shared by %s and %s", album.ExternalIDs.UPC, prev, albumID)
		}
		upcs[album.ExternalIDs.UPC] = albumID

		for i, track := range tracks {
			if len(track.ID) != 22 {
				t.Errorf("len(track id %q) = %d, want 22", track.ID, len(track.ID))
			}
			if track.ID != TrackID(albumID, i+1) {
				t.Errorf("track id = %q, want TrackID(%s, %d)", track.ID, albumID, i+1)
			}
			if prev, ok := trackIDs[track.ID]; ok {
				t.Errorf("track id %s shared by %s and %s", track.ID, prev, albumID)
			}
			trackIDs[track.ID] = albumID

			isrc := track.ISRC()
			if len(isrc) != 12 {
				t.Errorf("len(ISRC %q) = %d, want 12", isrc, len(isrc))
			}
			if prev, ok := isrcs[isrc]; ok {
				t.Errorf("ISRC %s shared by %s and %s", isrc, prev, albumID)
			}
			isrcs[isrc] = albumID
		}
	}
}
