package spotify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Sternrassler/spotify-catalog-client/internal/testutil"
	"github.com/Sternrassler/spotify-catalog-client/pkg/auth"
	"github.com/Sternrassler/spotify-catalog-client/pkg/client"
	"github.com/Sternrassler/spotify-catalog-client/pkg/pagination"
	"github.com/Sternrassler/spotify-catalog-client/pkg/spotify"
)

func setup(t *testing.T) (*testutil.MockSpotify, *spotify.API) {
	t.Helper()

	mock := testutil.NewMockSpotify()
	t.Cleanup(mock.Close)

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	c, err := client.New(cfg, auth.StaticToken("test-token"))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	c.SetTransport(mock.Client())

	return mock, spotify.NewAPI(c)
}

func TestArtist(t *testing.T) {
	mock, api := setup(t)
	artistID := testutil.ID("art", 1)
	mock.AddArtist(testutil.Artist(artistID, "Test Artist"))

	artist, err := api.Artist(context.Background(), artistID)
	if err != nil {
		t.Fatalf("Artist() error = %v", err)
	}
	if artist.Name != "Test Artist" {
		t.Errorf("Name = %q, want Test Artist", artist.Name)
	}
	if got := mock.LastRequestHeader.Get("Authorization"); got != "Bearer test-token" {
		t.Errorf("Authorization = %q, want Bearer test-token", got)
	}

	_, err = api.Artist(context.Background(), testutil.ID("art", 2))
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 || apiErr.Kind != client.KindPermanent {
		t.Errorf("unknown artist error = %v, want permanent 404", err)
	}
}

func TestArtistAlbums_Paging(t *testing.T) {
	mock, api := setup(t)
	artist := testutil.Artist(testutil.ID("art", 1), "Prolific")
	for i := 0; i < 7; i++ {
		album, tracks := testutil.Album(testutil.ID("alb", i), "Album", spotify.AlbumTypeAlbum, "2020-01-01", artist, 1)
		mock.AddAlbum(artist.ID, spotify.AlbumTypeAlbum, album, tracks)
	}

	groups := []spotify.AlbumType{spotify.AlbumTypeAlbum}
	page, err := api.ArtistAlbums(context.Background(), artist.ID, groups, "US", pagination.Cursor{Limit: 5})
	if err != nil {
		t.Fatalf("ArtistAlbums() error = %v", err)
	}
	if len(page.Items) != 5 || page.Total != 7 {
		t.Errorf("page = %d items, total %d; want 5 items, total 7", len(page.Items), page.Total)
	}
	if page.Next == nil || page.Next.Offset != 5 || page.Next.Limit != 5 {
		t.Fatalf("Next = %+v, want offset 5 limit 5", page.Next)
	}
	if page.Items[0].AlbumGroup != "album" {
		t.Errorf("AlbumGroup = %q, want album", page.Items[0].AlbumGroup)
	}

	page, err = api.ArtistAlbums(context.Background(), artist.ID, groups, "US", *page.Next)
	if err != nil {
		t.Fatalf("ArtistAlbums() second page error = %v", err)
	}
	if len(page.Items) != 2 || page.Next != nil {
		t.Errorf("second page = %d items, next %v; want 2 items, no next", len(page.Items), page.Next)
	}

	reqs := mock.Requests()
	want := "/artists/" + artist.ID + "/albums?include_groups=album&limit=5&market=US&offset=0"
	if reqs[0] != want {
		t.Errorf("request = %q, want %q", reqs[0], want)
	}
}

func TestArtistAlbums_CombinedQueryOmitsCompilations(t *testing.T) {
	mock, api := setup(t)
	artist := testutil.Artist(testutil.ID("art", 1), "Artist")
	a, at := testutil.Album(testutil.ID("alb", 1), "LP", spotify.AlbumTypeAlbum, "2020-01-01", artist, 1)
	c, ct := testutil.Album(testutil.ID("cmp", 1), "Best Of", spotify.AlbumTypeCompilation, "2021-01-01", artist, 1)
	mock.AddAlbum(artist.ID, spotify.AlbumTypeAlbum, a, at)
	mock.AddAlbum(artist.ID, spotify.AlbumTypeCompilation, c, ct)

	combined, err := api.ArtistAlbums(context.Background(), artist.ID, spotify.CatalogAlbumTypes, "", pagination.Cursor{})
	if err != nil {
		t.Fatalf("ArtistAlbums() error = %v", err)
	}
	if len(combined.Items) != 1 {
		t.Errorf("combined query = %d items, want 1 (compilation missing)", len(combined.Items))
	}

	only, err := api.ArtistAlbums(context.Background(), artist.ID, []spotify.AlbumType{spotify.AlbumTypeCompilation}, "", pagination.Cursor{})
	if err != nil {
		t.Fatalf("ArtistAlbums() error = %v", err)
	}
	if len(only.Items) != 1 || only.Items[0].ID != c.ID {
		t.Errorf("compilation query = %+v, want the compilation", only.Items)
	}
}

func TestSeveralAlbums_NullSlots(t *testing.T) {
	mock, api := setup(t)
	artist := testutil.Artist(testutil.ID("art", 1), "Artist")
	album, tracks := testutil.Album(testutil.ID("alb", 1), "LP", spotify.AlbumTypeAlbum, "2020-01-01", artist, 3)
	mock.AddAlbum(artist.ID, spotify.AlbumTypeAlbum, album, tracks)

	albums, err := api.SeveralAlbums(context.Background(), []string{testutil.ID("zzz", 9), album.ID}, "US")
	if err != nil {
		t.Fatalf("SeveralAlbums() error = %v", err)
	}
	if len(albums) != 2 {
		t.Fatalf("albums = %d, want 2 positional slots", len(albums))
	}
	if albums[0] != nil {
		t.Error("unknown id should yield a nil slot")
	}
	if albums[1] == nil || albums[1].Label != "Test Records" {
		t.Fatalf("albums[1] = %+v, want full album", albums[1])
	}
	if albums[1].PLine() != "2024 Test Records Recording" {
		t.Errorf("PLine() = %q", albums[1].PLine())
	}
	if len(albums[1].Tracks.Items) != 3 {
		t.Errorf("embedded tracks = %d, want 3", len(albums[1].Tracks.Items))
	}
}

func TestSeveralTracks(t *testing.T) {
	mock, api := setup(t)
	artist := testutil.Artist(testutil.ID("art", 1), "Artist")
	album, tracks := testutil.Album(testutil.ID("alb", 1), "LP", spotify.AlbumTypeAlbum, "2020-01-01", artist, 2)
	mock.AddAlbum(artist.ID, spotify.AlbumTypeAlbum, album, tracks)

	got, err := api.SeveralTracks(context.Background(), []string{tracks[0].ID, tracks[1].ID}, "")
	if err != nil {
		t.Fatalf("SeveralTracks() error = %v", err)
	}
	if len(got) != 2 || got[1] == nil {
		t.Fatalf("tracks = %v, want 2 resolved", got)
	}
	if got[1].ISRC() != tracks[1].ExternalIDs.ISRC {
		t.Errorf("ISRC() = %q, want %q", got[1].ISRC(), tracks[1].ExternalIDs.ISRC)
	}
	if got[0].Album.ID != album.ID {
		t.Errorf("Album.ID = %q, want %q", got[0].Album.ID, album.ID)
	}
}

func TestBatchLimits(t *testing.T) {
	mock, api := setup(t)

	ids := make([]string, spotify.MaxSeveralTracks+1)
	for i := range ids {
		ids[i] = testutil.ID("trk", i)
	}

	if _, err := api.SeveralTracks(context.Background(), ids, ""); client.KindOf(err) != client.KindPermanent {
		t.Errorf("oversized track batch error = %v, want permanent", err)
	}
	if _, err := api.SeveralAlbums(context.Background(), nil, ""); client.KindOf(err) != client.KindPermanent {
		t.Errorf("empty album batch error = %v, want permanent", err)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("requests = %d, want 0", mock.RequestCount())
	}
}

func TestAlbumTracks_Paging(t *testing.T) {
	mock, api := setup(t)
	artist := testutil.Artist(testutil.ID("art", 1), "Artist")
	album, tracks := testutil.Album(testutil.ID("alb", 1), "Box Set", spotify.AlbumTypeCompilation, "2019", artist, 70)
	mock.AddAlbum(artist.ID, spotify.AlbumTypeCompilation, album, tracks)

	full, err := api.Album(context.Background(), album.ID, "US")
	if err != nil {
		t.Fatalf("Album() error = %v", err)
	}
	if len(full.Tracks.Items) != 50 || full.Tracks.Total != 70 || full.Tracks.Next == "" {
		t.Errorf("embedded tracks = %d of %d next %q, want 50 of 70 with next", len(full.Tracks.Items), full.Tracks.Total, full.Tracks.Next)
	}

	page, err := api.AlbumTracks(context.Background(), album.ID, "US", pagination.Cursor{Offset: 50, Limit: 50})
	if err != nil {
		t.Fatalf("AlbumTracks() error = %v", err)
	}
	if len(page.Items) != 20 || page.Next != nil {
		t.Errorf("page = %d items next %v, want 20 and no next", len(page.Items), page.Next)
	}
	if page.Items[0].TrackNumber != 51 {
		t.Errorf("first TrackNumber = %d, want 51", page.Items[0].TrackNumber)
	}
}

func TestPlaylist(t *testing.T) {
	mock, api := setup(t)
	artist := testutil.Artist(testutil.ID("art", 1), "Artist")
	_, tracks := testutil.Album(testutil.ID("alb", 1), "LP", spotify.AlbumTypeAlbum, "2020-01-01", artist, 3)

	items := []spotify.PlaylistItem{
		{AddedAt: "2024-01-01T00:00:00Z", Track: &tracks[0]},
		{AddedAt: "2024-01-02T00:00:00Z", Track: nil},
		{AddedAt: "2024-01-03T00:00:00Z", Track: &tracks[2]},
	}
	playlistID := testutil.ID("pl", 1)
	mock.AddPlaylist(spotify.Playlist{ID: playlistID, Name: "Mix"}, items)

	playlist, err := api.Playlist(context.Background(), playlistID)
	if err != nil {
		t.Fatalf("Playlist() error = %v", err)
	}
	if playlist.Name != "Mix" || playlist.Tracks.Total != 3 {
		t.Errorf("playlist = %+v, want Mix with 3 tracks", playlist)
	}

	page, err := api.PlaylistItems(context.Background(), playlistID, "", pagination.Cursor{Limit: 2})
	if err != nil {
		t.Fatalf("PlaylistItems() error = %v", err)
	}
	if len(page.Items) != 2 || page.Items[1].Track != nil || page.Next == nil {
		t.Errorf("page = %+v, want 2 items with a nil track slot and a next cursor", page)
	}
}

func TestTopTracks(t *testing.T) {
	mock, api := setup(t)
	artist := testutil.Artist(testutil.ID("art", 1), "Artist")
	_, tracks := testutil.Album(testutil.ID("alb", 1), "LP", spotify.AlbumTypeAlbum, "2020-01-01", artist, 4)
	mock.AddTopTracks(artist.ID, tracks)

	got, err := api.ArtistTopTracks(context.Background(), artist.ID, "DE")
	if err != nil {
		t.Fatalf("ArtistTopTracks() error = %v", err)
	}
	if len(got) != 4 {
		t.Errorf("top tracks = %d, want 4", len(got))
	}
	if reqs := mock.Requests(); reqs[0] != "/artists/"+artist.ID+"/top-tracks?market=DE" {
		t.Errorf("request = %q", reqs[0])
	}
}
