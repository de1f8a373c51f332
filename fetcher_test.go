package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func tilePNG(t *testing.T, size int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type tileServer struct {
	mu       sync.Mutex
	requests []string
	fail     map[string]int //path -> status to return
	failOnce map[string]int //path -> remaining failures before success
	tileSize int
}

func (ts *tileServer) handler(t *testing.T) http.HandlerFunc {
	body := tilePNG(t, ts.tileSize, color.RGBA{R: 30, G: 120, B: 60, A: 255})
	return func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.requests = append(ts.requests, r.URL.Path)
		if left, ok := ts.failOnce[r.URL.Path]; ok && left > 0 {
			ts.failOnce[r.URL.Path] = left - 1
			ts.mu.Unlock()
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		status, failing := ts.fail[r.URL.Path]
		ts.mu.Unlock()
		if failing {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write(body)
	}
}

func (ts *tileServer) count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.requests)
}

func testProvider(url string, tileSize int) Provider {
	return Provider{
		Name:        "test",
		URLTemplate: url + "/tiles/{z}/{x}/{y}",
		TileSize:    tileSize,
		MaxZoom:     19,
	}
}

func TestFetchGrid(t *testing.T) {
	ts := &tileServer{tileSize: 256}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	grid := TileGrid{Zoom: 3, TileSize: 256, MinX: 1, MinY: 1, Cols: 2, Rows: 2}
	f := NewFetcher(4, 0, 5*time.Second, 0, 0, nil)
	tiles, err := f.Fetch(context.Background(), grid, testProvider(srv.URL, 256))
	if err != nil {
		t.Fatal(err)
	}
	if len(tiles) != 4 {
		t.Fatalf("got %d tiles, want 4", len(tiles))
	}
	for _, ft := range tiles {
		if len(ft.Data) == 0 {
			t.Fatalf("tile %s has no data", ft.Tile.ToString())
		}
		if ft.Tile.X != grid.MinX+ft.Col || ft.Tile.Y != grid.MinY+ft.Row {
			t.Fatalf("tile %s in wrong slot (%d,%d)", ft.Tile.ToString(), ft.Col, ft.Row)
		}
	}
	if ts.count() != 4 {
		t.Fatalf("server saw %d requests, want 4", ts.count())
	}
}

func TestFetchWrapsAntimeridianColumns(t *testing.T) {
	ts := &tileServer{tileSize: 256}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	// zoom 3 has 8 columns; a grid starting at column 7 spanning 2 must hit
	// x=7 and x=0, never x=8
	grid := TileGrid{Zoom: 3, TileSize: 256, MinX: 7, MinY: 3, Cols: 2, Rows: 1}
	f := NewFetcher(2, 0, 5*time.Second, 0, 0, nil)
	tiles, err := f.Fetch(context.Background(), grid, testProvider(srv.URL, 256))
	if err != nil {
		t.Fatal(err)
	}
	xs := map[int]bool{}
	for _, ft := range tiles {
		xs[ft.Tile.X] = true
	}
	if !xs[7] || !xs[0] || len(xs) != 2 {
		t.Fatalf("wrapped columns = %v, want {7, 0}", xs)
	}
}

func TestFetchFailureAbortsAndNamesTile(t *testing.T) {
	ts := &tileServer{
		tileSize: 256,
		fail:     map[string]int{"/tiles/3/2/1": http.StatusInternalServerError},
	}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	grid := TileGrid{Zoom: 3, TileSize: 256, MinX: 1, MinY: 1, Cols: 2, Rows: 2}
	f := NewFetcher(4, 0, 5*time.Second, 0, 0, nil)
	tiles, err := f.Fetch(context.Background(), grid, testProvider(srv.URL, 256))
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if tiles != nil {
		t.Fatal("no tiles may be returned on failure")
	}
	var fe *TileFetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected TileFetchError, got %T: %v", err, err)
	}
	if fe.Tile != (TileXyz{X: 2, Y: 1, Z: 3}) {
		t.Fatalf("error names tile %+v, want {2 1 3}", fe.Tile)
	}
	if fe.Status != http.StatusInternalServerError {
		t.Fatalf("error status %d, want 500", fe.Status)
	}
}

func TestFetchSizeMismatch(t *testing.T) {
	ts := &tileServer{tileSize: 128}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	grid := TileGrid{Zoom: 2, TileSize: 256, MinX: 0, MinY: 0, Cols: 1, Rows: 1}
	f := NewFetcher(1, 3, 5*time.Second, 0, 0, nil)
	_, err := f.Fetch(context.Background(), grid, testProvider(srv.URL, 256))
	var se *TileSizeMismatchError
	if !errors.As(err, &se) {
		t.Fatalf("expected TileSizeMismatchError, got %v", err)
	}
	if se.Width != 128 || se.Expected != 256 {
		t.Fatalf("unexpected mismatch details: %+v", se)
	}
	// size mismatches are not retried
	if ts.count() != 1 {
		t.Fatalf("server saw %d requests, want 1", ts.count())
	}
}

func TestFetchRetries(t *testing.T) {
	ts := &tileServer{
		tileSize: 256,
		failOnce: map[string]int{"/tiles/4/5/6": 2},
	}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	grid := TileGrid{Zoom: 4, TileSize: 256, MinX: 5, MinY: 6, Cols: 1, Rows: 1}
	f := NewFetcher(1, 2, 5*time.Second, 0, 0, nil)
	tiles, err := f.Fetch(context.Background(), grid, testProvider(srv.URL, 256))
	if err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if len(tiles) != 1 {
		t.Fatalf("got %d tiles, want 1", len(tiles))
	}
	if ts.count() != 3 {
		t.Fatalf("server saw %d requests, want 3", ts.count())
	}
}

func TestFetchUsesCache(t *testing.T) {
	ts := &tileServer{tileSize: 256}
	srv := httptest.NewServer(ts.handler(t))
	defer srv.Close()

	store, err := OpenTileStore("files", t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	tile := TileXyz{X: 3, Y: 4, Z: 5}
	cached := tilePNG(t, 256, color.RGBA{R: 200, A: 255})
	store.Put(tile, cached)

	grid := TileGrid{Zoom: 5, TileSize: 256, MinX: 3, MinY: 4, Cols: 1, Rows: 1}
	f := NewFetcher(1, 0, 5*time.Second, 0, 0, store)
	tiles, err := f.Fetch(context.Background(), grid, testProvider(srv.URL, 256))
	if err != nil {
		t.Fatal(err)
	}
	if ts.count() != 0 {
		t.Fatalf("cache hit still made %d requests", ts.count())
	}
	if !bytes.Equal(tiles[0].Data, cached) {
		t.Fatal("cache returned different bytes")
	}
}

func TestTileStoreRoundtrip(t *testing.T) {
	store, err := OpenTileStore("files", t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	tile := TileXyz{X: 1, Y: 2, Z: 3}
	if _, ok := store.Get(tile); ok {
		t.Fatal("empty store claims a hit")
	}
	data := []byte{1, 2, 3, 4}
	store.Put(tile, data)
	got, ok := store.Get(tile)
	if !ok || !bytes.Equal(got, data) {
		t.Fatalf("roundtrip failed: %v %v", got, ok)
	}
}

func TestFillURL(t *testing.T) {
	t.Setenv("TILE_KEY", "sekrit")
	p := Provider{URLTemplate: "https://example.com/{z}/{x}/{y}.png?key=${TILE_KEY}"}
	got := p.FillURL(TileXyz{X: 10, Y: 20, Z: 5})
	want := "https://example.com/5/10/20.png?key=sekrit"
	if got != want {
		t.Fatalf("FillURL = %q, want %q", got, want)
	}
}

func TestFillURLPresets(t *testing.T) {
	for name, p := range Presets {
		u := p.FillURL(TileXyz{X: 1, Y: 2, Z: 3})
		for _, ph := range []string{"{x}", "{y}", "{z}"} {
			if strings.Contains(u, ph) {
				t.Errorf("preset %s leaves placeholder %s: %s", name, ph, u)
			}
		}
		if p.TileSize != 256 {
			t.Errorf("preset %s has tile size %d", name, p.TileSize)
		}
	}
}
