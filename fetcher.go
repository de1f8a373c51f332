package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/cheggaaa/pb/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

//googleMapsVersionFallback up to date as of late 2022, tends to keep working
//for a long while
const googleMapsVersionFallback = "934"

//Provider an XYZ tile endpoint
type Provider struct {
	Name        string
	URLTemplate string //with {x} {y} {z} placeholders, ${ENV} expands
	Attribution string
	TileSize    int
	MaxZoom     int
	Headers     map[string]string
}

//Presets 内置瓦片源
var Presets = map[string]Provider{
	"esri-satellite": {
		Name:        "ESRI World Imagery",
		URLTemplate: "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
		Attribution: "© Esri, Maxar, Earthstar Geographics",
		TileSize:    256,
		MaxZoom:     20,
	},
	"opentopomap": {
		Name:        "OpenTopoMap",
		URLTemplate: "https://tile.opentopomap.org/{z}/{x}/{y}.png",
		Attribution: "© OpenTopoMap (CC-BY-SA), © OpenStreetMap contributors",
		TileSize:    256,
		MaxZoom:     17,
	},
	"osm": {
		Name:        "OpenStreetMap",
		URLTemplate: "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "© OpenStreetMap contributors",
		TileSize:    256,
		MaxZoom:     19,
	},
	"googlemaps": {
		Name:        "Google Maps Satellite",
		URLTemplate: "https://khms2.google.com/kh/v=" + googleMapsVersionFallback + "?x={x}&y={y}&z={z}",
		Attribution: "© Google",
		TileSize:    256,
		MaxZoom:     21,
	},
	"maptiler-satellite": {
		Name:        "MapTiler Satellite",
		URLTemplate: "https://api.maptiler.com/tiles/satellite/{z}/{x}/{y}.jpg?key=${MAPTILER_KEY}",
		Attribution: "© MapTiler, © OpenStreetMap contributors, © NASA",
		TileSize:    256,
		MaxZoom:     20,
	},
}

//FillURL substitutes the tile coordinate into the template and expands any
//environment references (API keys).
func (p Provider) FillURL(t TileXyz) string {
	u := strings.Replace(p.URLTemplate, "{x}", strconv.Itoa(t.X), -1)
	u = strings.Replace(u, "{y}", strconv.Itoa(t.Y), -1)
	u = strings.Replace(u, "{z}", strconv.Itoa(t.Z), -1)
	return os.ExpandEnv(u)
}

//Fetcher downloads tile grids with a bounded worker pool.
type Fetcher struct {
	Client    *http.Client
	Limiter   *rate.Limiter //nil means unthrottled
	Workers   int
	Retries   int //extra attempts per tile, 0 = fail fast
	UserAgent string
	Store     *TileStore //nil means no cache
}

//NewFetcher wires the http transport the way the pool expects: connection
//reuse matched to the worker count.
func NewFetcher(workers, retries int, timeout time.Duration, rps float64, burst int, store *TileStore) *Fetcher {
	if workers <= 0 {
		workers = 4
	}
	transport := &http.Transport{
		MaxIdleConns:        workers,
		MaxIdleConnsPerHost: workers,
		MaxConnsPerHost:     workers,
		IdleConnTimeout:     time.Second * 5,
	}
	var limiter *rate.Limiter
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Fetcher{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		Limiter:   limiter,
		Workers:   workers,
		Retries:   retries,
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Safari/605.1.15",
		Store:     store,
	}
}

//Fetch downloads every tile of the grid. The first failure cancels all
//outstanding work and is returned; a partially fetched grid is never handed
//onward.
func (f *Fetcher) Fetch(ctx context.Context, grid TileGrid, provider Provider) ([]FetchedTile, error) {
	tiles := grid.Tiles()
	results := make([]FetchedTile, len(tiles))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := make(chan struct{}, f.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	bar := pb.StartNew(len(tiles))
	for i, gt := range tiles {
		if ctx.Err() != nil {
			break
		}
		workers <- struct{}{}
		wg.Add(1)
		go func(i int, gt GridTile) {
			defer func() {
				wg.Done()
				<-workers
			}()
			if ctx.Err() != nil {
				return
			}
			data, err := f.fetchTile(ctx, gt.Tile, provider)
			bar.Increment()
			if err != nil {
				mu.Lock()
				if firstErr == nil && !errors.Is(err, context.Canceled) {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				return
			}
			results[i] = FetchedTile{GridTile: gt, Data: data}
		}(i, gt)
	}
	wg.Wait()
	bar.Finish()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (f *Fetcher) fetchTile(ctx context.Context, t TileXyz, provider Provider) ([]byte, error) {
	if f.Store != nil {
		if data, ok := f.Store.Get(t); ok {
			return data, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= f.Retries; attempt++ {
		if attempt > 0 {
			log.Debugf("retrying tile %s, attempt %d", t.ToString(), attempt)
			time.Sleep(time.Duration(200+attempt*200) * time.Millisecond)
		}
		data, err := f.download(ctx, t, provider)
		if err == nil {
			if f.Store != nil {
				f.Store.Put(t, data)
			}
			return data, nil
		}
		var sizeErr *TileSizeMismatchError
		if errors.As(err, &sizeErr) || ctx.Err() != nil {
			//wrong dimensions will not fix themselves on retry
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *Fetcher) download(ctx context.Context, t TileXyz, provider Provider) ([]byte, error) {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.FillURL(t), nil)
	if err != nil {
		return nil, &TileFetchError{Tile: t, Err: err}
	}
	req.Header.Set("User-Agent", f.UserAgent)
	for k, v := range provider.Headers {
		req.Header.Set(k, v)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &TileFetchError{Tile: t, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnf("response close failure for %s", t.ToString())
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, &TileFetchError{Tile: t, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TileFetchError{Tile: t, Err: err}
	}
	if len(body) == 0 {
		return nil, &TileFetchError{Tile: t, Err: errors.New("empty tile body")}
	}
	if err := validateTile(t, body, provider.TileSize); err != nil {
		return nil, err
	}
	return body, nil
}

//validateTile checks the payload decodes as a raster of the expected square
//size without decoding the full pixel data.
func validateTile(t TileXyz, data []byte, tileSize int) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return &TileFetchError{Tile: t, Err: fmt.Errorf("undecodable tile payload: %w", err)}
	}
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	if cfg.Width != tileSize || cfg.Height != tileSize {
		return &TileSizeMismatchError{Tile: t, Width: cfg.Width, Height: cfg.Height, Expected: tileSize}
	}
	return nil
}
