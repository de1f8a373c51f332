package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

//flag
var (
	hf bool
	cf string
	pf string
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	flag.StringVar(&pf, "p", "", "fixed `lat,lon` point, overrides region sampling")
	flag.Usage = usage
	//InitLog 初始化日志
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	file, err := os.OpenFile("aerialtiler.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	writers := []io.Writer{os.Stdout}
	if err == nil {
		writers = append(writers, file)
	}
	log.SetOutput(io.MultiWriter(writers...))
	if err != nil {
		log.Info("failed to log to file.")
	}
	log.SetLevel(log.DebugLevel)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Aerial-Tiler version: Aerial-Tiler/1.0
Usage: Aerial-Tiler [-h] [-c filename] [-p lat,lon]
`)
	flag.PrintDefaults()
}

//initConf 初始化配置
func initConf(cfgFile string) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv() // read in environment variables that match
	err := viper.ReadInConfig()
	if err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
	viper.SetDefault("region.geojson", "")
	viper.SetDefault("region.point", "")
	viper.SetDefault("image.width", 2000.0)
	viper.SetDefault("image.height", 2000.0)
	viper.SetDefault("image.out_width", 1000)
	viper.SetDefault("image.out_height", 1000)
	viper.SetDefault("image.rotation", 0.0)
	viper.SetDefault("image.format", "png")
	viper.SetDefault("image.quality", 90)
	viper.SetDefault("image.directory", "output")
	viper.SetDefault("provider.preset", "esri-satellite")
	viper.SetDefault("provider.url", "")
	viper.SetDefault("provider.tile_size", 0)
	viper.SetDefault("provider.max_zoom", 0)
	viper.SetDefault("provider.user_agent", "")
	viper.SetDefault("task.workers", 4)
	viper.SetDefault("task.retries", 0)
	viper.SetDefault("task.timeout", "30s")
	viper.SetDefault("task.rate_limit", 0.0)
	viper.SetDefault("task.burst", 4)
	viper.SetDefault("cache.format", "off")
	viper.SetDefault("cache.directory", "tile-cache")
	viper.SetDefault("cache.conn", "")
	viper.SetDefault("redis.enable", false)
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("discord.enable", false)
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.channel", "")
}

func resolveProvider() Provider {
	preset := viper.GetString("provider.preset")
	provider, ok := Presets[preset]
	if !ok {
		provider = Provider{Name: preset, TileSize: DefaultTileSize, MaxZoom: 19}
	}
	if url := viper.GetString("provider.url"); url != "" {
		provider.URLTemplate = url
	}
	if ts := viper.GetInt("provider.tile_size"); ts > 0 {
		provider.TileSize = ts
	}
	if mz := viper.GetInt("provider.max_zoom"); mz > 0 {
		provider.MaxZoom = mz
	}
	return provider
}

func parsePoint(s string) (GeoPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return GeoPoint{}, fmt.Errorf("point must be lat,lon: %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return GeoPoint{}, err
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return GeoPoint{}, err
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return GeoPoint{}, fmt.Errorf("point out of range: %q", s)
	}
	return GeoPoint{Lat: lat, Lon: lon}, nil
}

func main() {
	flag.Parse()
	if hf {
		flag.Usage()
		return
	}
	if cf == "" {
		cf = "conf.toml"
	}
	_ = godotenv.Load()
	initConf(cf)
	start := time.Now()
	runID := uuid.New().String()
	log.Infof("run %s starting", runID)

	var history *History
	if viper.GetBool("redis.enable") {
		history = NewHistory(viper.GetString("redis.addr"))
		defer history.Close()
	}

	provider := resolveProvider()
	if provider.URLTemplate == "" {
		log.Fatalf("provider %s has no url template", provider.Name)
	}

	//point: cli flag > config point > region sampling
	pointArg := pf
	if pointArg == "" {
		pointArg = viper.GetString("region.point")
	}
	var point GeoPoint
	if pointArg != "" {
		p, err := parsePoint(pointArg)
		if err != nil {
			log.Fatalf("sample: %s", err)
		}
		point = p
		log.Infof("using fixed point %s", point.Fancy())
	} else {
		geojson := viper.GetString("region.geojson")
		if geojson == "" {
			log.Fatalf("sample: neither region.geojson nor a point configured")
		}
		region, err := LoadRegion(geojson)
		if err != nil {
			log.Fatalf("sample: %s", err)
		}
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		point, err = region.Sample(rng)
		if err != nil {
			log.Fatalf("sample: %s", err)
		}
		log.Infof("sampled point %s", point.Fancy())
	}

	spec := ViewportSpec{
		Center:    point,
		WidthM:    viper.GetFloat64("image.width"),
		HeightM:   viper.GetFloat64("image.height"),
		OutWidth:  viper.GetInt("image.out_width"),
		OutHeight: viper.GetInt("image.out_height"),
		Rotation:  viper.GetFloat64("image.rotation"),
		MaxZoom:   provider.MaxZoom,
		TileSize:  provider.TileSize,
	}
	plan, err := PlanViewport(spec)
	if err != nil {
		log.Fatalf("plan: %s", err)
	}
	log.Infof("zoom %d, %d tiles (%dx%d grid), %.2f km2",
		plan.Zoom, plan.Grid.Count(), plan.Grid.Cols, plan.Grid.Rows, plan.Rect.SphericalArea())

	store, err := OpenTileStore(viper.GetString("cache.format"), viper.GetString("cache.directory"), viper.GetString("cache.conn"))
	if err != nil {
		log.Fatalf("cache: %s", err)
	}
	defer store.Close()

	fetcher := NewFetcher(
		viper.GetInt("task.workers"),
		viper.GetInt("task.retries"),
		viper.GetDuration("task.timeout"),
		viper.GetFloat64("task.rate_limit"),
		viper.GetInt("task.burst"),
		store,
	)
	if ua := viper.GetString("provider.user_agent"); ua != "" {
		fetcher.UserAgent = ua
	}
	tiles, err := fetcher.Fetch(context.Background(), plan.Grid, provider)
	if err != nil {
		var fe *TileFetchError
		if errors.As(err, &fe) {
			history.SaveFailedTile(runID, fe.Tile, err.Error())
		}
		var se *TileSizeMismatchError
		if errors.As(err, &se) {
			history.SaveFailedTile(runID, se.Tile, err.Error())
		}
		log.Fatalf("fetch: %s", err)
	}

	img, err := Assemble(tiles, plan, spec)
	if err != nil {
		log.Fatalf("assemble: %s", err)
	}

	format := viper.GetString("image.format")
	ext := "png"
	if format == "jpg" || format == "jpeg" {
		ext = "jpg"
	}
	path := filepath.Join(viper.GetString("image.directory"),
		fmt.Sprintf("aerial-%s-%s-%.6f_%.6f.%s",
			time.Now().Format("2006-01-02T15.04.05"), runID[:8], point.Lat, point.Lon, ext))
	if err = WriteImage(img, path, format, viper.GetInt("image.quality")); err != nil {
		log.Fatalf("save: %s", err)
	}
	log.Infof("saved %s", path)

	history.SavePoint(runID, point, plan.Zoom)

	if viper.GetBool("discord.enable") {
		poster, err := NewPoster(viper.GetString("discord.token"), viper.GetString("discord.channel"))
		if err != nil {
			log.Fatalf("post: %s", err)
		}
		if err = poster.PostSnapshot(path, point, plan.Zoom, provider.Attribution); err != nil {
			log.Fatalf("post: %s", err)
		}
		log.Infof("posted to discord")
	}

	secs := time.Since(start).Seconds()
	fmt.Printf("\n%.3fs finished...", secs)
}
