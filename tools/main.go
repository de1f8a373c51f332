package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	log "github.com/sirupsen/logrus"
)

//Dumps N sampled points from a geojson region as "lon lat" lines, one per
//row, for eyeballing the sampling distribution:
//  go run ./tools region.geojson 1000 | gnuplot -p -e "plot '<cat'"

type shape struct {
	polygon orb.Polygon
	bound   orb.Bound
	cum     float64
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: sampledump region.geojson [count]")
		os.Exit(2)
	}
	count := 1000
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("bad count %q", os.Args[2])
		}
		count = n
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("unable to read file: %v", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		log.Fatalf("unable to unmarshal feature: %v", err)
	}

	var shapes []shape
	var total float64
	for _, f := range fc.Features {
		var polys []orb.Polygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polys = append(polys, g)
		case orb.MultiPolygon:
			polys = append(polys, g...)
		}
		for _, p := range polys {
			a := math.Abs(geo.Area(p))
			if a <= 0 {
				continue
			}
			total += a
			shapes = append(shapes, shape{polygon: p, bound: p.Bound(), cum: total})
		}
	}
	if len(shapes) == 0 {
		log.Fatalf("no polygon with positive area in %s", os.Args[1])
	}
	for i := range shapes {
		shapes[i].cum /= total
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for n := 0; n < count; n++ {
		//one polygon pick per emitted point, redraw inside it until contained
		s := pick(shapes, rng.Float64())
		emitted := false
		for i := 0; i < 10000; i++ {
			lon, lat := randomIn(s.bound, rng)
			if planar.PolygonContains(s.polygon, orb.Point{lon, lat}) {
				fmt.Printf("%f %f\n", lon, lat)
				emitted = true
				break
			}
		}
		if !emitted {
			log.Fatalf("sampling stalled on a degenerate polygon")
		}
	}
}

func pick(shapes []shape, u float64) shape {
	for _, s := range shapes {
		if u < s.cum {
			return s
		}
	}
	return shapes[len(shapes)-1]
}

func randomIn(bound orb.Bound, rng *rand.Rand) (float64, float64) {
	north := bound.Max.Lat() * math.Pi / 180
	south := bound.Min.Lat() * math.Pi / 180
	lat := math.Asin(rng.Float64()*(math.Sin(north)-math.Sin(south))+math.Sin(south)) * 180 / math.Pi
	width := bound.Max.Lon() - bound.Min.Lon()
	if width < 0 {
		width += 360
	}
	lon := bound.Min.Lon() + width*rng.Float64()
	if lon > 180 {
		lon -= 360
	}
	return lon, lat
}
