package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

//maxSampleAttempts retry budget guarding against pathologically thin polygons
const maxSampleAttempts = 10000

type regionShape struct {
	polygon orb.Polygon
	bound   orb.Bound
	area    float64
	cum     float64 //normalized prefix sum over shape areas
}

//Region a set of polygons (with optional holes) that points are sampled from.
//Geometry is read-only after loading. The containment test is plain ray
//casting on the lon/lat ring, so regions spanning the antimeridian or the
//poles are a known limitation.
type Region struct {
	shapes []regionShape
}

//LoadRegion reads a GeoJSON feature collection and collects every Polygon and
//MultiPolygon geometry in it.
func LoadRegion(path string) (*Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region file: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal region geojson: %w", err)
	}
	var polys []orb.Polygon
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polys = append(polys, g)
		case orb.MultiPolygon:
			polys = append(polys, g...)
		}
	}
	return NewRegion(polys)
}

//NewRegion precomputes per-polygon bounding boxes and sampling weights. The
//weight is the polygon's true surface area on the sphere, not its planar or
//bounding-box area, so shapes at high latitudes are not over-picked.
func NewRegion(polys []orb.Polygon) (*Region, error) {
	r := &Region{}
	var total float64
	for _, p := range polys {
		a := math.Abs(geo.Area(p))
		if a <= 0 {
			continue
		}
		r.shapes = append(r.shapes, regionShape{
			polygon: p,
			bound:   p.Bound(),
			area:    a,
		})
		total += a
	}
	if len(r.shapes) == 0 {
		return nil, ErrEmptyRegion
	}
	cum := 0.0
	for i := range r.shapes {
		cum += r.shapes[i].area
		r.shapes[i].cum = cum / total
	}
	return r, nil
}

//Sample draws a geographically unbiased random point inside the region:
//pick a polygon weighted by spherical area, then redraw candidates in its
//bounding box (cos-latitude corrected) until one is contained. The polygon is
//chosen once per call; re-picking on every miss would tie each polygon's
//share to how well it fills its bounding box instead of to its area.
func (r *Region) Sample(rng *rand.Rand) (GeoPoint, error) {
	s := r.pickShape(rng.Float64())
	for i := 0; i < maxSampleAttempts; i++ {
		p := randomPointInBound(s.bound, rng)
		if planar.PolygonContains(s.polygon, orb.Point{p.Lon, p.Lat}) {
			return p, nil
		}
	}
	return GeoPoint{}, ErrSamplingTimeout
}

func (r *Region) pickShape(u float64) regionShape {
	for _, s := range r.shapes {
		if u < s.cum {
			return s
		}
	}
	return r.shapes[len(r.shapes)-1]
}

//randomPointInBound uniform with respect to surface area: latitude is drawn
//uniformly in the sine of the latitude range and inverted, since bands of
//equal degree height shrink towards the poles.
func randomPointInBound(bound orb.Bound, rng *rand.Rand) GeoPoint {
	north := deg2rad(bound.Max.Lat())
	south := deg2rad(bound.Min.Lat())
	lat := rad2deg(math.Asin(rng.Float64()*(math.Sin(north)-math.Sin(south)) + math.Sin(south)))

	west := bound.Min.Lon()
	east := bound.Max.Lon()
	width := east - west
	if width < 0 {
		width += threeSixty
	}
	lon := wrapLon(west + width*rng.Float64())

	return GeoPoint{Lat: lat, Lon: lon}
}
