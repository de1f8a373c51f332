package main

import (
	"fmt"
	"math"
)

const threeSixty float64 = 360.0
const oneEighty float64 = 180.0

//EarthCircumference 赤道周长(米)
const EarthCircumference float64 = 40075016.686

const webMercatorLatLimit float64 = 85.05112877980659

//XY holds a point in world pixel space
type XY struct {
	X, Y float64
}

//PixelRect an axis-aligned rectangle in world pixel space, floats so that
//cropping can cut inside tiles
type PixelRect struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

func (r PixelRect) Width() float64 {
	return r.Right - r.Left
}

func (r PixelRect) Height() float64 {
	return r.Bottom - r.Top
}

func deg2rad(deg float64) float64 {
	return deg * (math.Pi / oneEighty)
}

func rad2deg(rad float64) float64 {
	return rad * (oneEighty / math.Pi)
}

//GeoPoint a longitude/latitude pair in decimal degrees
type GeoPoint struct {
	Lat float64
	Lon float64
}

//Project applies the Web Mercator projection at the given zoom, returning
//fractional tile coordinates. No flooring here - the fractional part is what
//makes exact cropping of the stitched mosaic possible.
func (p GeoPoint) Project(zoom int) (float64, float64) {
	lat := math.Min(webMercatorLatLimit, math.Max(-webMercatorLatLimit, p.Lat))
	factor := (1 / (2 * math.Pi)) * math.Exp2(float64(zoom))
	x := factor * (deg2rad(p.Lon) + math.Pi)
	y := factor * (math.Pi - math.Log(math.Tan((math.Pi/4)+(deg2rad(lat)/2))))
	return x, y
}

//ProjectPx like Project but scaled to world pixels for the given tile size.
func (p GeoPoint) ProjectPx(zoom int, tileSize int) XY {
	x, y := p.Project(zoom)
	return XY{X: x * float64(tileSize), Y: y * float64(tileSize)}
}

//Fancy stringifies the point with minutes and seconds, e.g.
//44°35'27.6"N 100°21'53.1"W
func (p GeoPoint) Fancy() string {
	coord := func(v float64, pos, neg string) string {
		dir := pos
		if v < 0 {
			dir = neg
		}
		v = math.Abs(v)
		deg := math.Floor(v)
		v = (v - deg) * 60
		min := math.Floor(v)
		sec := math.Round((v-min)*600) / 10
		return fmt.Sprintf("%.0f°%.0f'%.1f\"%s", deg, min, sec, dir)
	}
	return coord(p.Lat, "N", "S") + " " + coord(p.Lon, "E", "W")
}

//MetersPerPixel ground distance covered by one pixel at the given zoom and
//latitude under Web Mercator.
func MetersPerPixel(zoom int, lat float64, tileSize int) float64 {
	return EarthCircumference * math.Cos(deg2rad(lat)) / (float64(tileSize) * math.Exp2(float64(zoom)))
}

//ZoomFor picks the smallest zoom level whose resolution at the given latitude
//is at least maxMetersPerPixel, capped at maxZoom. Smallest sufficient means
//fewest tiles fetched for adequate detail.
func ZoomFor(lat float64, maxMetersPerPixel float64, maxZoom int, tileSize int) int {
	for z := 0; z <= maxZoom; z++ {
		if MetersPerPixel(z, lat, tileSize) <= maxMetersPerPixel {
			return z
		}
	}
	return maxZoom
}

//GeoRect a rectangle between a southwestern and a northeastern corner. It may
//stretch across the antimeridian, in which case SW.Lon > NE.Lon.
type GeoRect struct {
	SW GeoPoint
	NE GeoPoint
}

func wrapLon(lon float64) float64 {
	for lon > oneEighty {
		lon -= threeSixty
	}
	for lon < -oneEighty {
		lon += threeSixty
	}
	return lon
}

//LonSpan width of the rect in degrees, antimeridian-aware.
func (r GeoRect) LonSpan() float64 {
	span := r.NE.Lon - r.SW.Lon
	if span < 0 {
		span += threeSixty
	}
	return span
}

//RectAround builds the rect covering width x height meters centered on the
//point, stretching longitudes by 1/cos(lat) since meridians converge towards
//the poles.
func RectAround(center GeoPoint, widthMeters, heightMeters float64) GeoRect {
	metersPerDegree := EarthCircumference / threeSixty
	widthDeg := widthMeters / (metersPerDegree * math.Cos(deg2rad(center.Lat)))
	heightDeg := heightMeters / metersPerDegree
	return GeoRect{
		SW: GeoPoint{Lat: center.Lat - heightDeg/2, Lon: wrapLon(center.Lon - widthDeg/2)},
		NE: GeoPoint{Lat: center.Lat + heightDeg/2, Lon: wrapLon(center.Lon + widthDeg/2)},
	}
}

//SphericalArea surface area of the rect in square kilometers, computed from
//the spherical cap band between the two latitudes constrained to the
//longitude span.
func (r GeoRect) SphericalArea() float64 {
	earthRadius := EarthCircumference / (1000 * 2 * math.Pi)
	band := (2 * math.Pi * earthRadius * earthRadius) *
		math.Abs(math.Sin(deg2rad(r.NE.Lat))-math.Sin(deg2rad(r.SW.Lat)))
	return band * r.LonSpan() / threeSixty
}
