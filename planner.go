package main

import (
	"fmt"
	"math"
)

//ViewportSpec the requested real-world window around a center point.
type ViewportSpec struct {
	Center    GeoPoint
	WidthM    float64 //real-world width in meters
	HeightM   float64 //real-world height in meters
	OutWidth  int     //output image width in pixels
	OutHeight int     //output image height in pixels
	Rotation  float64 //degrees clockwise, 0 for a north-up view
	MaxZoom   int
	TileSize  int
}

//ViewPlan 视口规划结果
type ViewPlan struct {
	Zoom int
	Grid TileGrid
	//Viewport is the unrotated viewport rectangle in world pixel space at
	//Zoom. For antimeridian-spanning viewports Right runs past the world
	//width rather than wrapping, keeping Left < Right.
	Viewport PixelRect
	//Center is the sampled point projected into the same pixel space.
	Center XY
	Rect   GeoRect
}

//PlanViewport chooses the outermost zoom level that still meets the target
//resolution and lays out the tile grid covering the viewport, including the
//bounding box of the rotated rectangle when a rotation is requested.
func PlanViewport(spec ViewportSpec) (*ViewPlan, error) {
	if spec.WidthM <= 0 || spec.HeightM <= 0 {
		return nil, fmt.Errorf("viewport extent must be positive, got %.1fx%.1fm", spec.WidthM, spec.HeightM)
	}
	if spec.OutWidth <= 0 || spec.OutHeight <= 0 {
		return nil, fmt.Errorf("output dimensions must be positive, got %dx%d", spec.OutWidth, spec.OutHeight)
	}
	ts := spec.TileSize
	if ts <= 0 {
		ts = DefaultTileSize
	}

	//the tighter of the two axis constraints wins
	target := math.Min(spec.WidthM/float64(spec.OutWidth), spec.HeightM/float64(spec.OutHeight))
	zoom := ZoomFor(spec.Center.Lat, target, spec.MaxZoom, ts)
	worldPx := float64(int(1)<<uint(zoom)) * float64(ts)

	rect := RectAround(spec.Center, spec.WidthM, spec.HeightM)
	sw := rect.SW.ProjectPx(zoom, ts)
	ne := rect.NE.ProjectPx(zoom, ts)
	viewport := PixelRect{Left: sw.X, Top: ne.Y, Right: ne.X, Bottom: sw.Y}
	if viewport.Right < viewport.Left {
		//date line crossed; unwrap so the rect stays contiguous
		viewport.Right += worldPx
	}
	center := spec.Center.ProjectPx(zoom, ts)
	if center.X < viewport.Left {
		center.X += worldPx
	}

	bbox := viewport
	if spec.Rotation != 0 {
		bbox = rotatedBounds(viewport, spec.Rotation)
	}

	minTX := int(math.Floor(bbox.Left / float64(ts)))
	maxTX := int(math.Ceil(bbox.Right/float64(ts))) - 1
	minTY := int(math.Floor(bbox.Top / float64(ts)))
	maxTY := int(math.Ceil(bbox.Bottom/float64(ts))) - 1

	//clamp rows to the pyramid; columns wrap instead (see TileGrid.Tiles)
	n := 1 << uint(zoom)
	if minTY < 0 {
		minTY = 0
	}
	if maxTY > n-1 {
		maxTY = n - 1
	}
	if maxTY < minTY {
		return nil, fmt.Errorf("viewport at %s projects to an empty tile range", spec.Center.Fancy())
	}

	return &ViewPlan{
		Zoom: zoom,
		Grid: TileGrid{
			Zoom:     zoom,
			TileSize: ts,
			MinX:     minTX,
			MinY:     minTY,
			Cols:     maxTX - minTX + 1,
			Rows:     maxTY - minTY + 1,
		},
		Viewport: viewport,
		Center:   center,
		Rect:     rect,
	}, nil
}

//rotatedBounds axis-aligned bounds of the rect rotated about its center.
func rotatedBounds(r PixelRect, degrees float64) PixelRect {
	rad := deg2rad(degrees)
	cos := math.Abs(math.Cos(rad))
	sin := math.Abs(math.Sin(rad))
	hw := r.Width() / 2
	hh := r.Height() / 2
	cx := (r.Left + r.Right) / 2
	cy := (r.Top + r.Bottom) / 2
	rw := hw*cos + hh*sin
	rh := hw*sin + hh*cos
	return PixelRect{Left: cx - rw, Top: cy - rh, Right: cx + rw, Bottom: cy + rh}
}
