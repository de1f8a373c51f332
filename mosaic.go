package main

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

//Assemble stitches fetched tiles into one canvas, rotates it about the
//viewport center when a rotation was requested, crops it to the exact
//viewport rectangle and scales the result to the requested output size. The
//returned image is always exactly OutWidth x OutHeight.
func Assemble(tiles []FetchedTile, plan *ViewPlan, spec ViewportSpec) (*image.RGBA, error) {
	grid := plan.Grid
	ts := grid.TileSize
	canvas := image.NewRGBA(image.Rect(0, 0, grid.PixelWidth(), grid.PixelHeight()))

	for _, ft := range tiles {
		img, _, err := image.Decode(bytes.NewReader(ft.Data))
		if err != nil {
			return nil, fmt.Errorf("decode tile %s: %w", ft.Tile.ToString(), err)
		}
		b := img.Bounds()
		if b.Dx() != ts || b.Dy() != ts {
			return nil, &TileSizeMismatchError{Tile: ft.Tile, Width: b.Dx(), Height: b.Dy(), Expected: ts}
		}
		dp := image.Pt(ft.Col*ts, ft.Row*ts)
		draw.Draw(canvas, image.Rectangle{Min: dp, Max: dp.Add(image.Pt(ts, ts))}, img, b.Min, draw.Src)
	}

	origin := grid.OriginPx()
	cx := plan.Center.X - origin.X
	cy := plan.Center.Y - origin.Y

	if spec.Rotation != 0 {
		//undo the viewport rotation so the crop stays axis-aligned
		canvas = rotateAbout(canvas, -spec.Rotation, cx, cy)
	}

	x0 := int(math.Round(plan.Viewport.Left - origin.X))
	y0 := int(math.Round(plan.Viewport.Top - origin.Y))
	x1 := int(math.Round(plan.Viewport.Right - origin.X))
	y1 := int(math.Round(plan.Viewport.Bottom - origin.Y))
	if x1 <= x0 || y1 <= y0 {
		return nil, fmt.Errorf("degenerate crop rectangle %dx%d", x1-x0, y1-y0)
	}
	crop := image.NewRGBA(image.Rect(0, 0, x1-x0, y1-y0))
	draw.Draw(crop, crop.Bounds(), canvas, image.Pt(x0, y0), draw.Src)

	if crop.Bounds().Dx() == spec.OutWidth && crop.Bounds().Dy() == spec.OutHeight {
		return crop, nil
	}
	out := image.NewRGBA(image.Rect(0, 0, spec.OutWidth, spec.OutHeight))
	xdraw.CatmullRom.Scale(out, out.Bounds(), crop, crop.Bounds(), xdraw.Src, nil)
	return out, nil
}

//rotateAbout rotates the image content clockwise by the given angle about
//(cx, cy), keeping the canvas dimensions. Pixels rotated in from outside the
//source stay transparent.
func rotateAbout(src *image.RGBA, degrees float64, cx, cy float64) *image.RGBA {
	rad := deg2rad(degrees)
	cos := math.Cos(rad)
	sin := math.Sin(rad)
	//maps source coordinates to destination coordinates
	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	dst := image.NewRGBA(src.Bounds())
	xdraw.BiLinear.Transform(dst, m, src, src.Bounds(), xdraw.Src, nil)
	return dst
}

//WriteImage encodes the final image to disk as png or jpg.
func WriteImage(img image.Image, path, format string, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	switch format {
	case "jpg", "jpeg":
		if quality <= 0 || quality > 100 {
			quality = 90
		}
		return jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
	default:
		return png.Encode(f, img)
	}
}
