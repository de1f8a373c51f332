package main

import (
	"errors"
	"fmt"
)

//DefaultTileSize 默认瓦片大小
const DefaultTileSize = 256

//TileXyz 瓦片坐标
type TileXyz struct {
	X int
	Y int
	Z int
}

//ToString returns a string representation of the tile.
func (tile TileXyz) ToString() string {
	return fmt.Sprintf("{%d/%d/%d}", tile.Z, tile.X, tile.Y)
}

//GridTile a tile plus its column/row slot within a TileGrid. The slot is kept
//separately because grids spanning the antimeridian wrap X modulo 2^z, so the
//wrapped X alone cannot recover the paste position.
type GridTile struct {
	Col  int
	Row  int
	Tile TileXyz
}

//FetchedTile 下载完成的瓦片
type FetchedTile struct {
	GridTile
	Data []byte
}

//TileGrid the rectangular tile range covering a viewport's pixel bounding box
//at a fixed zoom. MinX may run past 2^zoom-1 for antimeridian-spanning grids;
//Tiles() wraps the X index into range.
type TileGrid struct {
	Zoom     int
	TileSize int
	MinX     int
	MinY     int
	Cols     int
	Rows     int
}

//Tiles enumerates the grid row-major, wrapping tile X modulo 2^zoom.
func (g TileGrid) Tiles() []GridTile {
	n := 1 << uint(g.Zoom)
	out := make([]GridTile, 0, g.Cols*g.Rows)
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			x := (g.MinX + col) % n
			if x < 0 {
				x += n
			}
			out = append(out, GridTile{
				Col:  col,
				Row:  row,
				Tile: TileXyz{X: x, Y: g.MinY + row, Z: g.Zoom},
			})
		}
	}
	return out
}

//Count 瓦片总数
func (g TileGrid) Count() int {
	return g.Cols * g.Rows
}

//PixelWidth canvas width of the full grid in pixels
func (g TileGrid) PixelWidth() int {
	return g.Cols * g.TileSize
}

//PixelHeight canvas height of the full grid in pixels
func (g TileGrid) PixelHeight() int {
	return g.Rows * g.TileSize
}

//OriginPx top-left corner of the grid in world pixel space at the grid's zoom
func (g TileGrid) OriginPx() XY {
	return XY{X: float64(g.MinX * g.TileSize), Y: float64(g.MinY * g.TileSize)}
}

var (
	//ErrEmptyRegion region has no polygon with positive area
	ErrEmptyRegion = errors.New("region contains no polygon with positive area")
	//ErrSamplingTimeout rejection sampling did not converge
	ErrSamplingTimeout = errors.New("sampling did not yield a contained point within the attempt budget")
)

//TileFetchError a tile could not be downloaded; fatal for the run.
type TileFetchError struct {
	Tile   TileXyz
	Status int
	Err    error
}

func (e *TileFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch tile %s: status code %d", e.Tile.ToString(), e.Status)
	}
	return fmt.Sprintf("fetch tile %s: %v", e.Tile.ToString(), e.Err)
}

func (e *TileFetchError) Unwrap() error {
	return e.Err
}

//TileSizeMismatchError the provider returned a raster of unexpected dimensions.
type TileSizeMismatchError struct {
	Tile     TileXyz
	Width    int
	Height   int
	Expected int
}

func (e *TileSizeMismatchError) Error() string {
	return fmt.Sprintf("tile %s is %dx%d, expected %dx%d",
		e.Tile.ToString(), e.Width, e.Height, e.Expected, e.Expected)
}
