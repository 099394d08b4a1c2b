// Package tiles partitions a scan region into fixed-size tiles and keeps the
// per-tile candidate annotations for a session.
package tiles

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// DefaultEdge is the tile edge length in base-resolution pixels.
const DefaultEdge = 1024

// Tile is one scan position. Origin is in base-resolution coordinates.
type Tile struct {
	Index  int
	Origin image.Point
}

// Annotation is the sticky result of the last visit to a tile.
type Annotation struct {
	Visited    bool
	Candidates int
}

// Color is the overview colour for the annotation: green scaled by two per
// candidate, saturating at 255. Unvisited tiles are black.
func (a Annotation) Color() color.RGBA {
	return CandidateColor(a.Candidates)
}

// CandidateColor maps a candidate count to (0, min(255, 2n), 0).
func CandidateColor(n int) color.RGBA {
	g := n * 2
	if g > 255 {
		g = 255
	}
	if g < 0 {
		g = 0
	}
	return color.RGBA{R: 0, G: uint8(g), B: 0, A: 255}
}

// Grid is the row-major tile layout of a scan region.
type Grid struct {
	region      image.Rectangle
	edge        int
	origins     []image.Point
	annotations []Annotation
}

// NewGrid lays tiles of the given edge over region, top row first.
func NewGrid(region image.Rectangle, edge int) (*Grid, error) {
	if edge <= 0 {
		return nil, fmt.Errorf("tile edge must be positive, got %d", edge)
	}
	if region.Empty() {
		return nil, fmt.Errorf("scan region %v is empty", region)
	}

	var origins []image.Point
	for y := region.Min.Y; y < region.Max.Y; y += edge {
		for x := region.Min.X; x < region.Max.X; x += edge {
			origins = append(origins, image.Pt(x, y))
		}
	}

	return &Grid{
		region:      region,
		edge:        edge,
		origins:     origins,
		annotations: make([]Annotation, len(origins)),
	}, nil
}

func (g *Grid) Region() image.Rectangle { return g.region }
func (g *Grid) Count() int              { return len(g.origins) }

// Columns is the number of tiles per row.
func (g *Grid) Columns() int {
	return (g.region.Dx() + g.edge - 1) / g.edge
}

// Tile returns the tile at index i, which must be in [0, Count()).
func (g *Grid) Tile(i int) Tile {
	return Tile{Index: i, Origin: g.origins[i]}
}

// Size is the read size for every tile, partial edge tiles included.
func (g *Grid) Size() image.Point {
	return image.Pt(g.edge, g.edge)
}

// Tiles returns all tiles in scan order.
func (g *Grid) Tiles() []Tile {
	out := make([]Tile, len(g.origins))
	for i, o := range g.origins {
		out[i] = Tile{Index: i, Origin: o}
	}
	return out
}

// Annotate records the candidate count of the latest visit to tile i.
func (g *Grid) Annotate(i, candidates int) {
	g.annotations[i] = Annotation{Visited: true, Candidates: candidates}
}

// Annotation returns the sticky annotation of tile i.
func (g *Grid) Annotation(i int) Annotation {
	return g.annotations[i]
}

// Footprint maps tile i onto an overview scaled by downsample. It returns the
// inclusive top-left and bottom-right corners of the annotation rectangle;
// the current-tile highlight extends one unit past max in both axes.
func (g *Grid) Footprint(i int, downsample float64) (min, max image.Point) {
	off := g.origins[i].Sub(g.region.Min)
	min = image.Pt(int(float64(off.X)/downsample), int(float64(off.Y)/downsample))
	max = image.Pt(
		int(float64(off.X+g.edge)/downsample)-1,
		int(float64(off.Y+g.edge)/downsample)-1,
	)
	return min, max
}

// OverviewSize is the pixel size of the whole region at downsample.
func (g *Grid) OverviewSize(downsample float64) image.Point {
	w := int(math.Ceil(float64(g.region.Dx()) / downsample))
	h := int(math.Ceil(float64(g.region.Dy()) / downsample))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return image.Pt(w, h)
}
