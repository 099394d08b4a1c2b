// Package overview renders the coarse whole-region map with per-tile
// candidate colouring and the current-tile marker.
package overview

import (
	"fmt"
	"image"
	"image/color"

	"cell-sweeper/internal/logger"
	"cell-sweeper/internal/opencv/conversion"
	"cell-sweeper/internal/opencv/safe"
	"cell-sweeper/internal/tiles"

	"gocv.io/x/gocv"
)

// DefaultLevel is the pyramid level the overview background is read at.
const DefaultLevel = 7

// HighlightColor outlines the tile currently being shown.
var HighlightColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// RegionReader is the part of the slide source the compositor needs.
type RegionReader interface {
	ReadRegion(origin image.Point, level int, size image.Point) (image.Image, error)
	LevelDownsample(level int) float64
}

// Compositor draws the overview for a grid. The background is read once.
type Compositor struct {
	grid       *tiles.Grid
	background *safe.Mat
	downsample float64
	level      int
	logger     logger.Logger
}

func NewCompositor(src RegionReader, grid *tiles.Grid, level int, log logger.Logger) (*Compositor, error) {
	ds := src.LevelDownsample(level)
	if ds <= 0 {
		return nil, fmt.Errorf("invalid downsample %v for level %d", ds, level)
	}

	size := grid.OverviewSize(ds)
	img, err := src.ReadRegion(grid.Region().Min, level, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read overview background: %w", err)
	}

	bg, err := conversion.ImageToMat(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert overview background: %w", err)
	}

	log.Info("Overview", "overview background loaded", map[string]interface{}{
		"level":      level,
		"downsample": ds,
		"width":      size.X,
		"height":     size.Y,
	})

	return &Compositor{
		grid:       grid,
		background: bg,
		downsample: ds,
		level:      level,
		logger:     log,
	}, nil
}

// Render returns a fresh BGR overview with every tile outlined in its
// annotation colour and current outlined in HighlightColor on top. gocv
// draws image.Rectangle.Max inclusively, so the highlight's far corner sits
// one pixel beyond the annotation outline.
func (c *Compositor) Render(current int) (*safe.Mat, error) {
	if current < 0 || current >= c.grid.Count() {
		return nil, fmt.Errorf("tile %d out of range [0, %d)", current, c.grid.Count())
	}

	out, err := c.background.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to copy overview background: %w", err)
	}

	for i := 0; i < c.grid.Count(); i++ {
		min, max := c.grid.Footprint(i, c.downsample)
		drawOutline(out, image.Rectangle{Min: min, Max: max}, c.grid.Annotation(i).Color())
	}

	min, max := c.grid.Footprint(current, c.downsample)
	drawOutline(out, image.Rectangle{Min: min, Max: max.Add(image.Pt(1, 1))}, HighlightColor)

	return out, nil
}

func drawOutline(dst *safe.Mat, r image.Rectangle, col color.RGBA) {
	gocv.RectangleWithParams(dst.Ptr(), r, col, 1, gocv.Line8, 0)
}

func (c *Compositor) Close() {
	c.background.Close()
}
