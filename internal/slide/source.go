// Package slide provides the whole-slide image source: region reads at a
// resolution level, scan bounds and per-level downsample factors.
package slide

import (
	"image"
)

// Source is a multi-resolution image addressed in level-0 pixel coordinates.
type Source interface {
	// Bounds is the scan region in level-0 coordinates.
	Bounds() image.Rectangle
	// LevelCount is the number of resolution levels, level 0 being full size.
	LevelCount() int
	// LevelDownsample is the level-0 pixels per pixel at level.
	LevelDownsample(level int) float64
	// ReadRegion returns size pixels at level starting at the level-0 origin.
	// Pixels outside the slide are fully transparent.
	ReadRegion(origin image.Point, level int, size image.Point) (image.Image, error)
	Close() error
}
