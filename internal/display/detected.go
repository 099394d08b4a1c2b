package display

import (
	"fmt"
	"image"
	"image/color"

	"cell-sweeper/internal/detection"
	"cell-sweeper/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ContourColor outlines accepted candidates in the detected view.
var ContourColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// RenderDetected returns a copy of tile with every candidate contour drawn.
func RenderDetected(tile *safe.Mat, candidates []detection.Candidate) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(tile, "RenderDetected"); err != nil {
		return nil, err
	}

	out, err := tile.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to copy tile: %w", err)
	}
	if len(candidates) == 0 {
		return out, nil
	}

	pts := make([][]image.Point, len(candidates))
	for i, c := range candidates {
		pts[i] = c.Contour
	}
	contours := gocv.NewPointsVectorFromPoints(pts)
	defer contours.Close()

	gocv.DrawContours(out.Ptr(), contours, -1, ContourColor, 1)
	return out, nil
}

// blankMask is shown in place of a mask for tiles that were not evaluated.
func blankMask(size image.Point) (*safe.Mat, error) {
	return safe.NewZeroMat(size.Y, size.X, gocv.MatTypeCV8UC1, "blank_mask")
}
