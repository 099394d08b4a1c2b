// Package display shows scan frames in OpenCV highgui windows and turns
// trackbar movement and key presses into operator input.
package display

import (
	"fmt"
	"io"
	"time"

	"cell-sweeper/internal/detection"
	"cell-sweeper/internal/logger"
	"cell-sweeper/internal/models"
	"cell-sweeper/internal/opencv/conversion"
	"cell-sweeper/internal/opencv/safe"
	"cell-sweeper/internal/scanner"

	"gocv.io/x/gocv"
)

const (
	MaskWindow     = "Mask"
	OriginalWindow = "Original"
	DetectedWindow = "Detected"
	OverviewWindow = "Overview"
)

// Windows implements scanner.Sink. All methods must be called from the
// goroutine that created it.
type Windows struct {
	mask     *gocv.Window
	original *gocv.Window
	detected *gocv.Window
	overview *gocv.Window
	controls *controlSet
	logger   logger.Logger
}

// Open creates the four windows and the detector trackbars on the mask
// window, positioned at params.
func Open(params models.DetectorParams, log logger.Logger) *Windows {
	w := &Windows{
		mask:     gocv.NewWindow(MaskWindow),
		original: gocv.NewWindow(OriginalWindow),
		detected: gocv.NewWindow(DetectedWindow),
		overview: gocv.NewWindow(OverviewWindow),
		logger:   log,
	}

	w.controls = newControlSet(params, func(spec models.ParameterSpec) slider {
		return w.mask.CreateTrackbar(spec.Label, spec.Range.Max)
	})

	log.Info("Display", "windows opened", map[string]interface{}{
		"trackbars": len(w.controls.controls),
	})
	return w
}

func (w *Windows) Present(frame scanner.Frame) error {
	tile, err := conversion.ImageToMat(frame.Original)
	if err != nil {
		return fmt.Errorf("failed to convert tile: %w", err)
	}
	defer tile.Close()

	var (
		mask       *safe.Mat
		candidates []detection.Candidate
	)
	if frame.Result != nil {
		candidates = frame.Result.Candidates
	}
	if frame.Result != nil && frame.Result.Mask.IsValid() {
		mask = frame.Result.Mask
	} else {
		blank, err := blankMask(frame.Original.Bounds().Size())
		if err != nil {
			return err
		}
		defer blank.Close()
		mask = blank
	}

	detected, err := RenderDetected(tile, candidates)
	if err != nil {
		return fmt.Errorf("failed to draw candidates: %w", err)
	}
	defer detected.Close()

	w.mask.IMShow(mask.GetMat())
	w.original.IMShow(tile.GetMat())
	w.detected.IMShow(detected.GetMat())
	if frame.Overview.IsValid() {
		w.overview.IMShow(frame.Overview.GetMat())
	}

	w.logger.Debug("Display", "frame presented", map[string]interface{}{
		"tile":       frame.Tile.Index,
		"candidates": len(candidates),
	})
	return nil
}

// WaitKey pumps the highgui event loop for delay and returns the key
// pressed, or scanner.NoKey.
func (w *Windows) WaitKey(delay time.Duration) int {
	ms := int(delay / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return w.mask.WaitKey(ms)
}

func (w *Windows) ParameterChanges() []models.ParameterChange {
	return w.controls.changes()
}

// Close destroys every window, even when an earlier one fails, and returns
// the first error.
func (w *Windows) Close() error {
	return closeAll(w.overview, w.detected, w.original, w.mask)
}

func closeAll(closers ...io.Closer) error {
	var first error
	for _, c := range closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
