// Package detection finds round, colour-matched candidate objects in a tile.
package detection

import (
	"context"
	"fmt"
	"image"

	"cell-sweeper/internal/logger"
	"cell-sweeper/internal/models"
	"cell-sweeper/internal/opencv/conversion"
	"cell-sweeper/internal/opencv/safe"
	"cell-sweeper/internal/processing/chain"
	"cell-sweeper/internal/processing/filters"
	"cell-sweeper/internal/timing"

	"gocv.io/x/gocv"
)

// Candidate is a contour that passed the area and circularity filter.
type Candidate struct {
	Contour []image.Point
	Measurement
}

// Result is the output of one tile evaluation. Mask is owned by the Result;
// call Close after rendering.
type Result struct {
	Mask       *safe.Mat
	Candidates []Candidate
	Contours   int
}

func (r *Result) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Candidates)
}

func (r *Result) Close() {
	if r != nil && r.Mask != nil {
		r.Mask.Close()
	}
}

// Pipeline segments a tile by HSV range and keeps round contours.
type Pipeline struct {
	segment *chain.ProcessingChain
	timings *timing.Tracker
	logger  logger.Logger
}

func NewPipeline(log logger.Logger) *Pipeline {
	timings := timing.NewTracker()
	return &Pipeline{
		segment: chain.NewProcessingChain(
			filters.NewHSVConverter(),
			filters.NewBilateralFilter(),
			filters.NewHSVThreshold(),
		).WithTracker(timings),
		timings: timings,
		logger:  log,
	}
}

// Timings holds per-stage durations of every Detect call, plus "contours"
// for candidate extraction and "detect" for the whole evaluation.
func (p *Pipeline) Timings() *timing.Tracker { return p.timings }

// Stages names the segmentation steps in execution order.
func (p *Pipeline) Stages() []string {
	return p.segment.GetStepNames()
}

// Detect evaluates img against params. Callers are expected to skip blank
// tiles with IsBlank first; Detect itself does not.
func (p *Pipeline) Detect(ctx context.Context, img image.Image, params models.DetectorParams) (*Result, error) {
	detectCtx := p.timings.StartTiming(ctx, "detect")
	defer p.timings.EndTiming(detectCtx)

	bgr, err := conversion.ImageToMat(img)
	if err != nil {
		return nil, fmt.Errorf("tile conversion failed: %w", err)
	}
	defer bgr.Close()

	mask, err := p.segment.Execute(ctx, bgr, params)
	if err != nil {
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}

	contourCtx := p.timings.StartTiming(ctx, "contours")
	candidates, total := extractCandidates(mask, params)
	p.timings.EndTiming(contourCtx)

	p.logger.Debug("Detection", "tile evaluated", map[string]interface{}{
		"contours":   total,
		"candidates": len(candidates),
	})

	return &Result{Mask: mask, Candidates: candidates, Contours: total}, nil
}

func extractCandidates(mask *safe.Mat, params models.DetectorParams) ([]Candidate, int) {
	contours := gocv.FindContours(mask.GetMat(), gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer contours.Close()

	var candidates []Candidate
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		m := Measurement{
			Area:      gocv.ContourArea(contour),
			Perimeter: gocv.ArcLength(contour, true),
		}
		if !Accept(m, params) {
			continue
		}
		candidates = append(candidates, Candidate{Contour: contour.ToPoints(), Measurement: m})
	}
	return candidates, contours.Size()
}
