package filters

import (
	"context"
	"fmt"

	"cell-sweeper/internal/models"
	"cell-sweeper/internal/opencv/conversion"
	"cell-sweeper/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// HSVConverter turns a BGR tile into OpenCV HSV.
type HSVConverter struct{}

func NewHSVConverter() *HSVConverter {
	return &HSVConverter{}
}

func (h *HSVConverter) Name() string {
	return "hsv_converter"
}

func (h *HSVConverter) ShouldExecute(params models.DetectorParams) bool {
	return true
}

func (h *HSVConverter) Apply(ctx context.Context, input *safe.Mat, params models.DetectorParams) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return conversion.ConvertBGRToHSV(input)
}

const (
	DefaultBilateralDiameter   = 5
	DefaultBilateralSigmaColor = 75.0
	DefaultBilateralSigmaSpace = 75.0
)

// BilateralFilter suppresses speckle while keeping object boundaries sharp.
type BilateralFilter struct {
	Diameter   int
	SigmaColor float64
	SigmaSpace float64
}

func NewBilateralFilter() *BilateralFilter {
	return &BilateralFilter{
		Diameter:   DefaultBilateralDiameter,
		SigmaColor: DefaultBilateralSigmaColor,
		SigmaSpace: DefaultBilateralSigmaSpace,
	}
}

func (b *BilateralFilter) Name() string {
	return "bilateral_filter"
}

func (b *BilateralFilter) ShouldExecute(params models.DetectorParams) bool {
	return b.Diameter > 0
}

func (b *BilateralFilter) Apply(ctx context.Context, input *safe.Mat, params models.DetectorParams) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateMatForOperation(input, "bilateral filter"); err != nil {
		return nil, err
	}

	dst := gocv.NewMat()
	gocv.BilateralFilter(input.GetMat(), &dst, b.Diameter, b.SigmaColor, b.SigmaSpace)

	return safe.Adopt(dst, "bilateral")
}

// HSVThreshold selects pixels inside the configured HSV box, bounds inclusive.
type HSVThreshold struct{}

func NewHSVThreshold() *HSVThreshold {
	return &HSVThreshold{}
}

func (t *HSVThreshold) Name() string {
	return "hsv_threshold"
}

func (t *HSVThreshold) ShouldExecute(params models.DetectorParams) bool {
	return true
}

func (t *HSVThreshold) Apply(ctx context.Context, input *safe.Mat, params models.DetectorParams) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := safe.ValidateChannels(input, 3, "hsv threshold"); err != nil {
		return nil, err
	}

	lower := gocv.NewScalar(float64(params.Low.H), float64(params.Low.S), float64(params.Low.V), 0)
	upper := gocv.NewScalar(float64(params.High.H), float64(params.High.S), float64(params.High.V), 0)

	mask := gocv.NewMat()
	gocv.InRangeWithScalar(input.GetMat(), lower, upper, &mask)

	if mask.Channels() != 1 {
		mask.Close()
		return nil, fmt.Errorf("threshold produced %d channels, want 1", mask.Channels())
	}
	return safe.Adopt(mask, "mask")
}
