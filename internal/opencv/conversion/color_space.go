package conversion

import (
	"fmt"

	"cell-sweeper/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ConvertBGRToHSV converts a BGR image to OpenCV's 8-bit HSV (H in [0,180)).
func ConvertBGRToHSV(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateColorConversion(src, gocv.ColorBGRToHSV); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	dst := gocv.NewMat()
	gocv.CvtColor(src.GetMat(), &dst, gocv.ColorBGRToHSV)

	return safe.Adopt(dst, "hsv")
}
