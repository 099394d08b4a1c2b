package detection

import (
	"math"

	"cell-sweeper/internal/models"
)

// Measurement is the geometry of one extracted contour.
type Measurement struct {
	Area      float64
	Perimeter float64
}

// Circularity is 4π·area/perimeter²: 1 for a circle, smaller for elongated or
// ragged shapes. It is 0 for a zero perimeter.
func (m Measurement) Circularity() float64 {
	if m.Perimeter == 0 {
		return 0
	}
	return 4 * math.Pi * m.Area / (m.Perimeter * m.Perimeter)
}

// Accept applies the shape filter: non-zero perimeter, area strictly inside
// (AreaMin, AreaMax), circularity strictly above CircularityMin.
func Accept(m Measurement, params models.DetectorParams) bool {
	if m.Perimeter == 0 {
		return false
	}
	if !(float64(params.AreaMin) < m.Area && m.Area < float64(params.AreaMax)) {
		return false
	}
	return m.Circularity() > params.CircularityMin
}
