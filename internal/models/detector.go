package models

import (
	"fmt"
	"math"
	"sync"
)

// Parameter names accepted by DetectorConfiguration.Update.
const (
	ParamHueMin      = "hue_min"
	ParamHueMax      = "hue_max"
	ParamSatMin      = "sat_min"
	ParamSatMax      = "sat_max"
	ParamValMin      = "val_min"
	ParamValMax      = "val_max"
	ParamAreaMin     = "area_min"
	ParamAreaMax     = "area_max"
	ParamCircularity = "circularity"
)

// ParameterRange is the closed integer domain an operator control may take.
type ParameterRange struct {
	Min int
	Max int
}

// Contains reports whether v lies in [Min, Max].
func (r ParameterRange) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// ParameterSpec describes one tunable detector option as presented to the operator.
type ParameterSpec struct {
	Name  string
	Label string
	Range ParameterRange
}

var parameterSpecs = []ParameterSpec{
	{Name: ParamHueMin, Label: "Min hue", Range: ParameterRange{0, 190}},
	{Name: ParamSatMin, Label: "Min sat", Range: ParameterRange{0, 255}},
	{Name: ParamValMin, Label: "Min val", Range: ParameterRange{0, 255}},
	{Name: ParamHueMax, Label: "Max hue", Range: ParameterRange{0, 190}},
	{Name: ParamSatMax, Label: "Max sat", Range: ParameterRange{0, 255}},
	{Name: ParamValMax, Label: "Max val", Range: ParameterRange{0, 255}},
	{Name: ParamAreaMin, Label: "Min area", Range: ParameterRange{0, 1000}},
	{Name: ParamAreaMax, Label: "Max area", Range: ParameterRange{0, 1000}},
	{Name: ParamCircularity, Label: "Min circularity", Range: ParameterRange{0, 100}},
}

// ParameterSpecs returns the nine tunable options in control order.
func ParameterSpecs() []ParameterSpec {
	out := make([]ParameterSpec, len(parameterSpecs))
	copy(out, parameterSpecs)
	return out
}

// LookupParameter finds the spec for name.
func LookupParameter(name string) (ParameterSpec, bool) {
	for _, spec := range parameterSpecs {
		if spec.Name == name {
			return spec, true
		}
	}
	return ParameterSpec{}, false
}

// HSV is an OpenCV-scaled hue/saturation/value triple.
type HSV struct {
	H, S, V int
}

// DetectorParams is an immutable snapshot of the detector thresholds.
type DetectorParams struct {
	Low            HSV
	High           HSV
	AreaMin        int
	AreaMax        int
	CircularityMin float64
}

// DefaultDetectorParams returns the thresholds tuned for dark, round immune cells.
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		Low:            HSV{H: 0, S: 0, V: 10},
		High:           HSV{H: 140, S: 255, V: 70},
		AreaMin:        150,
		AreaMax:        250,
		CircularityMin: 0.5,
	}
}

// Value returns the integer control-scale value of the named parameter.
func (p DetectorParams) Value(name string) (int, bool) {
	switch name {
	case ParamHueMin:
		return p.Low.H, true
	case ParamSatMin:
		return p.Low.S, true
	case ParamValMin:
		return p.Low.V, true
	case ParamHueMax:
		return p.High.H, true
	case ParamSatMax:
		return p.High.S, true
	case ParamValMax:
		return p.High.V, true
	case ParamAreaMin:
		return p.AreaMin, true
	case ParamAreaMax:
		return p.AreaMax, true
	case ParamCircularity:
		return int(math.Round(p.CircularityMin * 100)), true
	}
	return 0, false
}

// DegenerateRanges lists the ranges whose lower bound exceeds the upper one.
// Such ranges are legal but can never match.
func (p DetectorParams) DegenerateRanges() []string {
	var out []string
	if p.Low.H > p.High.H {
		out = append(out, "hue")
	}
	if p.Low.S > p.High.S {
		out = append(out, "sat")
	}
	if p.Low.V > p.High.V {
		out = append(out, "val")
	}
	if p.AreaMin >= p.AreaMax {
		out = append(out, "area")
	}
	return out
}

// ParameterChange is one operator edit of a detector option.
type ParameterChange struct {
	Name  string
	Value int
}

// DetectorConfiguration owns the live detector thresholds. Update is the only
// way to change them; readers take a Snapshot.
type DetectorConfiguration struct {
	mu     sync.RWMutex
	params DetectorParams
}

// NewDetectorConfiguration creates a configuration seeded with params.
func NewDetectorConfiguration(params DetectorParams) *DetectorConfiguration {
	return &DetectorConfiguration{params: params}
}

// Snapshot returns a copy of the current thresholds.
func (dc *DetectorConfiguration) Snapshot() DetectorParams {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.params
}

// Update replaces a single bound, leaving its paired bound untouched.
// Circularity is given on the 0-100 control scale.
func (dc *DetectorConfiguration) Update(name string, value int) error {
	spec, ok := LookupParameter(name)
	if !ok {
		return NewValidationError(name, value, "unknown parameter")
	}
	if !spec.Range.Contains(value) {
		return NewValidationError(name, value,
			fmt.Sprintf("value outside [%d, %d]", spec.Range.Min, spec.Range.Max))
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	p := &dc.params
	switch name {
	case ParamHueMin:
		p.Low.H = value
	case ParamSatMin:
		p.Low.S = value
	case ParamValMin:
		p.Low.V = value
	case ParamHueMax:
		p.High.H = value
	case ParamSatMax:
		p.High.S = value
	case ParamValMax:
		p.High.V = value
	case ParamAreaMin:
		p.AreaMin = value
	case ParamAreaMax:
		p.AreaMax = value
	case ParamCircularity:
		p.CircularityMin = float64(value) / 100
	}
	return nil
}

// ValidationError represents a parameter validation error
type ValidationError struct {
	Parameter string
	Value     interface{}
	Message   string
}

// NewValidationError creates a new validation error
func NewValidationError(parameter string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Parameter: parameter,
		Value:     value,
		Message:   message,
	}
}

// Error returns the error message
func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for parameter '%s' with value '%v': %s",
		ve.Parameter, ve.Value, ve.Message)
}
