package display

import "cell-sweeper/internal/models"

// slider is the part of a trackbar the control set needs.
type slider interface {
	GetPos() int
	SetPos(pos int)
}

type control struct {
	spec   models.ParameterSpec
	slider slider
	last   int
}

// controlSet turns trackbar positions into parameter-change events by
// diffing against the last value seen.
type controlSet struct {
	controls []*control
}

func newControlSet(params models.DetectorParams, create func(spec models.ParameterSpec) slider) *controlSet {
	cs := &controlSet{}
	for _, spec := range models.ParameterSpecs() {
		s := create(spec)
		v, _ := params.Value(spec.Name)
		s.SetPos(v)
		cs.controls = append(cs.controls, &control{spec: spec, slider: s, last: v})
	}
	return cs
}

func (cs *controlSet) changes() []models.ParameterChange {
	var out []models.ParameterChange
	for _, c := range cs.controls {
		pos := c.slider.GetPos()
		if pos == c.last {
			continue
		}
		c.last = pos
		out = append(out, models.ParameterChange{Name: c.spec.Name, Value: pos})
	}
	return out
}
