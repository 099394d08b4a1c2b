package chain

import (
	"context"
	"fmt"

	"cell-sweeper/internal/models"
	"cell-sweeper/internal/opencv/safe"
	"cell-sweeper/internal/timing"
)

// ProcessingStep is one Mat-to-Mat stage of tile segmentation. Apply must not
// close its input; the chain owns intermediate results.
type ProcessingStep interface {
	Apply(ctx context.Context, input *safe.Mat, params models.DetectorParams) (*safe.Mat, error)
	Name() string
	ShouldExecute(params models.DetectorParams) bool
}

type ProcessingChain struct {
	steps   []ProcessingStep
	tracker *timing.Tracker
}

func NewProcessingChain(steps ...ProcessingStep) *ProcessingChain {
	return &ProcessingChain{
		steps: steps,
	}
}

// WithTracker records the duration of every executed step under its name.
func (pc *ProcessingChain) WithTracker(tracker *timing.Tracker) *ProcessingChain {
	pc.tracker = tracker
	return pc
}

// Execute runs the steps in order. The input stays owned by the caller; the
// returned Mat is new unless no step executed, in which case it is a clone.
func (pc *ProcessingChain) Execute(ctx context.Context, input *safe.Mat, params models.DetectorParams) (*safe.Mat, error) {
	current := input

	release := func() {
		if current != input {
			current.Close()
		}
	}

	for _, step := range pc.steps {
		select {
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		default:
		}

		if !step.ShouldExecute(params) {
			continue
		}

		stepCtx := pc.tracker.StartTiming(ctx, step.Name())
		result, err := step.Apply(stepCtx, current, params)
		pc.tracker.EndTiming(stepCtx)
		if err != nil {
			release()
			return nil, fmt.Errorf("step %s failed: %w", step.Name(), err)
		}

		release()
		current = result
	}

	if current == input {
		return input.Clone()
	}
	return current, nil
}

func (pc *ProcessingChain) StepCount() int {
	return len(pc.steps)
}

func (pc *ProcessingChain) GetStepNames() []string {
	names := make([]string, len(pc.steps))
	for i, step := range pc.steps {
		names[i] = step.Name()
	}
	return names
}
