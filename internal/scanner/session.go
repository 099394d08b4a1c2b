// Package scanner runs the interactive sweep: navigation picks a tile, the
// detector evaluates it, the sink renders it and operator input feeds back
// into navigation and the detector configuration.
package scanner

import (
	"context"
	"fmt"
	"image"
	"time"

	"cell-sweeper/internal/detection"
	"cell-sweeper/internal/logger"
	"cell-sweeper/internal/models"
	"cell-sweeper/internal/navigation"
	"cell-sweeper/internal/opencv/safe"
	"cell-sweeper/internal/tiles"
)

// NoKey is returned by Sink.WaitKey when nothing was pressed.
const NoKey = -1

type Source interface {
	ReadRegion(origin image.Point, level int, size image.Point) (image.Image, error)
}

type Detector interface {
	Detect(ctx context.Context, img image.Image, params models.DetectorParams) (*detection.Result, error)
}

// Overview renders the annotated region map with current highlighted.
type Overview interface {
	Render(current int) (*safe.Mat, error)
}

// Sink shows frames and collects operator input.
type Sink interface {
	Present(frame Frame) error
	WaitKey(delay time.Duration) int
	ParameterChanges() []models.ParameterChange
}

// Frame is everything shown for one iteration. Result is nil for a blank
// tile. The session closes Result and Overview after Present returns.
type Frame struct {
	Tile     tiles.Tile
	Original image.Image
	Result   *detection.Result
	Overview *safe.Mat
}

type KeyMap struct {
	Quit     int
	Backward int
	Forward  int
}

func DefaultKeyMap() KeyMap {
	return KeyMap{Quit: 27, Backward: 49, Forward: 50}
}

type Options struct {
	Keys         KeyMap
	PollInterval time.Duration
	// TileLevel is the pyramid level tiles are read at.
	TileLevel    int
}

// Components are the collaborators a Session drives.
type Components struct {
	Grid      *tiles.Grid
	Navigator *navigation.Navigator
	Config    *models.DetectorConfiguration
	Source    Source
	Detector  Detector
	Overview  Overview
	Sink      Sink
}

type Session struct {
	grid     *tiles.Grid
	nav      *navigation.Navigator
	config   *models.DetectorConfiguration
	source   Source
	detector Detector
	overview Overview
	sink     Sink
	opts     Options
	logger   logger.Logger
	stats    stats
}

func NewSession(c Components, opts Options, log logger.Logger) (*Session, error) {
	switch {
	case c.Grid == nil:
		return nil, fmt.Errorf("session requires a tile grid")
	case c.Navigator == nil:
		return nil, fmt.Errorf("session requires a navigator")
	case c.Config == nil:
		return nil, fmt.Errorf("session requires a detector configuration")
	case c.Source == nil || c.Detector == nil || c.Overview == nil || c.Sink == nil:
		return nil, fmt.Errorf("session requires source, detector, overview and sink")
	}
	if c.Navigator.Count() != c.Grid.Count() {
		return nil, fmt.Errorf("navigator covers %d tiles, grid has %d", c.Navigator.Count(), c.Grid.Count())
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}

	return &Session{
		grid:     c.Grid,
		nav:      c.Navigator,
		config:   c.Config,
		source:   c.Source,
		detector: c.Detector,
		overview: c.Overview,
		sink:     c.Sink,
		opts:     opts,
		logger:   log,
	}, nil
}

// UpdateParameter is the single entry point for operator edits of the
// detector configuration. It always switches auto-advance off, even when
// the value is rejected.
func (s *Session) UpdateParameter(name string, value int) error {
	s.nav.SetAutoAdvance(false)

	if err := s.config.Update(name, value); err != nil {
		return err
	}

	fields := map[string]interface{}{"parameter": name, "value": value}
	if degenerate := s.config.Snapshot().DegenerateRanges(); len(degenerate) > 0 {
		fields["empty_ranges"] = degenerate
		s.logger.Warning("Session", "detector range can never match", fields)
		return nil
	}
	s.logger.Debug("Session", "detector parameter updated", fields)
	return nil
}

// HandleKey applies one key press. It reports whether the session is over.
func (s *Session) HandleKey(key int) (Reason, bool) {
	switch key {
	case NoKey:
		return 0, false
	case s.opts.Keys.Quit:
		return ReasonQuit, true
	case s.opts.Keys.Backward:
		return s.scan(navigation.Backward)
	case s.opts.Keys.Forward:
		return s.scan(navigation.Forward)
	}

	s.logger.Info("Session", "button pressed", map[string]interface{}{"key": key})
	return 0, false
}

func (s *Session) scan(dir navigation.Direction) (Reason, bool) {
	outcome := s.nav.Scan(dir)
	s.logger.Debug("Session", "scan requested", map[string]interface{}{
		"direction": dir.String(),
		"tile":      s.nav.Current(),
		"outcome":   outcome.String(),
	})
	return boundaryReason(outcome)
}

// Run sweeps until the operator quits, a boundary is reached or ctx is
// cancelled. Only a failing read, detection or render yields an error.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	s.logger.Info("Session", "scan started", map[string]interface{}{
		"tiles":        s.grid.Count(),
		"auto_advance": s.nav.AutoAdvance(),
	})

	for {
		select {
		case <-ctx.Done():
			return s.finish(ReasonCancelled), nil
		default:
		}

		reason, done, err := s.iterate(ctx)
		if err != nil {
			summary := s.finish(ReasonFailed)
			return summary, err
		}
		if done {
			return s.finish(reason), nil
		}
	}
}

func (s *Session) iterate(ctx context.Context) (Reason, bool, error) {
	idx := s.nav.Current()
	tile := s.grid.Tile(idx)

	img, err := s.source.ReadRegion(tile.Origin, s.opts.TileLevel, s.grid.Size())
	if err != nil {
		return 0, false, fmt.Errorf("failed to read tile %d at %v: %w", idx, tile.Origin, err)
	}
	s.stats.polls++

	var result *detection.Result
	if detection.IsBlank(img) {
		s.stats.recordBlank(idx)
		if s.nav.AutoAdvance() {
			reason, done := boundaryReason(s.nav.Advance())
			return reason, done, nil
		}
	} else {
		result, err = s.detector.Detect(ctx, img, s.config.Snapshot())
		if err != nil {
			return 0, false, fmt.Errorf("failed to evaluate tile %d: %w", idx, err)
		}

		count := result.Count()
		s.grid.Annotate(idx, count)
		s.stats.record(idx, count)

		if count == 0 && s.nav.AutoAdvance() {
			result.Close()
			reason, done := boundaryReason(s.nav.Advance())
			return reason, done, nil
		}
		if count > 0 {
			s.logger.Info("Session", "immune cells in image", map[string]interface{}{
				"tile":       idx,
				"candidates": count,
			})
		}
	}

	if err := s.present(Frame{Tile: tile, Original: img, Result: result}); err != nil {
		return 0, false, err
	}

	key := s.sink.WaitKey(s.opts.PollInterval)
	for _, change := range s.sink.ParameterChanges() {
		if err := s.UpdateParameter(change.Name, change.Value); err != nil {
			s.logger.Error("Session", err, map[string]interface{}{"parameter": change.Name})
		}
	}

	reason, done := s.HandleKey(key)
	return reason, done, nil
}

func (s *Session) present(frame Frame) error {
	defer frame.Result.Close()

	ov, err := s.overview.Render(frame.Tile.Index)
	if err != nil {
		return fmt.Errorf("failed to render overview: %w", err)
	}
	frame.Overview = ov
	defer ov.Close()

	if err := s.sink.Present(frame); err != nil {
		return fmt.Errorf("failed to present tile %d: %w", frame.Tile.Index, err)
	}
	return nil
}

func boundaryReason(o navigation.Outcome) (Reason, bool) {
	switch o {
	case navigation.StartReached:
		return ReasonStartReached, true
	case navigation.EndReached:
		return ReasonEndReached, true
	}
	return 0, false
}

func (s *Session) finish(reason Reason) Summary {
	summary := s.stats.summarize(reason, s.nav.Current())
	s.logger.Info("Session", "scan finished", summary.Fields())
	return summary
}
