package scanner

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"cell-sweeper/internal/detection"
	"cell-sweeper/internal/logger"
	"cell-sweeper/internal/models"
	"cell-sweeper/internal/navigation"
	"cell-sweeper/internal/opencv/safe"
	"cell-sweeper/internal/tiles"
)

// fakeSource serves a tissue-coloured tile everywhere except the blank origins.
type fakeSource struct {
	blank map[image.Point]bool
	reads []image.Point
	err   error
}

func (f *fakeSource) ReadRegion(origin image.Point, level int, size image.Point) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.reads = append(f.reads, origin)
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	if !f.blank[origin] {
		img.Set(3, 3, color.NRGBA{R: 200, G: 120, B: 180, A: 255})
	}
	return img, nil
}

type fakeDetector struct{}

func (fakeDetector) Detect(ctx context.Context, img image.Image, params models.DetectorParams) (*detection.Result, error) {
	return &detection.Result{}, nil
}

// tileDetector answers with a fixed count per tile, keyed by the last read origin.
type tileDetector struct {
	source *fakeSource
	grid   *tiles.Grid
	counts map[int]int
	seen   []int
	params []models.DetectorParams
}

func (d *tileDetector) Detect(ctx context.Context, img image.Image, params models.DetectorParams) (*detection.Result, error) {
	origin := d.source.reads[len(d.source.reads)-1]
	idx := -1
	for _, t := range d.grid.Tiles() {
		if t.Origin == origin {
			idx = t.Index
		}
	}
	d.seen = append(d.seen, idx)
	d.params = append(d.params, params)
	return &detection.Result{Candidates: make([]detection.Candidate, d.counts[idx])}, nil
}

type nopOverview struct{ renders []int }

func (o *nopOverview) Render(current int) (*safe.Mat, error) {
	o.renders = append(o.renders, current)
	return nil, nil
}

type step struct {
	key     int
	changes []models.ParameterChange
}

type fakeSink struct {
	script  []step
	pending []models.ParameterChange
	frames  []Frame
}

func (f *fakeSink) Present(frame Frame) error {
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSink) WaitKey(delay time.Duration) int {
	if len(f.script) == 0 {
		return 27
	}
	s := f.script[0]
	f.script = f.script[1:]
	f.pending = s.changes
	return s.key
}

func (f *fakeSink) ParameterChanges() []models.ParameterChange {
	out := f.pending
	f.pending = nil
	return out
}

type harness struct {
	grid     *tiles.Grid
	nav      *navigation.Navigator
	config   *models.DetectorConfiguration
	source   *fakeSource
	detector *tileDetector
	overview *nopOverview
	sink     *fakeSink
	session  *Session
}

func newHarness(t *testing.T, region image.Rectangle, auto bool, counts map[int]int, script ...step) *harness {
	t.Helper()
	grid, err := tiles.NewGrid(region, 1024)
	if err != nil {
		t.Fatal(err)
	}
	nav, err := navigation.New(grid.Count(), auto)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		grid:     grid,
		nav:      nav,
		config:   models.NewDetectorConfiguration(models.DefaultDetectorParams()),
		source:   &fakeSource{blank: map[image.Point]bool{}},
		overview: &nopOverview{},
		sink:     &fakeSink{script: script},
	}
	h.detector = &tileDetector{source: h.source, grid: grid, counts: counts}

	h.session, err = NewSession(Components{
		Grid:      grid,
		Navigator: nav,
		Config:    h.config,
		Source:    h.source,
		Detector:  h.detector,
		Overview:  h.overview,
		Sink:      h.sink,
	}, Options{Keys: DefaultKeyMap(), PollInterval: time.Millisecond}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestEmptyTilesAutoAdvanceToEnd(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 2048, 1024), true, nil)

	summary, err := h.session.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Reason != ReasonEndReached {
		t.Errorf("reason = %v, want end_reached", summary.Reason)
	}
	want := []image.Point{{0, 0}, {1024, 0}}
	if len(h.source.reads) != 2 || h.source.reads[0] != want[0] || h.source.reads[1] != want[1] {
		t.Errorf("reads = %v, want %v", h.source.reads, want)
	}
	if len(h.sink.frames) != 0 {
		t.Errorf("empty tiles with auto-advance should not be presented, got %d frames", len(h.sink.frames))
	}
	if h.nav.Current() != 1 {
		t.Errorf("current = %d, want clamped to 1", h.nav.Current())
	}
}

func TestCandidatesStopAutoAdvance(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 2048, 1024), true, map[int]int{0: 3},
		step{key: NoKey},
		step{key: 50},
	)

	summary, err := h.session.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Reason != ReasonEndReached {
		t.Errorf("reason = %v", summary.Reason)
	}
	// Tile 0 is shown twice (before and after the idle poll); tile 1 is empty and skipped.
	if len(h.sink.frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(h.sink.frames))
	}
	if got := h.sink.frames[0].Result.Count(); got != 3 {
		t.Errorf("frame count = %d, want 3", got)
	}
	if a := h.grid.Annotation(0); a.Candidates != 3 || a.Color() != tiles.CandidateColor(3) {
		t.Errorf("annotation = %+v", a)
	}
	if a := h.grid.Annotation(1); !a.Visited || a.Candidates != 0 {
		t.Errorf("tile 1 annotation = %+v", a)
	}
	if summary.TotalCandidates != 3 || summary.TilesEvaluated != 2 || summary.TilesWithCells != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.MeanCandidates != 1.5 {
		t.Errorf("mean = %v, want 1.5", summary.MeanCandidates)
	}
}

func TestParameterChangeClearsAutoAdvanceAndReevaluates(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 2048, 1024), true, map[int]int{0: 1},
		step{key: NoKey, changes: []models.ParameterChange{{Name: models.ParamValMax, Value: 90}}},
		step{key: 27},
	)

	summary, err := h.session.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Reason != ReasonQuit {
		t.Errorf("reason = %v, want quit", summary.Reason)
	}
	if h.nav.AutoAdvance() {
		t.Error("parameter change must clear auto-advance")
	}
	if len(h.detector.params) != 2 {
		t.Fatalf("detections = %d, want 2", len(h.detector.params))
	}
	if h.detector.params[0].High.V != 70 || h.detector.params[1].High.V != 90 {
		t.Errorf("snapshots = %+v", h.detector.params)
	}
}

func TestEmptyTileShownWhenAutoAdvanceOff(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 2048, 1024), false, nil, step{key: 27})

	if _, err := h.session.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.sink.frames) != 1 || h.sink.frames[0].Tile.Index != 0 {
		t.Fatalf("frames = %+v", h.sink.frames)
	}
	if len(h.overview.renders) != 1 || h.overview.renders[0] != 0 {
		t.Errorf("overview renders = %v", h.overview.renders)
	}
}

func TestBlankTilesSkipDetection(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 3072, 1024), true, map[int]int{2: 4}, step{key: 27})
	h.source.blank[image.Pt(0, 0)] = true
	h.source.blank[image.Pt(1024, 0)] = true

	summary, err := h.session.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(h.detector.seen) != 1 || h.detector.seen[0] != 2 {
		t.Errorf("detector saw %v, want only tile 2", h.detector.seen)
	}
	if h.grid.Annotation(0).Visited {
		t.Error("blank tile should not be annotated")
	}
	if summary.TilesBlank != 2 || summary.TilesVisited != 3 || summary.Polls != 3 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestBlankTilePresentedWithoutResult(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 1024, 1024), false, nil, step{key: 27})
	h.source.blank[image.Pt(0, 0)] = true

	if _, err := h.session.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.detector.seen) != 0 {
		t.Error("detector should not run on a blank tile")
	}
	if len(h.sink.frames) != 1 || h.sink.frames[0].Result != nil {
		t.Errorf("frames = %+v", h.sink.frames)
	}
}

func TestBackwardFromFirstTileEndsSession(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 2048, 1024), false, nil, step{key: 49})

	summary, err := h.session.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Reason != ReasonStartReached || h.nav.Current() != 0 {
		t.Errorf("reason = %v current = %d", summary.Reason, h.nav.Current())
	}
}

func TestUnknownKeyKeepsTile(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 2048, 1024), false, nil, step{key: 'x'}, step{key: 27})

	if _, err := h.session.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.sink.frames) != 2 || h.sink.frames[1].Tile.Index != 0 {
		t.Errorf("frames = %+v", h.sink.frames)
	}
}

func TestHandleKeyScanSetsDirectionAndAuto(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 3072, 1024), false, nil)

	if _, done := h.session.HandleKey(50); done {
		t.Fatal("forward from tile 0 should not end the session")
	}
	if h.nav.Current() != 1 || !h.nav.AutoAdvance() || h.nav.Direction() != navigation.Forward {
		t.Errorf("nav = %d %v %v", h.nav.Current(), h.nav.AutoAdvance(), h.nav.Direction())
	}
	if _, done := h.session.HandleKey(49); done {
		t.Fatal("backward from tile 1 should not end the session")
	}
	if h.nav.Current() != 0 || h.nav.Direction() != navigation.Backward {
		t.Errorf("nav = %d %v", h.nav.Current(), h.nav.Direction())
	}
	if r, done := h.session.HandleKey(27); !done || r != ReasonQuit {
		t.Errorf("quit = %v %v", r, done)
	}
}

func TestUpdateParameterClearsAutoEvenOnError(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 1024, 1024), true, nil)

	if err := h.session.UpdateParameter(models.ParamHueMax, 500); err == nil {
		t.Error("expected out-of-domain error")
	}
	if h.nav.AutoAdvance() {
		t.Error("auto-advance should be cleared")
	}

	h.nav.SetAutoAdvance(true)
	if err := h.session.UpdateParameter(models.ParamAreaMin, 900); err != nil {
		t.Fatalf("inverted area range should be accepted: %v", err)
	}
	if h.nav.AutoAdvance() {
		t.Error("auto-advance should be cleared")
	}
	if got := h.config.Snapshot().AreaMin; got != 900 {
		t.Errorf("area min = %d", got)
	}
}

func TestCancelledContext(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 1024, 1024), false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.session.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Reason != ReasonCancelled || len(h.source.reads) != 0 {
		t.Errorf("summary = %+v reads = %v", summary, h.source.reads)
	}
}

func TestReadErrorEndsSession(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 1024, 1024), true, nil)
	boom := errors.New("slide unreadable")
	h.source.err = boom

	summary, err := h.session.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped read error", err)
	}
	if summary.Reason != ReasonFailed {
		t.Errorf("reason = %v", summary.Reason)
	}
}

func TestNewSessionRejectsMismatchedNavigator(t *testing.T) {
	grid, _ := tiles.NewGrid(image.Rect(0, 0, 2048, 1024), 1024)
	nav, _ := navigation.New(3, true)
	_, err := NewSession(Components{
		Grid:      grid,
		Navigator: nav,
		Config:    models.NewDetectorConfiguration(models.DefaultDetectorParams()),
		Source:    &fakeSource{},
		Detector:  fakeDetector{},
		Overview:  &nopOverview{},
		Sink:      &fakeSink{},
	}, Options{}, logger.NewNop())
	if err == nil {
		t.Error("expected tile count mismatch error")
	}
}

func TestBlankTileCountedOncePerTile(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 2048, 1024), false, nil,
		step{key: NoKey},
		step{key: NoKey},
		step{key: NoKey},
		step{key: 27},
	)
	h.source.blank[image.Pt(0, 0)] = true

	summary, err := h.session.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.TilesBlank != 1 || summary.TilesVisited != 1 {
		t.Errorf("tiles blank = %d visited = %d, want 1 and 1", summary.TilesBlank, summary.TilesVisited)
	}
	if summary.BlankPolls != 4 || summary.Polls != 4 {
		t.Errorf("blank polls = %d polls = %d, want 4 and 4", summary.BlankPolls, summary.Polls)
	}
	if summary.TilesEvaluated != 0 {
		t.Errorf("tiles evaluated = %d, want 0", summary.TilesEvaluated)
	}
}

func TestRevisitedTileCountedOnce(t *testing.T) {
	h := newHarness(t, image.Rect(0, 0, 2048, 1024), false, map[int]int{0: 2, 1: 4},
		step{key: 50},
		step{key: 49},
		step{key: NoKey},
		step{key: 27},
	)

	summary, err := h.session.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// The forward and backward keys also engage auto-advance, but both tiles
	// carry candidates so the loop stops on each of them.
	if summary.TilesVisited != 2 || summary.TilesEvaluated != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Evaluations != 4 || summary.TotalCandidates != 6 {
		t.Errorf("evaluations = %d total = %d, want 4 and 6", summary.Evaluations, summary.TotalCandidates)
	}
}
