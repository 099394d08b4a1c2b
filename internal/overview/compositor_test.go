package overview

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"cell-sweeper/internal/logger"
	"cell-sweeper/internal/tiles"
)

type whiteSlide struct {
	downsample float64
	reads      []image.Point
	fail       bool
}

func (w *whiteSlide) LevelDownsample(level int) float64 { return w.downsample }

func (w *whiteSlide) ReadRegion(origin image.Point, level int, size image.Point) (image.Image, error) {
	if w.fail {
		return nil, errors.New("no slide")
	}
	w.reads = append(w.reads, size)
	img := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img, nil
}

func bgrAt(t *testing.T, c *Compositor, current int, p image.Point) color.RGBA {
	t.Helper()
	m, err := c.Render(current)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	mat := m.GetMat()
	return color.RGBA{
		B: mat.GetUCharAt3(p.Y, p.X, 0),
		G: mat.GetUCharAt3(p.Y, p.X, 1),
		R: mat.GetUCharAt3(p.Y, p.X, 2),
		A: 255,
	}
}

func TestCompositorColoursTiles(t *testing.T) {
	grid, err := tiles.NewGrid(image.Rect(0, 0, 4096, 1024), 1024)
	if err != nil {
		t.Fatal(err)
	}
	src := &whiteSlide{downsample: 64}

	c, err := NewCompositor(src, grid, DefaultLevel, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if len(src.reads) != 1 || src.reads[0] != image.Pt(64, 16) {
		t.Fatalf("background reads = %v, want one 64x16 read", src.reads)
	}

	grid.Annotate(2, 10)

	// Tile 0 is current; tile 2 carries ten candidates; tile 3 is unvisited.
	if got := bgrAt(t, c, 0, image.Pt(0, 0)); got != HighlightColor {
		t.Errorf("current tile corner = %v, want highlight", got)
	}
	if got := bgrAt(t, c, 0, image.Pt(32, 0)); got != tiles.CandidateColor(10) {
		t.Errorf("tile 2 corner = %v, want %v", got, tiles.CandidateColor(10))
	}
	if got := bgrAt(t, c, 0, image.Pt(48, 0)); got != tiles.CandidateColor(0) {
		t.Errorf("unvisited tile corner = %v, want black", got)
	}
	if got := bgrAt(t, c, 0, image.Pt(40, 8)); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("tile interior should be background, got %v", got)
	}

	if _, err := c.Render(4); err == nil {
		t.Error("expected error for out-of-range current tile")
	}
}

func TestCompositorRenderDoesNotMutateBackground(t *testing.T) {
	grid, _ := tiles.NewGrid(image.Rect(0, 0, 2048, 1024), 1024)
	c, err := NewCompositor(&whiteSlide{downsample: 64}, grid, DefaultLevel, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_ = bgrAt(t, c, 1, image.Pt(0, 0))
	if got := bgrAt(t, c, 0, image.Pt(24, 0)); got != tiles.CandidateColor(0) {
		t.Errorf("tile 1 edge = %v after moving away, want unvisited black", got)
	}
}

func TestHighlightExtendsOnePastAnnotation(t *testing.T) {
	grid, err := tiles.NewGrid(image.Rect(0, 0, 4096, 1024), 1024)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewCompositor(&whiteSlide{downsample: 64}, grid, DefaultLevel, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	grid.Annotate(1, 20)

	// Tile 0 covers x 0..15; its highlight far edge is x 16.
	if got := bgrAt(t, c, 0, image.Pt(16, 5)); got != HighlightColor {
		t.Errorf("highlight far edge = %v, want highlight", got)
	}
	if got := bgrAt(t, c, 0, image.Pt(15, 5)); got != tiles.CandidateColor(0) {
		t.Errorf("tile 0 annotation far edge = %v, want unvisited black", got)
	}
	if got := bgrAt(t, c, 0, image.Pt(14, 5)); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("inside tile 0 = %v, want background", got)
	}

	// With tile 0 not current, x 16 is tile 1's left annotation edge.
	if got := bgrAt(t, c, 2, image.Pt(16, 5)); got != tiles.CandidateColor(20) {
		t.Errorf("tile 1 left edge = %v, want %v", got, tiles.CandidateColor(20))
	}
}

func TestCompositorBackgroundError(t *testing.T) {
	grid, _ := tiles.NewGrid(image.Rect(0, 0, 1024, 1024), 1024)
	if _, err := NewCompositor(&whiteSlide{downsample: 128, fail: true}, grid, DefaultLevel, logger.NewNop()); err == nil {
		t.Error("expected background read error")
	}
}
