package slide

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"cell-sweeper/internal/logger"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxLevels caps the pyramid depth; level 7 is the usual overview level.
const MaxLevels = 10

type regionKey struct {
	origin image.Point
	level  int
	size   image.Point
}

// Options tune a Pyramid.
type Options struct {
	// Bounds restricts the scan region; empty means the whole image.
	Bounds image.Rectangle
	// Levels is the pyramid depth including level 0; 0 means MaxLevels.
	Levels int
	// CacheRegions is how many region reads are kept; 0 disables caching.
	CacheRegions int
}

// Pyramid is an in-memory Source built from a single decoded image. Level n
// is the base image box-filtered down by 2^n and is built on first use.
type Pyramid struct {
	levels []*image.NRGBA
	bounds image.Rectangle
	cache  *lru.Cache[regionKey, *image.NRGBA]
	logger logger.Logger
}

var _ Source = (*Pyramid)(nil)

// Open decodes the image at path (PNG, JPEG, TIFF, BMP or WebP).
func Open(path string, opts Options, log logger.Logger) (*Pyramid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open slide: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode slide %s: %w", path, err)
	}

	log.Info("Slide", "slide decoded", map[string]interface{}{
		"path":   path,
		"format": format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	})

	return NewPyramid(img, opts, log)
}

// NewPyramid wraps base as level 0. Its top-left pixel becomes (0,0).
func NewPyramid(base image.Image, opts Options, log logger.Logger) (*Pyramid, error) {
	if base == nil || base.Bounds().Empty() {
		return nil, fmt.Errorf("slide image is empty")
	}

	levels := opts.Levels
	if levels <= 0 || levels > MaxLevels {
		levels = MaxLevels
	}

	level0 := imaging.Clone(base)
	full := level0.Bounds()

	bounds := full
	if !opts.Bounds.Empty() {
		bounds = opts.Bounds.Intersect(full)
		if bounds.Empty() {
			return nil, fmt.Errorf("scan bounds %v do not overlap slide %v", opts.Bounds, full)
		}
	}

	p := &Pyramid{
		levels: make([]*image.NRGBA, levels),
		bounds: bounds,
		logger: log,
	}
	p.levels[0] = level0

	if opts.CacheRegions > 0 {
		cache, err := lru.New[regionKey, *image.NRGBA](opts.CacheRegions)
		if err != nil {
			return nil, fmt.Errorf("failed to create region cache: %w", err)
		}
		p.cache = cache
	}

	return p, nil
}

func (p *Pyramid) Bounds() image.Rectangle { return p.bounds }
func (p *Pyramid) LevelCount() int         { return len(p.levels) }

func (p *Pyramid) LevelDownsample(level int) float64 {
	if level < 0 {
		level = 0
	}
	if level >= len(p.levels) {
		level = len(p.levels) - 1
	}
	return math.Pow(2, float64(level))
}

func (p *Pyramid) ReadRegion(origin image.Point, level int, size image.Point) (image.Image, error) {
	if p.levels[0] == nil {
		return nil, fmt.Errorf("slide is closed")
	}
	if level < 0 || level >= len(p.levels) {
		return nil, fmt.Errorf("level %d out of range [0, %d)", level, len(p.levels))
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid region size %v", size)
	}

	key := regionKey{origin: origin, level: level, size: size}
	if p.cache != nil {
		if region, ok := p.cache.Get(key); ok {
			return region, nil
		}
	}

	src := p.level(level)
	ds := p.LevelDownsample(level)
	at := image.Pt(
		int(math.Floor(float64(origin.X)/ds)),
		int(math.Floor(float64(origin.Y)/ds)),
	)

	canvas := imaging.New(size.X, size.Y, color.NRGBA{})
	region := imaging.Paste(canvas, src, at.Mul(-1))

	if p.cache != nil {
		p.cache.Add(key, region)
	}
	return region, nil
}

// level returns level n, building it from level n-1 if needed.
func (p *Pyramid) level(n int) *image.NRGBA {
	if p.levels[n] != nil {
		return p.levels[n]
	}
	prev := p.level(n - 1)
	w := max(1, (prev.Bounds().Dx()+1)/2)
	h := max(1, (prev.Bounds().Dy()+1)/2)
	p.levels[n] = imaging.Resize(prev, w, h, imaging.Box)

	p.logger.Debug("Slide", "pyramid level built", map[string]interface{}{
		"level":  n,
		"width":  w,
		"height": h,
	})
	return p.levels[n]
}

func (p *Pyramid) Close() error {
	if p.cache != nil {
		p.cache.Purge()
	}
	for i := range p.levels {
		p.levels[i] = nil
	}
	return nil
}
