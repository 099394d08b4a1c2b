package conversion

import (
	"fmt"
	"image"
	"image/color"

	"cell-sweeper/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ImageToMat converts a Go image into a 3-channel BGR Mat. Alpha is dropped:
// NRGBA colour is kept as stored and premultiplied RGBA is un-premultiplied
// first, so a fully transparent pixel becomes black.
func ImageToMat(img image.Image) (*safe.Mat, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if err := safe.ValidateDimensions(w, h, "image to Mat conversion"); err != nil {
		return nil, err
	}

	buf := make([]byte, w*h*3)
	switch m := img.(type) {
	case *image.NRGBA:
		packBGR(buf, m.Pix, m.Stride, w, h, false)
	case *image.RGBA:
		packBGR(buf, m.Pix, m.Stride, w, h, true)
	default:
		o := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				buf[o], buf[o+1], buf[o+2] = c.B, c.G, c.R
				o += 3
			}
		}
	}

	view, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, buf)
	if err != nil {
		return nil, fmt.Errorf("image to Mat conversion failed: %w", err)
	}
	// view may alias buf; the clone owns its own memory.
	mat := view.Clone()
	view.Close()

	return safe.Adopt(mat, "bgr")
}

// packBGR copies RGBA-ordered rows into tightly packed BGR.
func packBGR(dst, pix []uint8, stride, w, h int, premultiplied bool) {
	o := 0
	for y := 0; y < h; y++ {
		row := pix[y*stride : y*stride+w*4]
		for i := 0; i < len(row); i += 4 {
			r, g, b, a := row[i], row[i+1], row[i+2], row[i+3]
			if premultiplied && a != 0xff {
				r, g, b = unpremultiply(r, a), unpremultiply(g, a), unpremultiply(b, a)
			}
			dst[o], dst[o+1], dst[o+2] = b, g, r
			o += 3
		}
	}
}

func unpremultiply(c, a uint8) uint8 {
	if a == 0 {
		return 0
	}
	return uint8(uint16(c) * 0xff / uint16(a))
}
