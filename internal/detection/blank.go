package detection

import (
	"image"
	"image/color"
)

// IsBlank reports whether img has no pixel with a non-zero colour channel,
// i.e. its content bounding box is empty. Alpha is ignored.
func IsBlank(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	if b.Empty() {
		return true
	}

	switch m := img.(type) {
	case *image.NRGBA:
		return rgbPixZero(m.Pix, m.Stride, b.Dx(), b.Dy())
	case *image.RGBA:
		return rgbPixZero(m.Pix, m.Stride, b.Dx(), b.Dy())
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.R|c.G|c.B != 0 {
				return false
			}
		}
	}
	return true
}

func rgbPixZero(pix []uint8, stride, w, h int) bool {
	for y := 0; y < h; y++ {
		row := pix[y*stride : y*stride+w*4]
		for i := 0; i < len(row); i += 4 {
			if row[i]|row[i+1]|row[i+2] != 0 {
				return false
			}
		}
	}
	return true
}
