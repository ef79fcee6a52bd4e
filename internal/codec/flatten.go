package codec

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Flatten blends img onto an opaque background. Images that are already
// fully opaque are returned unchanged.
func Flatten(img *image.NRGBA, bg color.NRGBA) *image.NRGBA {
	if isOpaque(img) {
		return img
	}
	bg.A = 255
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

func isOpaque(img *image.NRGBA) bool {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for i := 3; i < len(row); i += 4 {
			if row[i] != 0xff {
				return false
			}
		}
	}
	return true
}
