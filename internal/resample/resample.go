package resample

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// DefaultMaxEdge is the longest edge of a stored preview.
	DefaultMaxEdge = 256
	// DefaultQuality is the JPEG quality of a stored preview.
	DefaultQuality = 80
)

// FitDimensions scales w x h so the longer edge equals maxEdge. The shorter
// edge is rounded to the nearest pixel and never drops below 1. Sizes that
// already fit are returned unchanged.
func FitDimensions(w, h, maxEdge int) (int, int) {
	if w <= 0 || h <= 0 || maxEdge <= 0 {
		return max(w, 0), max(h, 0)
	}
	if w <= maxEdge && h <= maxEdge {
		return w, h
	}

	if w >= h {
		return maxEdge, scaleEdge(h, maxEdge, w)
	}
	return scaleEdge(w, maxEdge, h), maxEdge
}

func scaleEdge(edge, target, longest int) int {
	n := int(math.Round(float64(edge) * float64(target) / float64(longest)))
	return max(n, 1)
}

// Fit shrinks img to FitDimensions using an area-averaging filter.
func Fit(img image.Image, maxEdge int) *image.NRGBA {
	b := img.Bounds()
	w, h := FitDimensions(b.Dx(), b.Dy(), maxEdge)
	if w == b.Dx() && h == b.Dy() {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Box)
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// Preview fits img to maxEdge and encodes it as a JPEG.
func Preview(img image.Image, maxEdge, quality int) ([]byte, error) {
	return EncodeJPEG(Fit(img, maxEdge), quality)
}
