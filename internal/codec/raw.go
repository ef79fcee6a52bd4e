package codec

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"path/filepath"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// maxEmbeddedCandidates bounds how many JPEG start markers are probed in a
// raw file.
const maxEmbeddedCandidates = 32

// decodeRaw returns the embedded preview of a camera raw file. Sensor data
// is never developed. Only the first RawHeadBytes of the file are read.
// The EXIF thumbnail is used when it is large enough, otherwise the largest
// embedded JPEG stream in the head wins.
func (d *Dispatcher) decodeRaw(path string) (image.Image, string, error) {
	f, err := filesystem.OpenWithRetry(path, d.opts.Retry)
	if err != nil {
		return nil, "", openErr(path, err)
	}
	data, err := io.ReadAll(io.LimitReader(f, d.opts.RawHeadBytes))
	if cerr := f.Close(); cerr != nil {
		logging.Warn("failed to close raw file %s: %v", path, cerr)
	}
	if err != nil {
		return nil, "", unreadable(path, err)
	}

	orientation := 1
	var exifThumb image.Image
	if x, err := exif.Decode(bytes.NewReader(data)); err == nil {
		if tag, err := x.Get(exif.Orientation); err == nil {
			if v, err := tag.Int(0); err == nil {
				orientation = v
			}
		}
		if thumb, err := x.JpegThumbnail(); err == nil {
			if img, err := jpeg.Decode(bytes.NewReader(thumb)); err == nil {
				exifThumb = img
			}
		}
	} else {
		logging.Debug("No EXIF in %s: %v", filepath.Base(path), err)
	}

	img, format := exifThumb, "exif-thumbnail"
	if img == nil || maxEdge(img) < d.opts.ShrinkHint {
		if embedded := largestEmbeddedJPEG(data); embedded != nil && (img == nil || area(embedded) > area(img)) {
			img, format = embedded, "exif-preview"
		}
	}
	if img == nil {
		return nil, "", corrupt(path, errors.New("no embedded preview found"))
	}

	return applyOrientation(img, orientation), format, nil
}

// largestEmbeddedJPEG scans data for JPEG start-of-image markers and decodes
// the stream with the largest pixel area.
func largestEmbeddedJPEG(data []byte) image.Image {
	soi := []byte{0xff, 0xd8, 0xff}

	best, bestArea := -1, 0
	offset, probed := 0, 0
	for probed < maxEmbeddedCandidates {
		i := bytes.Index(data[offset:], soi)
		if i < 0 {
			break
		}
		start := offset + i
		offset = start + len(soi)
		probed++

		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data[start:]))
		if err != nil {
			continue
		}
		if a := cfg.Width * cfg.Height; a > bestArea {
			best, bestArea = start, a
		}
	}
	if best < 0 {
		return nil
	}

	img, err := jpeg.Decode(bytes.NewReader(data[best:]))
	if err != nil {
		return nil
	}
	return img
}

// applyOrientation rotates img upright according to an EXIF orientation tag.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

func area(img image.Image) int {
	b := img.Bounds()
	return b.Dx() * b.Dy()
}

func maxEdge(img image.Image) int {
	b := img.Bounds()
	return max(b.Dx(), b.Dy())
}
