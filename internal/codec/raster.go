package codec

import (
	"context"
	"errors"
	"image"
	"path/filepath"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// decodeRaster tries imaging (which honours EXIF orientation), then the
// registered image decoders, then ffmpeg.
func (d *Dispatcher) decodeRaster(ctx context.Context, path string, family mediatypes.Family) (image.Image, string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err == nil {
		return img, "imaging", nil
	}
	logging.Debug("imaging.Open failed for %s: %v, trying fallback methods", filepath.Base(path), err)

	img, format, err := d.decodeStd(path)
	if err == nil {
		return img, format, nil
	}
	var de *DecodeError
	if errors.As(err, &de) && de.Kind == KindUnreadable {
		return nil, "", de
	}
	logging.Debug("Standard decode failed for %s: %v, trying ffmpeg fallback", filepath.Base(path), err)

	img, ffErr := d.ffmpegImage(ctx, path, family)
	if ffErr == nil {
		return img, "ffmpeg", nil
	}
	logging.Debug("ffmpeg fallback failed for %s: %v", filepath.Base(path), ffErr)

	if de != nil {
		return nil, "", de
	}
	return nil, "", corrupt(path, err)
}

func (d *Dispatcher) decodeStd(path string) (image.Image, string, error) {
	f, err := filesystem.OpenWithRetry(path, d.opts.Retry)
	if err != nil {
		return nil, "", openErr(path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", corrupt(path, err)
	}
	return img, format, nil
}
