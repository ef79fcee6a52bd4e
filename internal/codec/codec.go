package codec

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"
	"thumbcache/internal/metrics"

	"github.com/disintegration/imaging"
)

// Image is a decoded, upright pixel buffer with its origin at the top left.
type Image struct {
	Pixels *image.NRGBA
	Width  int
	Height int
	Family mediatypes.Family
	// Format names the decoder that produced the pixels, e.g. "jpeg",
	// "vips", "exif-preview" or "ffmpeg".
	Format string
}

// Options tunes a Dispatcher.
type Options struct {
	// KeepAlpha leaves transparency in place instead of flattening onto
	// Background.
	KeepAlpha bool
	// Background is the opaque colour transparent pixels are blended onto.
	Background color.NRGBA
	// VideoOffset is where the preview frame is taken from. Clips shorter
	// than this fall back to the first frame.
	VideoOffset time.Duration
	// ShrinkHint lets libvips shrink while decoding. Zero decodes at full
	// size.
	ShrinkHint int
	// FFmpegPath is the ffmpeg binary. Empty means "ffmpeg" on PATH.
	FFmpegPath string
	// RawHeadBytes caps how much of a camera raw file is read when looking
	// for its embedded preview.
	RawHeadBytes int64
	// Retry configures stat/open on network mounts.
	Retry filesystem.RetryConfig
}

// DefaultOptions returns the options used by the pipeline.
func DefaultOptions() Options {
	return Options{
		Background:   color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		VideoOffset:  time.Second,
		ShrinkHint:   1024,
		FFmpegPath:   "ffmpeg",
		RawHeadBytes: 64 << 20,
		Retry:        filesystem.DefaultRetryConfig(),
	}
}

// Dispatcher picks the decoder for a file's family. It holds no mutable
// state and is safe for concurrent use.
type Dispatcher struct {
	opts Options
}

// New creates a Dispatcher. Zero-valued fields in opts take their defaults.
func New(opts Options) *Dispatcher {
	def := DefaultOptions()
	if opts.Background == (color.NRGBA{}) {
		opts.Background = def.Background
	}
	if opts.VideoOffset <= 0 {
		opts.VideoOffset = def.VideoOffset
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = def.FFmpegPath
	}
	if opts.RawHeadBytes <= 0 {
		opts.RawHeadBytes = def.RawHeadBytes
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialBackoff == 0 {
		opts.Retry = def.Retry
	}
	return &Dispatcher{opts: opts}
}

// Decode decodes path into an upright pixel buffer. Every failure is a
// *DecodeError.
func (d *Dispatcher) Decode(ctx context.Context, path string) (*Image, error) {
	family := mediatypes.ClassifyPath(path)
	start := time.Now()

	img, err := d.decode(ctx, path, family)

	metrics.CodecDecodeDuration.WithLabelValues(family.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		var de *DecodeError
		if !errors.As(err, &de) {
			de = corrupt(path, err)
			err = de
		}
		metrics.CodecDecodeErrors.WithLabelValues(family.String(), de.Kind.String()).Inc()
		logging.Debug("Decode failed for %s (%s): %v", filepath.Base(path), family, err)
		return nil, err
	}

	logging.Debug("Decoded %s (%s via %s): %dx%d", filepath.Base(path), family, img.Format, img.Width, img.Height)
	return img, nil
}

func (d *Dispatcher) decode(ctx context.Context, path string, family mediatypes.Family) (*Image, error) {
	if family == mediatypes.FamilyUnsupported {
		return nil, unsupported(path, nil)
	}

	info, err := filesystem.StatWithRetry(path, d.opts.Retry)
	if err != nil {
		return nil, unreadable(path, err)
	}
	if info.IsDir() {
		return nil, unsupported(path, errors.New("is a directory"))
	}
	if err := ctx.Err(); err != nil {
		return nil, unreadable(path, err)
	}

	var (
		src    image.Image
		format string
	)

	switch family {
	case mediatypes.FamilyRaster:
		src, format, err = d.decodeRaster(ctx, path, family)
	case mediatypes.FamilyAlpha:
		src, format, err = d.decodeRaster(ctx, path, family)
	case mediatypes.FamilyLayered:
		src, format, err = d.decodeComposite(ctx, path, family)
	case mediatypes.FamilyRaw:
		src, format, err = d.decodeRaw(path)
	case mediatypes.FamilyExtended:
		src, format, err = d.decodeComposite(ctx, path, family)
	case mediatypes.FamilyVideo:
		src, format, err = d.decodeVideo(ctx, path)
	default:
		return nil, unsupported(path, nil)
	}
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, corrupt(path, errors.New("decoder returned no image"))
	}

	pixels := imaging.Clone(src)
	if !d.opts.KeepAlpha {
		pixels = Flatten(pixels, d.opts.Background)
	}

	b := pixels.Bounds()
	return &Image{
		Pixels: pixels,
		Width:  b.Dx(),
		Height: b.Dy(),
		Family: family,
		Format: format,
	}, nil
}

// openErr classifies an error from opening or reading a file.
func openErr(path string, err error) *DecodeError {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) || filesystem.IsStale(err) {
		return unreadable(path, err)
	}
	return corrupt(path, err)
}
