package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// InitVips starts libvips. Call once at startup; layered and extended
// formats fall back to ffmpeg when it was never started.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// Configure vips logging before Startup so the first messages respect
	// our level.
	vipsLogLevel, logHandler := vipsLogging(logging.GetLevel())
	vips.LoggingSettings(logHandler, vipsLogLevel)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

func vipsLogging(level logging.LogLevel) (vips.LogLevel, func(string, vips.LogLevel, string)) {
	forward := func(min vips.LogLevel) func(string, vips.LogLevel, string) {
		return func(domain string, lvl vips.LogLevel, msg string) {
			if lvl > min {
				return
			}
			switch lvl {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			default:
				logging.Debug("[%s] %s", domain, msg)
			}
		}
	}

	switch level {
	case logging.LevelDebug:
		return vips.LogLevelInfo, forward(vips.LogLevelDebug)
	case logging.LevelInfo:
		return vips.LogLevelWarning, forward(vips.LogLevelWarning)
	case logging.LevelWarn:
		return vips.LogLevelError, forward(vips.LogLevelError)
	default:
		return vips.LogLevelCritical, forward(vips.LogLevelCritical)
	}
}

// ShutdownVips releases libvips resources.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized.
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// decodeComposite handles layered documents and extended raster formats.
// libvips composites visible layers; ffmpeg is the fallback.
func (d *Dispatcher) decodeComposite(ctx context.Context, path string, family mediatypes.Family) (image.Image, string, error) {
	var vipsErr error
	if IsVipsAvailable() {
		img, err := d.loadWithVips(path)
		if err == nil {
			return img, "vips", nil
		}
		vipsErr = err
		logging.Debug("vips failed for %s: %v, trying ffmpeg fallback", filepath.Base(path), err)
	}

	img, err := d.ffmpegImage(ctx, path, family)
	if err == nil {
		return img, "ffmpeg", nil
	}

	if vipsErr == nil {
		// Neither libvips nor ffmpeg could be used for this format.
		if errors.Is(err, errFFmpegMissing) {
			return nil, "", unsupported(path, fmt.Errorf("%s needs libvips or ffmpeg", family))
		}
		return nil, "", corrupt(path, err)
	}
	return nil, "", corrupt(path, fmt.Errorf("vips: %v; ffmpeg: %w", vipsErr, err))
}

func (d *Dispatcher) loadWithVips(path string) (image.Image, error) {
	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("vips auto-rotate failed: %w", err)
	}

	if hint := d.opts.ShrinkHint; hint > 0 && (ref.Width() > hint || ref.Height() > hint) {
		if err := ref.Thumbnail(hint, hint, vips.InterestingNone); err != nil {
			return nil, fmt.Errorf("vips resize failed: %w", err)
		}
	}

	var buf []byte
	if ref.HasAlpha() && d.opts.KeepAlpha {
		buf, _, err = ref.ExportPng(vips.NewPngExportParams())
	} else {
		if ref.HasAlpha() {
			bg := d.opts.Background
			if err := ref.Flatten(&vips.Color{R: bg.R, G: bg.G, B: bg.B}); err != nil {
				return nil, fmt.Errorf("vips flatten failed: %w", err)
			}
		}
		buf, _, err = ref.ExportJpeg(&vips.JpegExportParams{
			Quality:        95,
			OptimizeCoding: true,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode vips output: %w", err)
	}
	return img, nil
}
