package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"path/filepath"
	"time"

	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"
	"thumbcache/internal/metrics"
)

var errFFmpegMissing = errors.New("ffmpeg not found")

// ffmpegFrame runs ffmpeg and decodes the single PNG frame it writes to
// stdout. A zero offset takes the first frame.
func (d *Dispatcher) ffmpegFrame(ctx context.Context, path string, offset time.Duration, family mediatypes.Family) (image.Image, error) {
	ffmpegPath, err := exec.LookPath(d.opts.FFmpegPath)
	if err != nil {
		return nil, errFFmpegMissing
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	if offset > 0 {
		args = append(args, "-ss", formatOffset(offset))
	}
	args = append(args,
		"-i", path,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	metrics.CodecFFmpegDuration.WithLabelValues(family.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", filepath.Base(path))
	}

	logging.Debug("FFmpeg output size: %d bytes", stdout.Len())

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

// ffmpegImage decodes a still image through ffmpeg.
func (d *Dispatcher) ffmpegImage(ctx context.Context, path string, family mediatypes.Family) (image.Image, error) {
	logging.Debug("Using ffmpeg to decode image: %s", filepath.Base(path))
	return d.ffmpegFrame(ctx, path, 0, family)
}

// decodeVideo grabs a frame at VideoOffset, retrying at the first frame
// for clips shorter than the offset.
func (d *Dispatcher) decodeVideo(ctx context.Context, path string) (image.Image, string, error) {
	logging.Debug("Extracting video frame: %s", filepath.Base(path))

	img, err := d.ffmpegFrame(ctx, path, d.opts.VideoOffset, mediatypes.FamilyVideo)
	if err == nil {
		return img, "ffmpeg", nil
	}
	if errors.Is(err, errFFmpegMissing) {
		return nil, "", unsupported(path, err)
	}
	logging.Debug("FFmpeg first attempt failed for %s: %v", filepath.Base(path), err)

	img, err = d.ffmpegFrame(ctx, path, 0, mediatypes.FamilyVideo)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", unreadable(path, ctx.Err())
		}
		return nil, "", corrupt(path, err)
	}
	return img, "ffmpeg", nil
}

// formatOffset renders d as ffmpeg's HH:MM:SS.mmm.
func formatOffset(d time.Duration) string {
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}
