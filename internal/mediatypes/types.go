package mediatypes

import (
	"path/filepath"
	"strings"
)

// Family is the decode strategy a file extension belongs to. Every Family
// has exactly one decoder in the codec package.
type Family int

const (
	// FamilyUnsupported has no decoder; callers show a generic type icon.
	FamilyUnsupported Family = iota
	// FamilyRaster covers opaque raster formats decoded directly.
	FamilyRaster
	// FamilyAlpha covers raster formats that may carry transparency.
	FamilyAlpha
	// FamilyLayered covers layered documents that must be composited.
	FamilyLayered
	// FamilyRaw covers camera raw files; the embedded preview is used.
	FamilyRaw
	// FamilyExtended covers raster formats only libvips can decode.
	FamilyExtended
	// FamilyVideo covers video containers; a single frame is extracted.
	FamilyVideo
)

// Families lists every Family, FamilyUnsupported first.
func Families() []Family {
	return []Family{
		FamilyUnsupported,
		FamilyRaster,
		FamilyAlpha,
		FamilyLayered,
		FamilyRaw,
		FamilyExtended,
		FamilyVideo,
	}
}

// String returns the metric label for the family.
func (f Family) String() string {
	switch f {
	case FamilyRaster:
		return "raster"
	case FamilyAlpha:
		return "alpha"
	case FamilyLayered:
		return "layered"
	case FamilyRaw:
		return "raw"
	case FamilyExtended:
		return "extended"
	case FamilyVideo:
		return "video"
	default:
		return "unsupported"
	}
}

// Previewable reports whether files of this family get a generated preview.
func (f Family) Previewable() bool {
	return f != FamilyUnsupported
}

// Classify returns the Family for an extension. The extension is matched
// case-insensitively and may be given with or without the leading dot.
func Classify(ext string) Family {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	switch ext {
	case ".jpg", ".jpeg", ".jpe", ".jfif", ".bmp":
		return FamilyRaster
	case ".png", ".gif", ".webp", ".tif", ".tiff", ".ico":
		return FamilyAlpha
	case ".psd", ".psb", ".xcf":
		return FamilyLayered
	case ".cr2", ".cr3", ".crw", ".nef", ".nrw", ".arw", ".srf", ".sr2",
		".dng", ".raf", ".orf", ".rw2", ".pef", ".srw", ".raw",
		".3fr", ".erf", ".kdc", ".mrw", ".x3f":
		return FamilyRaw
	case ".heic", ".heif", ".avif", ".jxl", ".jp2", ".svg":
		return FamilyExtended
	case ".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v",
		".mpeg", ".mpg", ".3gp", ".ts", ".mts", ".m2ts":
		return FamilyVideo
	default:
		return FamilyUnsupported
	}
}

// ClassifyPath classifies a file by its extension.
func ClassifyPath(path string) Family {
	return Classify(filepath.Ext(path))
}

// Ext returns the lowercase extension of name including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
