// Package codec turns a file on disk into an upright pixel buffer.
//
// Dispatch is a static switch over mediatypes.Family, one case per family:
//
//   - raster and alpha raster: imaging, then the standard decoders, then ffmpeg
//   - layered documents and extended raster: libvips, then ffmpeg
//   - camera raw: the embedded JPEG preview, oriented by its EXIF tag
//   - video: one ffmpeg frame at Options.VideoOffset, retried at the start
//
// Transparency is flattened onto Options.Background unless KeepAlpha is set.
//
// Every failure is a *DecodeError whose Kind separates unsupported formats,
// corrupt data and unreadable files. Use errors.Is with ErrUnsupported,
// ErrCorrupt or ErrUnreadable to branch on it.
package codec
