// Package resample shrinks decoded images to preview size.
package resample
