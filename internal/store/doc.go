// Package store is the per-directory thumbnail cache.
//
// Each browsed directory gets a hidden SQLite file (FileName) holding one
// row per file, keyed by Key(name). A row carries the JPEG preview and the
// size, modification time, resolution and partial hash of the source at
// the time it was generated, plus the user's rating and tag.
//
// The database runs in WAL mode so lookups are never blocked by a write.
// Writers are serialized by a per-store mutex and every write is a single
// transaction, so rows are never torn.
//
// Errors from the engine wrap ErrUnavailable; callers treat them as a
// reason to keep working without persistence rather than to fail.
//
// Stores written before ratings and tags were split kept the tag in the
// tens digit of rating. Opening such a store adds the tag column and splits
// those values once.
package store
