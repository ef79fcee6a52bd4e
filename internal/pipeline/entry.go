package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"
	"thumbcache/internal/store"
)

// StatEntry is a snapshot of one directory listing entry. It is built fresh
// on every visit and never persisted.
type StatEntry struct {
	Path     string
	Name     string
	Size     int64
	Modified int64 // unix nanoseconds
	Ext      string
	IsDir    bool
}

// Key returns the store identity key of the entry.
func (e StatEntry) Key() string {
	return store.Key(e.Name)
}

// Snapshot returns the fields the staleness decision compares.
func (e StatEntry) Snapshot() store.Snapshot {
	return store.Snapshot{Size: e.Size, Modified: e.Modified}
}

// Family classifies the entry. Directories are always unsupported.
func (e StatEntry) Family() mediatypes.Family {
	if e.IsDir {
		return mediatypes.FamilyUnsupported
	}
	return mediatypes.Classify(e.Ext)
}

// EntryFromInfo builds a StatEntry for a file inside dir.
func EntryFromInfo(dir string, info os.FileInfo) StatEntry {
	return StatEntry{
		Path:     filepath.Join(dir, info.Name()),
		Name:     info.Name(),
		Size:     info.Size(),
		Modified: info.ModTime().UnixNano(),
		Ext:      mediatypes.Ext(info.Name()),
		IsDir:    info.IsDir(),
	}
}

// ScanDirectory lists dir non-recursively. The store file and its journal
// files are skipped. Symlinks are followed; broken ones are skipped.
func ScanDirectory(dir string) ([]StatEntry, error) {
	retry := filesystem.DefaultRetryConfig()

	dirEntries, err := filesystem.ReadDirWithRetry(dir, retry)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	entries := make([]StatEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if strings.HasPrefix(de.Name(), store.FileName) {
			continue
		}

		path := filepath.Join(dir, de.Name())
		info, err := filesystem.StatWithRetry(path, retry)
		if err != nil {
			logging.Debug("Skipping %s: %v", path, err)
			continue
		}

		entries = append(entries, EntryFromInfo(dir, info))
	}
	return entries, nil
}
