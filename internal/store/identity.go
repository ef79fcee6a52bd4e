package store

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
)

// DefaultHashChunk is how much of each end of a file PartialHash reads.
const DefaultHashChunk = 10 << 20

// Key returns the identity key of a file: the hex MD5 of its base name.
// It survives moving the directory but not renaming the file.
func Key(name string) string {
	sum := md5.Sum([]byte(filepath.Base(name)))
	return hex.EncodeToString(sum[:])
}

// PartialHash digests the first and last chunk bytes of the file together
// with its size. Files up to 2*chunk bytes are hashed whole.
func PartialHash(path string, chunk int64) (string, error) {
	if chunk <= 0 {
		chunk = DefaultHashChunk
	}

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s after hashing: %v", path, err)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	if size <= 2*chunk {
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("hash %s: %w", path, err)
		}
	} else {
		if _, err := io.CopyN(h, f, chunk); err != nil {
			return "", fmt.Errorf("hash head of %s: %w", path, err)
		}
		if _, err := io.Copy(h, io.NewSectionReader(f, size-chunk, chunk)); err != nil {
			return "", fmt.Errorf("hash tail of %s: %w", path, err)
		}
	}

	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], uint64(size))
	h.Write(sizeBuf[:])

	return hex.EncodeToString(h.Sum(nil)), nil
}
