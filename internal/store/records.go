package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record is one cached file. Preview, Size, Modified, Resolution and
// PartialHash are always written together; Rating and Tag are user data
// that survive preview regeneration.
type Record struct {
	Key         string
	Preview     []byte
	Size        int64
	Modified    int64
	Resolution  string
	PartialHash string
	Rating      int
	Tag         int
	UpdatedAt   time.Time
}

// HasPreview reports whether a preview blob is stored.
func (r *Record) HasPreview() bool {
	return r != nil && len(r.Preview) > 0
}

// Legacy stores may hold NULLs in columns that are NOT NULL today.
const recordColumns = `key, preview, COALESCE(size, 0), COALESCE(modified, 0),
	COALESCE(resolution, ''), COALESCE(partial_hash, ''), COALESCE(rating, 0),
	COALESCE(tag, 0), COALESCE(updated_at, 0)`

// lookupBatch bounds the number of bound parameters per IN query.
const lookupBatch = 500

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		updatedAt int64
	)
	err := row.Scan(&rec.Key, &rec.Preview, &rec.Size, &rec.Modified,
		&rec.Resolution, &rec.PartialHash, &rec.Rating, &rec.Tag, &updatedAt)
	if err != nil {
		return nil, err
	}
	if updatedAt > 0 {
		rec.UpdatedAt = time.Unix(0, updatedAt)
	}
	return &rec, nil
}

// Lookup returns the record for key. A missing record is (nil, false, nil).
func (s *Store) Lookup(ctx context.Context, key string) (rec *Record, found bool, err error) {
	start := time.Now()
	defer func() { recordOp("lookup", start, err) }()

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM thumbnails WHERE key = ?`, key)
	rec, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable(err)
	}
	return rec, true, nil
}

// LookupMany returns the stored records for keys. Keys without a record are
// absent from the map.
func (s *Store) LookupMany(ctx context.Context, keys []string) (out map[string]*Record, err error) {
	start := time.Now()
	defer func() { recordOp("lookup_many", start, err) }()

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	out = make(map[string]*Record, len(keys))
	for begin := 0; begin < len(keys); begin += lookupBatch {
		batch := keys[begin:min(begin+lookupBatch, len(keys))]

		args := make([]any, len(batch))
		for i, k := range batch {
			args[i] = k
		}
		query := `SELECT ` + recordColumns + ` FROM thumbnails WHERE key IN (?` +
			strings.Repeat(",?", len(batch)-1) + `)`

		if err := s.collect(ctx, query, args, out); err != nil {
			return nil, unavailable(err)
		}
	}
	return out, nil
}

func (s *Store) collect(ctx context.Context, query string, args []any, out map[string]*Record) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		out[rec.Key] = rec
	}
	return rows.Err()
}

// FindByPartialHash returns the most recently written record with a preview
// whose partial hash and size match. It identifies files that were renamed
// without being modified.
func (s *Store) FindByPartialHash(ctx context.Context, hash string, size int64) (rec *Record, found bool, err error) {
	start := time.Now()
	defer func() { recordOp("find_by_hash", start, err) }()

	if hash == "" {
		return nil, false, nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM thumbnails
		WHERE partial_hash = ? AND size = ? AND preview IS NOT NULL
		ORDER BY updated_at DESC
		LIMIT 1
	`, hash, size)
	rec, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable(err)
	}
	return rec, true, nil
}

// Upsert writes the preview columns of rec. An existing rating and tag are
// kept; rec.Rating and rec.Tag are only used when the row is new.
func (s *Store) Upsert(ctx context.Context, rec *Record) (err error) {
	start := time.Now()
	defer func() { recordOp("upsert", start, err) }()

	if rec == nil || rec.Key == "" {
		return fmt.Errorf("upsert: record without key")
	}

	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO thumbnails (key, preview, size, modified, resolution, partial_hash, rating, tag, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				preview = excluded.preview,
				size = excluded.size,
				modified = excluded.modified,
				resolution = excluded.resolution,
				partial_hash = excluded.partial_hash,
				updated_at = excluded.updated_at
		`, rec.Key, rec.Preview, rec.Size, rec.Modified, rec.Resolution, rec.PartialHash,
			clampRating(rec.Rating), clampTag(rec.Tag), time.Now().UnixNano())
		return unavailable(err)
	})
}

// UpdateRating sets only the rating of key, creating a rating-only row if
// the file has not been cached yet.
func (s *Store) UpdateRating(ctx context.Context, key string, rating int) (err error) {
	start := time.Now()
	defer func() { recordOp("update_rating", start, err) }()

	if rating < 0 || rating > 5 {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	return s.updateField(ctx, "rating", key, rating)
}

// UpdateTag sets only the tag of key.
func (s *Store) UpdateTag(ctx context.Context, key string, tag int) (err error) {
	start := time.Now()
	defer func() { recordOp("update_tag", start, err) }()

	if tag < 0 || tag > 9 {
		return fmt.Errorf("%w: got %d", ErrInvalidTag, tag)
	}
	return s.updateField(ctx, "tag", key, tag)
}

// updateField writes one of the user columns. column is never user input.
func (s *Store) updateField(ctx context.Context, column, key string, value int) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO thumbnails (key, `+column+`, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET `+column+` = excluded.`+column,
			key, value, time.Now().UnixNano())
		return unavailable(err)
	})
}

// Delete removes the record for key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { recordOp("delete", start, err) }()

	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM thumbnails WHERE key = ?`, key)
		return unavailable(err)
	})
}

// Purge deletes every record and reclaims the file space.
func (s *Store) Purge(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordOp("purge", start, err) }()

	if s.readOnly {
		return ErrReadOnly
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM thumbnails`); err != nil {
		return unavailable(err)
	}
	// VACUUM cannot run inside a transaction.
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return unavailable(err)
	}
	return nil
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM thumbnails`).Scan(&n); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func clampRating(r int) int {
	return min(max(r, 0), 5)
}

func clampTag(t int) int {
	return min(max(t, 0), 9)
}
