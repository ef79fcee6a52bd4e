package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func sampleRecord(name string) *Record {
	return &Record{
		Key:         Key(name),
		Preview:     []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3},
		Size:        2048,
		Modified:    1_700_000_000_000_000_000,
		Resolution:  "640x480",
		PartialHash: "abc123",
	}
}

func TestOpenCreatesStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("store file not created: %v", err)
	}
	n, err := s.Count(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Count() = %d, %v; want 0, nil", n, err)
	}
}

func TestOpenNotWritable(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		dir  string
	}{
		{"missing directory", filepath.Join(dir, "missing")},
		{"not a directory", file},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(context.Background(), tt.dir, Options{})
			if !errors.Is(err, ErrNotWritable) {
				t.Errorf("Open() error = %v, want ErrNotWritable", err)
			}
		})
	}
}

func TestOpenReadOnlyDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	_, err := Open(context.Background(), dir, Options{})
	if !errors.Is(err, ErrNotWritable) {
		t.Errorf("Open() error = %v, want ErrNotWritable", err)
	}
}

// stallOpen makes the next opens block until release is closed. Each
// store that completes afterwards is sent on the returned channel.
func stallOpen(t *testing.T) (release chan struct{}, opened chan *Store) {
	t.Helper()
	release = make(chan struct{})
	opened = make(chan *Store, 1)
	orig := openFunc
	openFunc = func(dir string, opts Options) (*Store, error) {
		<-release
		s, err := orig(dir, opts)
		if s != nil {
			opened <- s
		}
		return s, err
	}
	t.Cleanup(func() { openFunc = orig })
	return release, opened
}

// waitClosed fails unless the store is closed within a few seconds.
func waitClosed(t *testing.T, s *Store) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := s.db.Ping(); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("abandoned store was never closed")
}

func TestOpenAbandoned(t *testing.T) {
	tests := []struct {
		name string
		open func(dir string) error
	}{
		{
			name: "timeout",
			open: func(dir string) error {
				_, err := Open(context.Background(), dir, Options{OpenTimeout: 20 * time.Millisecond})
				return err
			},
		},
		{
			name: "cancelled",
			open: func(dir string) error {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				_, err := Open(ctx, dir, Options{OpenTimeout: time.Minute})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			release, opened := stallOpen(t)
			dir := t.TempDir()

			err := tt.open(dir)
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("Open() error = %v, want ErrUnavailable", err)
			}

			close(release)
			select {
			case s := <-opened:
				waitClosed(t, s)
			case <-time.After(5 * time.Second):
				t.Fatal("stalled open never completed")
			}
		})
	}
}

func TestLookupMissing(t *testing.T) {
	s := openTestStore(t)

	rec, found, err := s.Lookup(context.Background(), Key("nothing.jpg"))
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if found || rec != nil {
		t.Errorf("Lookup() = %v, %v; want nil, false", rec, found)
	}
}

func TestUpsertAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	want := sampleRecord("a.jpg")

	if err := s.Upsert(ctx, want); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, found, err := s.Lookup(ctx, want.Key)
	if err != nil || !found {
		t.Fatalf("Lookup() = %v, %v", found, err)
	}
	if !bytes.Equal(got.Preview, want.Preview) || got.Size != want.Size ||
		got.Modified != want.Modified || got.Resolution != want.Resolution ||
		got.PartialHash != want.PartialHash {
		t.Errorf("Lookup() = %+v, want %+v", got, want)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestRatingIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := sampleRecord("a.jpg")

	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateRating(ctx, rec.Key, 4); err != nil {
		t.Fatalf("UpdateRating() error = %v", err)
	}
	if err := s.UpdateTag(ctx, rec.Key, 2); err != nil {
		t.Fatalf("UpdateTag() error = %v", err)
	}

	got, _, err := s.Lookup(ctx, rec.Key)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Preview, rec.Preview) || got.Size != rec.Size ||
		got.Modified != rec.Modified || got.Resolution != rec.Resolution {
		t.Errorf("UpdateRating changed preview columns: %+v", got)
	}

	regenerated := sampleRecord("a.jpg")
	regenerated.Preview = []byte{0xff, 0xd8, 9, 9}
	regenerated.Modified++
	if err := s.Upsert(ctx, regenerated); err != nil {
		t.Fatal(err)
	}

	got, _, err = s.Lookup(ctx, rec.Key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Rating != 4 || got.Tag != 2 {
		t.Errorf("after regeneration rating/tag = %d/%d, want 4/2", got.Rating, got.Tag)
	}
	if !bytes.Equal(got.Preview, regenerated.Preview) || got.Modified != regenerated.Modified {
		t.Error("Upsert did not replace the preview columns")
	}
}

func TestUpdateRatingCreatesRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	key := Key("uncached.png")

	if err := s.UpdateRating(ctx, key, 5); err != nil {
		t.Fatalf("UpdateRating() error = %v", err)
	}

	rec, found, err := s.Lookup(ctx, key)
	if err != nil || !found {
		t.Fatalf("Lookup() = %v, %v", found, err)
	}
	if rec.Rating != 5 || rec.HasPreview() {
		t.Errorf("rating-only row = %+v", rec)
	}
	if d := Decide(Snapshot{Size: 0, Modified: 0}, rec); d != Stale {
		t.Errorf("Decide(rating-only row) = %v, want stale", d)
	}
}

func TestUpdateValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, r := range []int{-1, 6, 13} {
		if err := s.UpdateRating(ctx, "k", r); !errors.Is(err, ErrInvalidRating) {
			t.Errorf("UpdateRating(%d) error = %v, want ErrInvalidRating", r, err)
		}
	}
	for _, tag := range []int{-1, 10} {
		if err := s.UpdateTag(ctx, "k", tag); !errors.Is(err, ErrInvalidTag) {
			t.Errorf("UpdateTag(%d) error = %v, want ErrInvalidTag", tag, err)
		}
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("invalid updates wrote %d rows", n)
	}
}

func TestLookupMany(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var keys []string
	for i := 0; i < 1200; i++ {
		name := fmt.Sprintf("img_%04d.jpg", i)
		keys = append(keys, Key(name))
		if i%3 == 0 {
			if err := s.Upsert(ctx, sampleRecord(name)); err != nil {
				t.Fatal(err)
			}
		}
	}

	got, err := s.LookupMany(ctx, keys)
	if err != nil {
		t.Fatalf("LookupMany() error = %v", err)
	}
	if len(got) != 400 {
		t.Errorf("LookupMany() returned %d records, want 400", len(got))
	}
	if _, ok := got[Key("img_0003.jpg")]; !ok {
		t.Error("LookupMany() missing img_0003.jpg")
	}
	if _, ok := got[Key("img_0004.jpg")]; ok {
		t.Error("LookupMany() returned an uncached key")
	}

	empty, err := s.LookupMany(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("LookupMany(nil) = %v, %v", empty, err)
	}
}

func TestFindByPartialHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := sampleRecord("before.jpg")
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, found, err := s.FindByPartialHash(ctx, rec.PartialHash, rec.Size)
	if err != nil || !found || got.Key != rec.Key {
		t.Errorf("FindByPartialHash() = %v, %v, %v", got, found, err)
	}

	if _, found, _ := s.FindByPartialHash(ctx, rec.PartialHash, rec.Size+1); found {
		t.Error("FindByPartialHash() matched a different size")
	}
	if _, found, _ := s.FindByPartialHash(ctx, "", rec.Size); found {
		t.Error("FindByPartialHash() matched an empty hash")
	}
}

func TestDeleteAndPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		if err := s.Upsert(ctx, sampleRecord(name)); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Delete(ctx, Key("a.jpg")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, Key("missing.jpg")); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Errorf("Count() after Delete = %d, want 2", n)
	}

	if err := s.Purge(ctx); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Count() after Purge = %d, want 0", n)
	}
}

func TestReadOnly(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	if _, err := Open(ctx, dir, Options{ReadOnly: true}); !errors.Is(err, ErrNoStore) {
		t.Fatalf("read-only Open() of empty dir error = %v, want ErrNoStore", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
		t.Error("read-only Open() created the store file")
	}

	rw, err := Open(ctx, dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer rw.Close()
	rec := sampleRecord("a.jpg")
	if err := rw.Upsert(ctx, rec); err != nil {
		t.Fatal(err)
	}

	ro, err := Open(ctx, dir, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("read-only Open() error = %v", err)
	}
	defer ro.Close()

	if _, found, err := ro.Lookup(ctx, rec.Key); err != nil || !found {
		t.Errorf("read-only Lookup() = %v, %v", found, err)
	}
	if err := ro.Upsert(ctx, rec); !errors.Is(err, ErrReadOnly) {
		t.Errorf("read-only Upsert() error = %v, want ErrReadOnly", err)
	}
	if err := ro.Purge(ctx); !errors.Is(err, ErrReadOnly) {
		t.Errorf("read-only Purge() error = %v, want ErrReadOnly", err)
	}
}

func TestLegacyRatingMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	legacy, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = legacy.Exec(`
		CREATE TABLE thumbnails (
			key TEXT PRIMARY KEY,
			preview BLOB,
			size INTEGER,
			modified INTEGER,
			resolution TEXT,
			rating INTEGER DEFAULT 0
		);
		INSERT INTO thumbnails (key, preview, size, modified, resolution, rating) VALUES
			('k23', x'ffd8', 10, 1, '1x1', 23),
			('k4', x'ffd8', 10, 1, NULL, 4),
			('k10', NULL, 10, 1, '1x1', 10);
	`)
	if err != nil {
		t.Fatalf("failed to build legacy store: %v", err)
	}
	if err := legacy.Close(); err != nil {
		t.Fatal(err)
	}

	s, err := Open(context.Background(), dir, Options{})
	if err != nil {
		t.Fatalf("Open() legacy error = %v", err)
	}
	defer s.Close()

	tests := []struct {
		key         string
		rating, tag int
	}{
		{"k23", 3, 2},
		{"k4", 4, 0},
		{"k10", 0, 1},
	}
	for _, tt := range tests {
		rec, found, err := s.Lookup(context.Background(), tt.key)
		if err != nil || !found {
			t.Fatalf("Lookup(%s) = %v, %v", tt.key, found, err)
		}
		if rec.Rating != tt.rating || rec.Tag != tt.tag {
			t.Errorf("%s: rating/tag = %d/%d, want %d/%d", tt.key, rec.Rating, rec.Tag, tt.rating, tt.tag)
		}
	}

	// A second open must not split again.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	again, err := Open(context.Background(), dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	rec, _, _ := again.Lookup(context.Background(), "k23")
	if rec.Rating != 3 || rec.Tag != 2 {
		t.Errorf("second open changed k23 to %d/%d", rec.Rating, rec.Tag)
	}
}

func TestConcurrentUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				rec := sampleRecord(fmt.Sprintf("w%d_%d.jpg", worker, j))
				if err := s.Upsert(ctx, rec); err != nil {
					errs <- err
				}
				if _, _, err := s.Lookup(ctx, rec.Key); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}
	if n, _ := s.Count(ctx); n != 64 {
		t.Errorf("Count() = %d, want 64", n)
	}
}

func TestPathWithSpecialCharacters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Shoot #3? (final)")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	s, err := Open(context.Background(), dir, Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("store not created inside %q: %v", dir, err)
	}
}
