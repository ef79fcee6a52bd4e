package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"thumbcache/internal/codec"
	"thumbcache/internal/mediatypes"
	"thumbcache/internal/store"
)

// fakeDecoder returns a fixed image for every path, or a corrupt error for
// names listed in corrupt. When release is set, Decode blocks on it.
type fakeDecoder struct {
	calls   atomic.Int32
	corrupt map[string]bool
	started chan string
	release chan struct{}
}

func (f *fakeDecoder) Decode(_ context.Context, path string) (*codec.Image, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- path
	}
	if f.release != nil {
		<-f.release
	}
	if f.corrupt[filepath.Base(path)] {
		return nil, &codec.DecodeError{Kind: codec.KindCorrupt, Path: path, Err: errors.New("bad data")}
	}
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.NRGBA{R: 10, G: 120, B: 200, A: 255}}, image.Point{}, draw.Src)
	return &codec.Image{Pixels: img, Width: 64, Height: 48, Family: mediatypes.FamilyRaster, Format: "fake"}, nil
}

// countingDecoder counts calls to a real decoder.
type countingDecoder struct {
	Decoder
	calls atomic.Int32
}

func (c *countingDecoder) Decode(ctx context.Context, path string) (*codec.Image, error) {
	c.calls.Add(1)
	return c.Decoder.Decode(ctx, path)
}

func realDecoder() *countingDecoder {
	return &countingDecoder{Decoder: codec.New(codec.Options{FFmpegPath: "thumbcache-test-no-such-ffmpeg"})}
}

func testConfig(workers int) Config {
	cfg := DefaultConfig()
	cfg.Workers = workers
	return cfg
}

func jpegBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func scan(t *testing.T, dir string) []StatEntry {
	t.Helper()
	entries, err := ScanDirectory(dir)
	if err != nil {
		t.Fatalf("ScanDirectory failed: %v", err)
	}
	return entries
}

// collect drains a run and checks that exactly one Done arrives last.
func collect(t *testing.T, r *Run) ([]Event, Event) {
	t.Helper()
	var items []Event
	var done Event
	dones := 0
	timeout := time.After(30 * time.Second)
	for {
		select {
		case ev, ok := <-r.Events():
			if !ok {
				if dones != 1 {
					t.Fatalf("expected exactly one Done event, got %d", dones)
				}
				return items, done
			}
			if ev.RunID != r.ID() {
				t.Errorf("event run id = %d, want %d", ev.RunID, r.ID())
			}
			if ev.Kind == Done {
				dones++
				done = ev
				continue
			}
			if dones > 0 {
				t.Fatalf("ItemReady for %s after Done", ev.Name)
			}
			items = append(items, ev)
		case <-timeout:
			t.Fatal("timed out waiting for run events")
		}
	}
}

func openStore(t *testing.T, dir string) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), dir, store.Options{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func byName(items []Event) map[string]Event {
	out := make(map[string]Event, len(items))
	for _, ev := range items {
		out[ev.Name] = ev
	}
	return out
}

func TestIdempotentPreview(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jpg", jpegBytes(t, 300, 200, color.RGBA{R: 200, G: 40, B: 40, A: 255}))
	entries := scan(t, dir)

	dec := realDecoder()
	p := New(testConfig(2), dec)

	first, _ := collect(t, p.Start(context.Background(), dir, entries))
	if len(first) != 1 || first[0].Status != StatusMiss || !first[0].Cached {
		t.Fatalf("first run = %+v, want one cached miss", first)
	}

	st := openStore(t, dir)
	if err := st.UpdateRating(context.Background(), store.Key("a.jpg"), 4); err != nil {
		t.Fatalf("UpdateRating failed: %v", err)
	}

	second, _ := collect(t, p.Start(context.Background(), dir, entries))
	if len(second) != 1 || second[0].Status != StatusHit {
		t.Fatalf("second run = %+v, want one hit", second)
	}
	if !bytes.Equal(first[0].Preview, second[0].Preview) {
		t.Error("cached preview differs from generated preview")
	}
	if second[0].Rating != 4 {
		t.Errorf("rating = %d, want 4", second[0].Rating)
	}

	// Regenerating from unchanged pixels yields the same bytes and keeps
	// the rating.
	entries[0].Modified++
	third, _ := collect(t, p.Start(context.Background(), dir, entries))
	if len(third) != 1 || third[0].Status != StatusStale {
		t.Fatalf("third run = %+v, want one stale", third)
	}
	if !bytes.Equal(first[0].Preview, third[0].Preview) {
		t.Error("regenerated preview differs")
	}
	rec, _, err := st.Lookup(context.Background(), store.Key("a.jpg"))
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec.Rating != 4 {
		t.Errorf("stored rating = %d, want 4", rec.Rating)
	}
	if rec.Resolution != "300x200" {
		t.Errorf("resolution = %q, want 300x200", rec.Resolution)
	}
	if dec.calls.Load() != 2 {
		t.Errorf("decode calls = %d, want 2", dec.calls.Load())
	}
}

func TestStaleness(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.jpg", []byte("first file"))
	writeFile(t, dir, "two.jpg", []byte("second file"))
	entries := scan(t, dir)

	dec := &fakeDecoder{}
	p := New(testConfig(2), dec)

	collect(t, p.Start(context.Background(), dir, entries))
	if dec.calls.Load() != 2 {
		t.Fatalf("initial decode calls = %d, want 2", dec.calls.Load())
	}

	_, done := collect(t, p.Start(context.Background(), dir, entries))
	if dec.calls.Load() != 2 {
		t.Errorf("unchanged rerun decoded %d files", dec.calls.Load()-2)
	}
	if done.Stats.Hits != 2 {
		t.Errorf("hits = %d, want 2", done.Stats.Hits)
	}

	changed := append([]StatEntry(nil), entries...)
	for i := range changed {
		if changed[i].Name == "one.jpg" {
			changed[i].Modified++
		}
	}
	items, done := collect(t, p.Start(context.Background(), dir, changed))
	if dec.calls.Load() != 3 {
		t.Errorf("decode calls = %d, want 3", dec.calls.Load())
	}
	got := byName(items)
	if got["one.jpg"].Status != StatusStale {
		t.Errorf("one.jpg status = %s, want stale", got["one.jpg"].Status)
	}
	if got["two.jpg"].Status != StatusHit {
		t.Errorf("two.jpg status = %s, want hit", got["two.jpg"].Status)
	}
	if done.Stats.Stale != 1 || done.Stats.Hits != 1 {
		t.Errorf("stats = %+v", done.Stats)
	}

	// A size change alone also invalidates.
	changed = append([]StatEntry(nil), entries...)
	changed[0].Size++
	items, _ = collect(t, p.Start(context.Background(), dir, changed))
	if byName(items)[changed[0].Name].Status != StatusStale {
		t.Errorf("size change not detected for %s", changed[0].Name)
	}
}

func TestConcurrencyIsolation(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, dir, fmt.Sprintf("img%02d.jpg", i), []byte(fmt.Sprintf("content %d", i)))
	}
	entries := scan(t, dir)

	dec := &fakeDecoder{corrupt: map[string]bool{"img03.jpg": true}}
	p := New(testConfig(4), dec)

	items, done := collect(t, p.Start(context.Background(), dir, entries))
	if len(items) != 10 {
		t.Fatalf("got %d ItemReady events, want 10", len(items))
	}

	var failed []Event
	for _, ev := range items {
		if ev.Err != nil {
			failed = append(failed, ev)
		}
	}
	if len(failed) != 1 {
		t.Fatalf("got %d failed events, want 1", len(failed))
	}
	if failed[0].Name != "img03.jpg" {
		t.Errorf("failed event is %s, want img03.jpg", failed[0].Name)
	}
	if !errors.Is(failed[0].Err, codec.ErrCorrupt) {
		t.Errorf("error = %v, want ErrCorrupt", failed[0].Err)
	}
	if failed[0].Preview != nil || failed[0].Status != StatusError {
		t.Errorf("failed event = %+v, want no preview and error status", failed[0])
	}
	if done.Stats.Errors != 1 || done.Stats.Misses != 9 || done.Stats.Total != 10 {
		t.Errorf("stats = %+v", done.Stats)
	}

	n, err := openStore(t, dir).Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 9 {
		t.Errorf("store has %d records, want 9", n)
	}
}

func TestCancellation(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, dir, fmt.Sprintf("img%d.jpg", i), bytes.Repeat([]byte{byte(i)}, 10+i))
	}
	entries := scan(t, dir)

	dec := &fakeDecoder{started: make(chan string, 5), release: make(chan struct{})}
	p := New(testConfig(1), dec)

	r := p.Start(context.Background(), dir, entries)
	first := <-dec.started
	r.Cancel()
	close(dec.release)

	items, done := collect(t, r)
	if len(items) != 1 {
		t.Fatalf("got %d ItemReady events, want 1", len(items))
	}
	if items[0].Path != first {
		t.Errorf("delivered %s, want in-flight %s", items[0].Path, first)
	}
	if items[0].Preview == nil {
		t.Error("in-flight item was not completed")
	}
	if !done.Cancelled {
		t.Error("Done.Cancelled = false, want true")
	}
	if dec.calls.Load() != 1 {
		t.Errorf("decode calls = %d, want 1", dec.calls.Load())
	}

	// Smallest file goes first.
	if filepath.Base(first) != "img0.jpg" {
		t.Errorf("first dispatched = %s, want img0.jpg", filepath.Base(first))
	}

	r.Cancel()
	if stats := r.Wait(); stats.Total != 1 {
		t.Errorf("Wait stats total = %d, want 1", stats.Total)
	}
	if p.ActiveRuns() != 0 {
		t.Errorf("ActiveRuns = %d, want 0", p.ActiveRuns())
	}
}

func TestCancelAll(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jpg", []byte("a"))
	writeFile(t, dir, "b.jpg", []byte("bb"))
	entries := scan(t, dir)

	dec := &fakeDecoder{started: make(chan string, 2), release: make(chan struct{})}
	p := New(testConfig(1), dec)

	r := p.Start(context.Background(), dir, entries)
	<-dec.started
	if p.ActiveRuns() != 1 {
		t.Errorf("ActiveRuns = %d, want 1", p.ActiveRuns())
	}
	p.CancelAll()
	close(dec.release)

	_, done := collect(t, r)
	if !done.Cancelled {
		t.Error("run was not cancelled")
	}
}

func TestEndToEndRasterAndRaw(t *testing.T) {
	dir := t.TempDir()
	t1 := time.Unix(1700000000, 0)
	t2 := time.Unix(1700000600, 0)

	aPath := writeFile(t, dir, "a.jpg", jpegBytes(t, 40, 30, color.RGBA{R: 20, G: 200, B: 20, A: 255}))
	raw := append(bytes.Repeat([]byte("RAWHEADER"), 200), jpegBytes(t, 160, 120, color.RGBA{R: 20, G: 20, B: 200, A: 255})...)
	raw = append(raw, bytes.Repeat([]byte("SENSOR"), 400)...)
	bPath := writeFile(t, dir, "b.raw", raw)
	for _, path := range []string{aPath, bPath} {
		if err := os.Chtimes(path, t1, t1); err != nil {
			t.Fatalf("Chtimes failed: %v", err)
		}
	}

	dec := realDecoder()
	p := New(testConfig(1), dec)

	items, done := collect(t, p.Start(context.Background(), dir, scan(t, dir)))
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Name != "a.jpg" || items[1].Name != "b.raw" {
		t.Errorf("order = %s, %s; want a.jpg, b.raw", items[0].Name, items[1].Name)
	}
	for _, ev := range items {
		if ev.Err != nil || !ev.Cached || ev.Status != StatusMiss {
			t.Errorf("%s: err=%v cached=%v status=%s", ev.Name, ev.Err, ev.Cached, ev.Status)
		}
	}
	if done.Cancelled || done.Stats.Degraded {
		t.Errorf("done = %+v", done)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(byName(items)["b.raw"].Preview))
	if err != nil {
		t.Fatalf("raw preview is not a JPEG: %v", err)
	}
	if cfg.Width != 160 || cfg.Height != 120 {
		t.Errorf("raw preview = %dx%d, want 160x120", cfg.Width, cfg.Height)
	}

	st := openStore(t, dir)
	records, err := st.LookupMany(context.Background(), []string{store.Key("a.jpg"), store.Key("b.raw")})
	if err != nil {
		t.Fatalf("LookupMany failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for key, rec := range records {
		if rec.Modified != t1.UnixNano() {
			t.Errorf("record %s modified = %d, want %d", key, rec.Modified, t1.UnixNano())
		}
	}

	if err := os.Chtimes(bPath, t2, t2); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}
	items, _ = collect(t, p.Start(context.Background(), dir, scan(t, dir)))
	got := byName(items)
	if got["a.jpg"].Status != StatusHit {
		t.Errorf("a.jpg status = %s, want hit", got["a.jpg"].Status)
	}
	if got["b.raw"].Status != StatusStale {
		t.Errorf("b.raw status = %s, want stale", got["b.raw"].Status)
	}
	if dec.calls.Load() != 3 {
		t.Errorf("decode calls = %d, want 3", dec.calls.Load())
	}
}

func TestPassThrough(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "notes.txt", []byte("hello"))
	writeFile(t, dir, "a.jpg", []byte("pixels"))

	st := openStore(t, dir)
	if err := st.UpdateRating(context.Background(), store.Key("notes.txt"), 2); err != nil {
		t.Fatalf("UpdateRating failed: %v", err)
	}

	dec := &fakeDecoder{}
	p := New(testConfig(2), dec)
	items, done := collect(t, p.Start(context.Background(), dir, scan(t, dir)))

	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	got := byName(items)
	for _, name := range []string{"sub", "notes.txt"} {
		ev := got[name]
		if !ev.PassThrough || ev.Status != StatusPassThrough || ev.Preview != nil {
			t.Errorf("%s = %+v, want pass-through without preview", name, ev)
		}
	}
	if got["notes.txt"].Rating != 2 {
		t.Errorf("notes.txt rating = %d, want 2", got["notes.txt"].Rating)
	}
	if got["a.jpg"].PassThrough || got["a.jpg"].Preview == nil {
		t.Errorf("a.jpg = %+v, want a preview", got["a.jpg"])
	}
	if done.Stats.PassThrough != 2 {
		t.Errorf("pass-through count = %d, want 2", done.Stats.PassThrough)
	}
	if dec.calls.Load() != 1 {
		t.Errorf("decode calls = %d, want 1", dec.calls.Load())
	}
}

func TestDegradedMode(t *testing.T) {
	src := t.TempDir()
	path := writeFile(t, src, "a.jpg", []byte("pixels"))
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	missing := filepath.Join(t.TempDir(), "gone")
	entry := EntryFromInfo(src, info)

	p := New(testConfig(1), &fakeDecoder{})
	items, done := collect(t, p.Start(context.Background(), missing, []StatEntry{entry}))

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Preview == nil || items[0].Cached {
		t.Errorf("item = %+v, want an uncached preview", items[0])
	}
	if !done.Stats.Degraded {
		t.Error("Degraded = false, want true")
	}
	if _, err := os.Stat(filepath.Join(missing, store.FileName)); !os.IsNotExist(err) {
		t.Errorf("store file created in missing directory: %v", err)
	}
}

func TestDegradedCorruptStore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jpg", []byte("pixels"))
	writeFile(t, dir, "b.jpg", []byte("more pixels"))
	junk := bytes.Repeat([]byte("not a database "), 300)
	writeFile(t, dir, store.FileName, junk)

	dec := &fakeDecoder{}
	p := New(testConfig(2), dec)
	items, done := collect(t, p.Start(context.Background(), dir, scan(t, dir)))

	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	for _, ev := range items {
		if ev.Preview == nil || ev.Cached {
			t.Errorf("%s = %+v, want an uncached preview", ev.Name, ev)
		}
	}
	if !done.Stats.Degraded {
		t.Error("Degraded = false, want true")
	}
	got, err := os.ReadFile(filepath.Join(dir, store.FileName))
	if err != nil || !bytes.Equal(got, junk) {
		t.Errorf("corrupt store file was modified: %v", err)
	}
}

func TestRenameDetection(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "old.jpg", []byte("unchanged image content"))

	dec := &fakeDecoder{}
	p := New(testConfig(1), dec)
	first, _ := collect(t, p.Start(context.Background(), dir, scan(t, dir)))

	st := openStore(t, dir)
	if err := st.UpdateRating(context.Background(), store.Key("old.jpg"), 5); err != nil {
		t.Fatalf("UpdateRating failed: %v", err)
	}
	if err := st.UpdateTag(context.Background(), store.Key("old.jpg"), 3); err != nil {
		t.Fatalf("UpdateTag failed: %v", err)
	}

	if err := os.Rename(filepath.Join(dir, "old.jpg"), filepath.Join(dir, "new.jpg")); err != nil {
		t.Fatal(err)
	}
	items, done := collect(t, p.Start(context.Background(), dir, scan(t, dir)))

	if dec.calls.Load() != 1 {
		t.Errorf("decode calls = %d, want 1", dec.calls.Load())
	}
	if len(items) != 1 || items[0].Status != StatusRenamed {
		t.Fatalf("items = %+v, want one renamed", items)
	}
	ev := items[0]
	if !bytes.Equal(ev.Preview, first[0].Preview) || ev.Rating != 5 || ev.Tag != 3 {
		t.Errorf("renamed event = %+v", ev)
	}
	if done.Stats.Renamed != 1 {
		t.Errorf("renamed count = %d, want 1", done.Stats.Renamed)
	}

	if _, found, _ := st.Lookup(context.Background(), store.Key("old.jpg")); found {
		t.Error("record of old name was kept")
	}
	rec, found, err := st.Lookup(context.Background(), store.Key("new.jpg"))
	if err != nil || !found {
		t.Fatalf("record of new name missing: %v", err)
	}
	if rec.Rating != 5 || rec.Tag != 3 {
		t.Errorf("new record rating/tag = %d/%d, want 5/3", rec.Rating, rec.Tag)
	}
}

func TestCopyKeepsOwnRating(t *testing.T) {
	tests := []struct {
		name    string
		listing func(t *testing.T, dir string) []StatEntry
	}{
		{
			name: "copy listed alone",
			listing: func(t *testing.T, dir string) []StatEntry {
				return []StatEntry{byNameEntries(scan(t, dir))["b.jpg"]}
			},
		},
		{
			name:    "copy listed with original",
			listing: scan,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			content := []byte("identical image content")
			writeFile(t, dir, "a.jpg", content)

			dec := &fakeDecoder{}
			p := New(testConfig(1), dec)
			first, _ := collect(t, p.Start(context.Background(), dir, scan(t, dir)))

			st := openStore(t, dir)
			ctx := context.Background()
			if err := st.UpdateRating(ctx, store.Key("a.jpg"), 5); err != nil {
				t.Fatalf("UpdateRating failed: %v", err)
			}
			if err := st.UpdateTag(ctx, store.Key("a.jpg"), 3); err != nil {
				t.Fatalf("UpdateTag failed: %v", err)
			}

			writeFile(t, dir, "b.jpg", content)
			items, done := collect(t, p.Start(ctx, dir, tt.listing(t, dir)))

			if dec.calls.Load() != 1 {
				t.Errorf("decode calls = %d, want 1", dec.calls.Load())
			}
			b, ok := byName(items)["b.jpg"]
			if !ok {
				t.Fatalf("items = %+v, want b.jpg", items)
			}
			if b.Status != StatusMiss || !b.Cached || b.Rating != 0 || b.Tag != 0 {
				t.Errorf("b.jpg = %+v, want a cached miss without rating", b)
			}
			if !bytes.Equal(b.Preview, first[0].Preview) {
				t.Error("b.jpg preview differs from a.jpg preview")
			}
			if done.Stats.Renamed != 0 {
				t.Errorf("renamed count = %d, want 0", done.Stats.Renamed)
			}

			a, found, err := st.Lookup(ctx, store.Key("a.jpg"))
			if err != nil || !found {
				t.Fatalf("record of original deleted: %v", err)
			}
			if a.Rating != 5 || a.Tag != 3 {
				t.Errorf("original rating/tag = %d/%d, want 5/3", a.Rating, a.Tag)
			}
			rec, found, err := st.Lookup(ctx, store.Key("b.jpg"))
			if err != nil || !found {
				t.Fatalf("record of copy missing: %v", err)
			}
			if rec.Rating != 0 || rec.Tag != 0 {
				t.Errorf("copy rating/tag = %d/%d, want 0/0", rec.Rating, rec.Tag)
			}
		})
	}
}

func TestRenameDetectionDisabled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "old.jpg", []byte("unchanged image content"))

	cfg := testConfig(1)
	cfg.DetectRenames = false
	dec := &fakeDecoder{}
	p := New(cfg, dec)
	collect(t, p.Start(context.Background(), dir, scan(t, dir)))

	if err := os.Rename(filepath.Join(dir, "old.jpg"), filepath.Join(dir, "new.jpg")); err != nil {
		t.Fatal(err)
	}
	items, _ := collect(t, p.Start(context.Background(), dir, scan(t, dir)))
	if items[0].Status != StatusMiss {
		t.Errorf("status = %s, want miss", items[0].Status)
	}
	if dec.calls.Load() != 2 {
		t.Errorf("decode calls = %d, want 2", dec.calls.Load())
	}
}

func TestEmptyListing(t *testing.T) {
	p := New(testConfig(2), &fakeDecoder{})
	items, done := collect(t, p.Start(context.Background(), t.TempDir(), nil))
	if len(items) != 0 || done.Cancelled || done.Stats.Total != 0 {
		t.Errorf("items=%d done=%+v", len(items), done)
	}
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jpg", []byte("abc"))
	writeFile(t, dir, store.FileName, []byte("db"))
	writeFile(t, dir, store.FileName+"-wal", []byte("wal"))
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "missing.jpg"), filepath.Join(dir, "dangling.jpg")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	if err := os.Symlink(filepath.Join(dir, "a.jpg"), filepath.Join(dir, "link.jpg")); err != nil {
		t.Fatal(err)
	}

	got := byNameEntries(scan(t, dir))
	if len(got) != 3 {
		t.Fatalf("got entries %v, want a.jpg, link.jpg and sub", got)
	}
	a := got["a.jpg"]
	if a.Size != 3 || a.Ext != ".jpg" || a.IsDir || a.Path != filepath.Join(dir, "a.jpg") {
		t.Errorf("a.jpg = %+v", a)
	}
	if link := got["link.jpg"]; link.Size != 3 || link.Key() != store.Key("link.jpg") {
		t.Errorf("link.jpg = %+v", link)
	}
	if sub := got["sub"]; !sub.IsDir || sub.Family() != mediatypes.FamilyUnsupported {
		t.Errorf("sub = %+v", sub)
	}
}

func byNameEntries(entries []StatEntry) map[string]StatEntry {
	out := make(map[string]StatEntry, len(entries))
	for _, e := range entries {
		out[e.Name] = e
	}
	return out
}

func TestScanDirectoryMissing(t *testing.T) {
	if _, err := ScanDirectory(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestConfigDefaults(t *testing.T) {
	p := New(Config{Quality: 150}, &fakeDecoder{})
	cfg := p.Config()
	if cfg.Workers < 1 || cfg.EventBuffer != 64 || cfg.MaxEdge != 256 || cfg.Quality != 80 {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.HashChunk != store.DefaultHashChunk || cfg.OpenTimeout != 3*time.Second {
		t.Errorf("config = %+v", cfg)
	}
}
