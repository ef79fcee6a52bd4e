package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
)

// DefaultThreshold is the minimum Similarity for a misspelled segment to
// be replaced by an existing directory entry.
const DefaultThreshold = 0.85

// ErrNotFound is returned when no existing equivalent of a path exists.
var ErrNotFound = errors.New("path not found")

// Result is a resolved path.
type Result struct {
	Path string
	// Fuzzy is set when at least one segment was replaced by a similar
	// directory entry.
	Fuzzy bool
	// Pass is 0 for a verbatim match, 1 for a candidate under a volume
	// root and 2 when an ancestor was relocated and the tail reattached.
	Pass int
}

// Options configures a Resolver.
type Options struct {
	// Threshold defaults to DefaultThreshold.
	Threshold float64
	// VolumesDir is the directory whose appearance inside a candidate marks
	// a self-referential mount. Defaults to DefaultVolumesDir.
	VolumesDir string
	Retry      filesystem.RetryConfig
}

// Resolver relocates paths whose volume was remounted under another name.
type Resolver struct {
	source     VolumeSource
	threshold  float64
	volumesDir []string
	retry      filesystem.RetryConfig
}

// search carries the state of one Resolve call.
type search struct {
	*Resolver
	checked int
}

// New creates a Resolver reading volume roots from source.
func New(source VolumeSource, opts Options) *Resolver {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.VolumesDir == "" {
		opts.VolumesDir = DefaultVolumesDir
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialBackoff == 0 {
		opts.Retry = filesystem.DefaultRetryConfig()
	}
	return &Resolver{
		source:     source,
		threshold:  opts.Threshold,
		volumesDir: Segments(opts.VolumesDir),
		retry:      opts.Retry,
	}
}

type candidate struct {
	path   string
	volume string
	suffix []string
}

func generate(segments, volumes []string) []candidate {
	out := make([]candidate, 0, len(segments)*len(volumes))
	for _, v := range volumes {
		root := strings.TrimSuffix(v, "/")
		for i := range segments {
			suffix := segments[i:]
			out = append(out, candidate{
				path:   root + join(suffix),
				volume: root,
				suffix: suffix,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].path) > len(out[j].path)
	})
	return out
}

// Candidates joins every volume root with every suffix of segments, from
// the whole list down to the last segment, longest first. Equal lengths
// keep volume order.
func Candidates(segments, volumes []string) []string {
	cands := generate(segments, volumes)
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.path
	}
	return out
}

// Resolve finds the best existing equivalent of path. It never returns a
// bare volume root and never substitutes an unrelated path: when nothing
// matches, the error is ErrNotFound.
func (r *Resolver) Resolve(path string) (res Result, err error) {
	s := &search{Resolver: r}
	defer func() {
		metrics.ResolverCandidatesChecked.Observe(float64(s.checked))
		outcome := "not_found"
		switch {
		case err != nil:
		case res.Pass == 0:
			outcome = "verbatim"
		case res.Fuzzy:
			outcome = "fuzzy"
		case res.Pass == 1:
			outcome = "longest_match"
		default:
			outcome = "ancestor"
		}
		metrics.ResolverResolutionsTotal.WithLabelValues(outcome).Inc()
	}()

	norm := Normalize(path)
	segments := Segments(norm)
	if len(segments) == 0 {
		return Result{}, fmt.Errorf("resolve %q: %w", path, ErrNotFound)
	}

	if s.exists(norm) {
		return Result{Path: norm}, nil
	}

	volumes, err := s.source.Volumes()
	if err != nil {
		return Result{}, fmt.Errorf("resolve %q: list volumes: %w", path, err)
	}
	roots := make(map[string]bool, len(volumes))
	for _, v := range volumes {
		roots[strings.TrimSuffix(v, "/")] = true
	}

	for _, c := range generate(segments, volumes) {
		if roots[c.path] || s.junk(c) {
			continue
		}
		if s.exists(c.path) {
			logging.Debug("Resolved %s to %s (longest match)", norm, c.path)
			return Result{Path: c.path, Pass: 1}, nil
		}
	}

	for k := len(segments) - 1; k >= 1; k-- {
		prefix, tail := segments[:k], segments[k:]
		for _, ancestor := range s.ancestors(prefix, volumes) {
			full, fuzzy, ok := s.reattach(ancestor, tail)
			if !ok || roots[full] {
				continue
			}
			logging.Debug("Resolved %s to %s (ancestor %s, fuzzy %v)", norm, full, ancestor, fuzzy)
			return Result{Path: full, Fuzzy: fuzzy, Pass: 2}, nil
		}
	}

	logging.Debug("No equivalent found for %s", norm)
	return Result{}, fmt.Errorf("resolve %q: %w", path, ErrNotFound)
}

// ancestors lists existing directories that may stand in for prefix,
// longest first. The prefix itself qualifies only when it lies inside a
// volume root.
func (s *search) ancestors(prefix, volumes []string) []string {
	var out []string
	verbatim := join(prefix)
	for _, v := range volumes {
		if verbatim == v || strings.HasPrefix(verbatim, v+"/") {
			if s.isDir(verbatim) {
				out = append(out, verbatim)
			}
			break
		}
	}
	for _, c := range generate(prefix, volumes) {
		if s.junk(c) || c.path == verbatim {
			continue
		}
		if s.isDir(c.path) {
			out = append(out, c.path)
		}
	}
	return out
}

// reattach walks tail below dir, replacing missing segments with the most
// similar directory entry.
func (s *search) reattach(dir string, tail []string) (string, bool, bool) {
	cur, fuzzy := dir, false
	for _, seg := range tail {
		next := cur + "/" + seg
		if s.exists(next) {
			cur = next
			continue
		}
		match, ok := s.closest(cur, seg)
		if !ok {
			return "", false, false
		}
		cur, fuzzy = cur+"/"+match, true
	}
	return cur, fuzzy, true
}

// closest returns the entry of dir most similar to name, if it reaches the
// threshold. Ties keep directory order.
func (s *search) closest(dir, name string) (string, bool) {
	entries, err := filesystem.ReadDirWithRetry(dir, s.retry)
	if err != nil {
		return "", false
	}
	best, bestScore := "", 0.0
	for _, e := range entries {
		if score := Similarity(name, e.Name()); score > bestScore {
			best, bestScore = e.Name(), score
		}
	}
	if bestScore < s.threshold {
		return "", false
	}
	return best, true
}

// junk reports a candidate that looks through a volume into its own view
// of the volumes directory, or into itself.
func (r *Resolver) junk(c candidate) bool {
	if hasPrefixSegments(c.suffix, r.volumesDir) {
		return true
	}
	return hasPrefixSegments(c.suffix, Segments(c.volume))
}

func hasPrefixSegments(s, prefix []string) bool {
	if len(prefix) == 0 || len(s) < len(prefix) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (s *search) exists(path string) bool {
	s.checked++
	_, err := filesystem.StatWithRetry(path, s.retry)
	return err == nil
}

func (s *search) isDir(path string) bool {
	s.checked++
	info, err := filesystem.StatWithRetry(path, s.retry)
	return err == nil && info.IsDir()
}

// Similarity is 1 minus the Levenshtein distance of the lowercased strings
// divided by the longer length. Identical strings score 1.
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
