// Package gallery holds the enrolled identities and their face embeddings.
// A Gallery is built once from a directory of labeled samples and is
// read-only afterwards.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/schollz/progressbar/v3"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrNoFace means the extractor found no face in a sample.
var ErrNoFace = errors.New("no face found")

// Extractor is the face detection / embedding capability used at enrollment.
type Extractor interface {
	Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error)
	Embed(ctx context.Context, img image.Image, box image.Rectangle) ([]float64, error)
}

// ExtractionError reports a sample that produced no usable embedding.
// It is never fatal: the sample is skipped.
type ExtractionError struct {
	File string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("couldn't process %s: %v", e.File, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Entry pairs an identity with one embedding.
type Entry struct {
	Identity  string
	Embedding []float64
}

// Gallery is the ordered list of entries. Order is the load order and is
// what breaks ties between equally close matches.
type Gallery struct {
	entries []Entry
	counts  map[string]int
	dim     int
}

// New returns an empty gallery.
func New() *Gallery {
	return &Gallery{counts: make(map[string]int)}
}

// Add appends an entry. All embeddings must share the dimension of the first one.
// Only loaders call Add; recognition treats the gallery as read-only.
func (g *Gallery) Add(identity string, embedding []float64) error {
	if identity == "" {
		return errors.New("identity cannot be empty")
	}
	if len(embedding) == 0 {
		return errors.New("embedding cannot be empty")
	}
	if g.dim != 0 && len(embedding) != g.dim {
		return fmt.Errorf("embedding has %d dimensions, gallery uses %d", len(embedding), g.dim)
	}
	g.dim = len(embedding)
	vec := make([]float64, len(embedding))
	copy(vec, embedding)
	g.entries = append(g.entries, Entry{Identity: identity, Embedding: vec})
	g.counts[identity]++
	return nil
}

// Entries returns the entries in load order. Callers must not modify them.
func (g *Gallery) Entries() []Entry {
	if g == nil {
		return nil
	}
	return g.entries
}

// Len is the total number of embeddings.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

// Identities is the number of distinct identities.
func (g *Gallery) Identities() int {
	if g == nil {
		return 0
	}
	return len(g.counts)
}

// Dim is the embedding dimensionality, 0 for an empty gallery.
func (g *Gallery) Dim() int {
	if g == nil {
		return 0
	}
	return g.dim
}

// Names returns the distinct identities sorted alphabetically.
func (g *Gallery) Names() []string {
	if g == nil {
		return nil
	}
	names := make([]string, 0, len(g.counts))
	for name := range g.counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns how many embeddings identity owns.
func (g *Gallery) Count(identity string) int {
	if g == nil {
		return 0
	}
	return g.counts[identity]
}

// Sample is one labeled file in the gallery directory.
type Sample struct {
	Path     string
	Identity string
	Index    int
}

// Skip records why a sample was not loaded.
type Skip struct {
	File string
	Err  error
}

// ScanDir lists the labeled samples in dir in lexical file name order.
// Files with unsupported extensions are ignored; badly named ones are skipped.
func ScanDir(dir string) ([]Sample, []Skip, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	var samples []Sample
	var skipped []Skip
	for _, e := range entries {
		if e.IsDir() || !IsSampleFile(e.Name()) {
			continue
		}
		name, index, err := ParseIdentity(e.Name())
		if err != nil {
			skipped = append(skipped, Skip{File: e.Name(), Err: err})
			continue
		}
		samples = append(samples, Sample{Path: filepath.Join(dir, e.Name()), Identity: name, Index: index})
	}
	return samples, skipped, nil
}

// Report is the human readable outcome of Load.
type Report struct {
	Dir      string
	Missing  bool
	Loaded   []Sample
	Skipped  []Skip
	Warnings []string
}

// Print writes the loaded/skipped lines and the totals.
func (r *Report) Print(w io.Writer, g *Gallery) {
	if r.Missing {
		fmt.Fprintf(w, "⚠️  No '%s' folder found!\n", r.Dir)
	}
	for _, s := range r.Loaded {
		fmt.Fprintf(w, "  ✓ Loaded: %s (%s)\n", s.Identity, filepath.Base(s.Path))
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "  ✗ Couldn't process: %s (%v)\n", s.File, s.Err)
	}
	for _, msg := range r.Warnings {
		fmt.Fprintf(w, "  ⚠ %s\n", msg)
	}
	fmt.Fprintf(w, "Loaded %d known faces for %d people\n", g.Len(), g.Identities())
}

// Load builds a Gallery from the labeled samples in dir. Samples that cannot
// be decoded, contain no face, or have the wrong dimension are skipped and
// reported. A missing directory yields an empty gallery. Only extractor
// failures (a dead worker) and cancellation abort the load.
func Load(ctx context.Context, dir string, ex Extractor, progress io.Writer) (*Gallery, *Report, error) {
	g := New()
	report := &Report{Dir: dir}

	samples, skipped, err := ScanDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			report.Missing = true
			return g, report, nil
		}
		return nil, nil, fmt.Errorf("reading gallery %s: %w", dir, err)
	}
	report.Skipped = skipped

	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(samples),
		progressbar.OptionSetDescription("📷 Loading gallery"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		vec, faces, err := extract(ctx, ex, s.Path)
		bar.Add(1)
		if err != nil {
			var xerr *ExtractionError
			if errors.As(err, &xerr) {
				report.Skipped = append(report.Skipped, Skip{File: filepath.Base(s.Path), Err: xerr.Err})
				continue
			}
			return nil, nil, err
		}

		if err := g.Add(s.Identity, vec); err != nil {
			report.Skipped = append(report.Skipped, Skip{File: filepath.Base(s.Path), Err: err})
			continue
		}
		if faces > 1 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s: %d faces found, using the first", filepath.Base(s.Path), faces))
		}
		report.Loaded = append(report.Loaded, s)
	}
	bar.Finish()

	return g, report, nil
}

// extract decodes one sample and returns the embedding of its first face
// along with the number of faces detected.
// Per-sample problems come back as *ExtractionError.
func extract(ctx context.Context, ex Extractor, path string) ([]float64, int, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, 0, &ExtractionError{File: filepath.Base(path), Err: err}
	}

	boxes, err := ex.Detect(ctx, img)
	if err != nil {
		return nil, 0, fmt.Errorf("detecting faces in %s: %w", path, err)
	}
	if len(boxes) == 0 {
		return nil, 0, &ExtractionError{File: filepath.Base(path), Err: ErrNoFace}
	}

	vec, err := ex.Embed(ctx, img, boxes[0])
	if err != nil {
		return nil, 0, fmt.Errorf("embedding face in %s: %w", path, err)
	}
	if len(vec) == 0 {
		return nil, 0, &ExtractionError{File: filepath.Base(path), Err: ErrNoFace}
	}
	return vec, len(boxes), nil
}

// DecodeFile reads any of the supported sample formats.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}
