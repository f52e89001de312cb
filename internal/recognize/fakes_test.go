package recognize

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"time"

	"github.com/andresmejia3/attendant/internal/types"
)

type face struct {
	box image.Rectangle
	vec []float64
}

// step is one Next call of a scriptedSource.
type step struct {
	at    time.Time
	faces []face
	err   error
}

// scriptedSource replays steps and drives the shared clock, so every frame
// is processed at its scripted time. Frames carry their faces by identity.
type scriptedSource struct {
	steps  []step
	i      int
	clock  *time.Time
	faces  map[image.Image][]face
	closed bool
	onNext func(i int)
}

func newScriptedSource(clock *time.Time, steps ...step) *scriptedSource {
	return &scriptedSource{steps: steps, clock: clock, faces: make(map[image.Image][]face)}
}

func (s *scriptedSource) Next(ctx context.Context) (image.Image, error) {
	if s.onNext != nil {
		s.onNext(s.i)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.i >= len(s.steps) {
		return nil, io.EOF
	}
	st := s.steps[s.i]
	s.i++
	if st.err != nil {
		return nil, st.err
	}
	*s.clock = st.at
	frame := image.NewRGBA(image.Rect(0, 0, 64, 64))
	s.faces[frame] = st.faces
	return frame, nil
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

// scriptedFaces implements Detector and Embedder over the source's frames.
type scriptedFaces struct {
	src      *scriptedSource
	detects  int
	failErr  error
	failFor  int    // when > 0, only the first failFor detections fail
	onDetect func() // runs before every detection
}

func (f *scriptedFaces) Detect(_ context.Context, frame image.Image) ([]image.Rectangle, error) {
	f.detects++
	if f.onDetect != nil {
		f.onDetect()
	}
	if f.failErr != nil && (f.failFor == 0 || f.detects <= f.failFor) {
		return nil, f.failErr
	}
	var boxes []image.Rectangle
	for _, fc := range f.src.faces[frame] {
		boxes = append(boxes, fc.box)
	}
	return boxes, nil
}

func (f *scriptedFaces) Embed(_ context.Context, frame image.Image, box image.Rectangle) ([]float64, error) {
	for _, fc := range f.src.faces[frame] {
		if fc.box == box {
			return fc.vec, nil
		}
	}
	return nil, errors.New("no such face")
}

// memStore is an in-memory ledger.Store with a failure switch.
type memStore struct {
	mu        sync.Mutex
	rows      map[string][]types.Record
	failWrite int  // number of upcoming appends to fail
	honorCtx  bool // fail calls on a done context, like a database driver
}

var errStorage = errors.New("disk unavailable")

func newMemStore() *memStore { return &memStore{rows: make(map[string][]types.Record)} }

func (m *memStore) Records(ctx context.Context, date string) ([]types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.honorCtx && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return append([]types.Record{}, m.rows[date]...), nil
}

func (m *memStore) Append(ctx context.Context, rec types.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.honorCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	if m.failWrite > 0 {
		m.failWrite--
		return errStorage
	}
	m.rows[rec.Date] = append(m.rows[rec.Date], rec)
	return nil
}

func (m *memStore) Dates(context.Context) ([]string, error) { return nil, nil }
func (m *memStore) Close() error                            { return nil }

// frameError is a detector failure limited to one frame.
type frameError struct{ msg string }

func (e *frameError) Error() string     { return e.msg }
func (e *frameError) Recoverable() bool { return true }

// captureSink keeps every frame it was shown.
type captureSink struct {
	frames []image.Image
	snaps  []string
}

func (c *captureSink) Show(frame image.Image) error {
	c.frames = append(c.frames, frame)
	return nil
}

func (c *captureSink) Snapshot(_ image.Image, identity string, _ time.Time) error {
	c.snaps = append(c.snaps, identity)
	return nil
}
