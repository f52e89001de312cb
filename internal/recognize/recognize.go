// Package recognize runs the recognition-to-attendance loop: it reads frames,
// finds and identifies faces, records attendance for accepted identities and
// renders the result for a reviewer.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/andresmejia3/attendant/internal/cooldown"
	"github.com/andresmejia3/attendant/internal/gallery"
	"github.com/andresmejia3/attendant/internal/ledger"
	"github.com/andresmejia3/attendant/internal/logger"
	"github.com/andresmejia3/attendant/internal/match"
	"github.com/andresmejia3/attendant/internal/overlay"
)

// Detector finds face boxes in a frame. The order of the boxes is stable for
// identical input.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]image.Rectangle, error)
}

// Embedder turns one face of a frame into an embedding.
//
// Errors from a Detector or Embedder end the loop unless they implement
// Recoverable() bool and report true, in which case only the current frame
// is skipped.
type Embedder interface {
	Embed(ctx context.Context, frame image.Image, box image.Rectangle) ([]float64, error)
}

// FrameSource yields frames until it fails. io.EOF marks a finite source
// that ran out, which ends the loop normally.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// FrameSink receives every annotated frame.
type FrameSink interface {
	Show(frame image.Image) error
}

// Snapshotter is an optional FrameSink extension called with the annotated
// frame on which an identity was newly recorded.
type Snapshotter interface {
	Snapshot(frame image.Image, identity string, at time.Time) error
}

// CaptureError ends the loop when frames can no longer be read.
type CaptureError struct {
	Frame int // frames successfully read before the failure
	Err   error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed after %d frames: %v", e.Frame, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// State is where the loop is in its per-frame cycle.
type State int

const (
	Idle State = iota
	Capturing
	Detecting
	Matching
	Recording
	Rendering
	Stopped
)

var stateNames = [...]string{"idle", "capturing", "detecting", "matching", "recording", "rendering", "stopped"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Options tune recognition. Zero values take the defaults.
type Options struct {
	Threshold      float64 // default 0.6
	Scale          float64 // detection downsample factor in (0, 1], default 1
	ProcessEvery   int     // run detection on every Nth frame, default 1
	CaptureRetries int     // consecutive failed reads tolerated before giving up
}

// Config wires the loop to its collaborators. Gallery, Ledger, Detector,
// Embedder and Source are required.
type Config struct {
	Gallery  *gallery.Gallery
	Ledger   *ledger.Ledger
	Tracker  *cooldown.Tracker // defaults to cooldown.DefaultWindow
	Detector Detector
	Embedder Embedder
	Source   FrameSource
	Sink     FrameSink // optional

	Now func() time.Time // defaults to time.Now
	Out io.Writer        // confirmations for the operator, defaults to io.Discard

	Options
}

// Stats summarizes one run.
type Stats struct {
	Frames          int // frames read
	Processed       int // frames that went through detection
	Faces           int
	Unknown         int
	Recorded        int
	AlreadyPresent  int
	StorageFailures int
	FrameErrors     int // frames whose faces could not be extracted
}

// Loop is a single recognition session. It is not reusable after Run returns.
type Loop struct {
	cfg    Config
	state  State
	stats  Stats
	labels []overlay.Label
	fresh  []string // identities newly recorded on the current frame
	count  int      // last known present count
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Loop, error) {
	switch {
	case cfg.Ledger == nil:
		return nil, errors.New("recognize: ledger is required")
	case cfg.Detector == nil || cfg.Embedder == nil:
		return nil, errors.New("recognize: detector and embedder are required")
	case cfg.Source == nil:
		return nil, errors.New("recognize: frame source is required")
	}
	if cfg.Gallery == nil {
		cfg.Gallery = gallery.New()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = cooldown.New(cooldown.DefaultWindow)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.6
	}
	if cfg.Scale <= 0 || cfg.Scale > 1 {
		cfg.Scale = 1
	}
	if cfg.ProcessEvery < 1 {
		cfg.ProcessEvery = 1
	}
	if cfg.CaptureRetries < 0 {
		cfg.CaptureRetries = 0
	}
	return &Loop{cfg: cfg, state: Idle}, nil
}

// State returns the current state.
func (l *Loop) State() State { return l.state }

// Run processes frames until ctx is cancelled, a finite source is exhausted,
// capture fails, or face extraction fails for good. Cancellation is checked
// once per frame and is not an error: a frame already read is processed,
// recorded and rendered before Run returns. The source is closed before Run
// returns.
func (l *Loop) Run(ctx context.Context) (Stats, error) {
	defer func() {
		l.cfg.Source.Close()
		l.state = Stopped
	}()

	failures := 0
	for {
		if ctx.Err() != nil {
			logger.Debug("recognition cancelled after %d frames", l.stats.Frames)
			return l.stats, nil
		}

		l.state = Capturing
		frame, err := l.cfg.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("frame source exhausted after %d frames", l.stats.Frames)
				return l.stats, nil
			}
			if ctx.Err() != nil {
				return l.stats, nil
			}
			failures++
			if failures > l.cfg.CaptureRetries {
				return l.stats, &CaptureError{Frame: l.stats.Frames, Err: err}
			}
			logger.Warn("frame read failed (%d/%d): %v", failures, l.cfg.CaptureRetries, err)
			continue
		}
		failures = 0
		l.stats.Frames++
		now := l.cfg.Now()

		// Work on a frame that was read is never cut short by cancellation.
		frameCtx := context.WithoutCancel(ctx)

		if (l.stats.Frames-1)%l.cfg.ProcessEvery == 0 {
			if err := l.process(frameCtx, frame, now); err != nil {
				if !isRecoverable(err) {
					return l.stats, err
				}
				l.stats.FrameErrors++
				logger.Warn("skipping frame %d: %v", l.stats.Frames, err)
			}
		}

		l.render(frameCtx, frame, now)
	}
}

// isRecoverable reports whether a detector or embedder error only concerns
// the frame that caused it, so the next frame can be tried.
func isRecoverable(err error) bool {
	var r interface{ Recoverable() bool }
	return errors.As(err, &r) && r.Recoverable()
}

// process detects, embeds and matches every face of frame and records the
// accepted identities. Labels are kept for the frames skipped after it.
func (l *Loop) process(ctx context.Context, frame image.Image, now time.Time) error {
	l.stats.Processed++
	l.fresh = l.fresh[:0]

	l.state = Detecting
	small, sx, sy := downscale(frame, l.cfg.Scale)
	boxes, err := l.cfg.Detector.Detect(ctx, small)
	if err != nil {
		return fmt.Errorf("detecting faces: %w", err)
	}

	labels := make([]overlay.Label, 0, len(boxes))
	for _, box := range boxes {
		vec, err := l.cfg.Embedder.Embed(ctx, small, box)
		if err != nil {
			return fmt.Errorf("embedding face: %w", err)
		}
		l.stats.Faces++

		l.state = Matching
		res := match.Match(vec, l.cfg.Gallery, l.cfg.Threshold)
		logger.Debug("face at %v: %s (distance %.3f)", box, res.Identity, res.Distance)
		labels = append(labels, overlay.Label{
			Box:   upscaleRect(box, sx, sy, frame.Bounds()),
			Name:  res.Identity,
			Known: res.Known(),
		})
		if !res.Known() {
			l.stats.Unknown++
			continue
		}

		l.state = Recording
		if out, ok, _ := l.attemptRecord(ctx, res.Identity, now); ok && out == ledger.Recorded {
			l.fresh = append(l.fresh, res.Identity)
		}
	}
	l.labels = labels
	return nil
}

// attemptRecord marks identity present if its cooldown allows it. The
// cooldown is committed only after the ledger confirmed the mark, so a
// storage failure leaves the identity cold and the next sighting retries.
// ok is false when the cooldown suppressed the attempt or the mark failed.
func (l *Loop) attemptRecord(ctx context.Context, identity string, now time.Time) (ledger.Outcome, bool, error) {
	if !l.cfg.Tracker.Ready(identity, now) {
		return 0, false, nil
	}

	out, err := l.cfg.Ledger.Mark(ctx, identity, now)
	if err != nil {
		l.stats.StorageFailures++
		logger.Warn("attendance for %s not saved: %v", identity, err)
		fmt.Fprintf(l.cfg.Out, "⚠️  Could not save attendance for %s, will retry: %v\n", identity, err)
		return 0, false, err
	}
	l.cfg.Tracker.Commit(identity, now)

	switch out {
	case ledger.Recorded:
		l.stats.Recorded++
		fmt.Fprintf(l.cfg.Out, "✅ Attendance marked for %s at %s\n", identity, now.Format(ledger.TimeLayout))
	case ledger.AlreadyPresent:
		l.stats.AlreadyPresent++
		fmt.Fprintf(l.cfg.Out, "ℹ️  %s already marked present today\n", identity)
	}
	return out, true, nil
}

// render draws the current labels and hands the frame to the sink.
// Sink failures are logged and never stop recognition.
func (l *Loop) render(ctx context.Context, frame image.Image, now time.Time) {
	if l.cfg.Sink == nil {
		return
	}
	l.state = Rendering

	if n, err := l.cfg.Ledger.Count(ctx, now.Format(ledger.DateLayout)); err == nil {
		l.count = n
	} else {
		logger.Warn("counting today's attendance: %v", err)
	}

	annotated := overlay.Annotate(frame, l.labels, l.count)
	if err := l.cfg.Sink.Show(annotated); err != nil {
		logger.Warn("preview update failed: %v", err)
	}

	if snap, ok := l.cfg.Sink.(Snapshotter); ok {
		for _, id := range l.fresh {
			if err := snap.Snapshot(annotated, id, now); err != nil {
				logger.Warn("snapshot for %s failed: %v", id, err)
			}
		}
	}
	l.fresh = l.fresh[:0]
}
