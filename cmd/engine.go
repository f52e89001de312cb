package cmd

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/andresmejia3/attendant/internal/capture"
	"github.com/andresmejia3/attendant/internal/gallery"
	"github.com/andresmejia3/attendant/internal/recognize"
	"github.com/andresmejia3/attendant/internal/utils"
	"github.com/andresmejia3/attendant/internal/worker"
	"github.com/spf13/cobra"
)

// sourceFlags selects where frames come from: a capture device through
// ffmpeg, or a directory of still images.
type sourceFlags struct {
	device string
	format string
	size   string
	fps    int
	frames string
	loop   bool
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.device, "device", "", "Capture device or ffmpeg input (default: /dev/video0)")
	cmd.Flags().StringVar(&s.format, "input-format", "", "ffmpeg input format, e.g. v4l2, avfoundation, dshow (default: v4l2)")
	cmd.Flags().StringVar(&s.size, "video-size", "", "Capture resolution, e.g. 640x480")
	cmd.Flags().IntVar(&s.fps, "fps", 0, "Capture frame rate")
	cmd.Flags().StringVar(&s.frames, "frames", "", "Read frames from a directory of images instead of a device")
	cmd.Flags().BoolVar(&s.loop, "loop", false, "Replay --frames forever")
}

// apply overlays the explicitly set flags on the capture config.
func (s *sourceFlags) apply(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("device") {
		Cfg.Capture.Device = s.device
	}
	if f.Changed("input-format") {
		Cfg.Capture.Format = s.format
	}
	if f.Changed("video-size") {
		Cfg.Capture.Size = s.size
	}
	if f.Changed("fps") {
		Cfg.Capture.FPS = s.fps
	}
}

// frameSource wraps a source with the ffmpeg process behind it, if any, so
// failures can be reported with its logs.
type frameSource struct {
	recognize.FrameSource
	cmd *utils.SafeCommand
}

func openSource(ctx context.Context, s sourceFlags) (*frameSource, error) {
	if s.frames != "" {
		src, err := capture.NewDirSource(s.frames, s.loop)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "🎞️  Replaying %d frames from %s\n", src.Len(), s.frames)
		return &frameSource{FrameSource: src}, nil
	}

	dev := utils.CaptureDevice{
		Path:   Cfg.Capture.Device,
		Format: Cfg.Capture.Format,
		Size:   Cfg.Capture.Size,
		FPS:    Cfg.Capture.FPS,
	}
	src, err := capture.OpenDevice(ctx, dev)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "🎥 Capturing from %s\n", dev.Path)
	return &frameSource{FrameSource: src, cmd: src.Command()}, nil
}

// startEngine spawns the Python face worker.
func startEngine(ctx context.Context) (*worker.PythonWorker, error) {
	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	// We use ID 0 for this single worker
	return worker.NewPythonWorker(ctx, 0, worker.Options{
		Python:  Cfg.Worker.Python,
		Script:  Cfg.Worker.Script,
		Timeout: Cfg.Worker.Timeout,
	})
}

// loadGallery builds the gallery with the worker and prints the load report.
func loadGallery(ctx context.Context, w *worker.PythonWorker) (*gallery.Gallery, error) {
	fmt.Fprintf(os.Stderr, "📂 Loading known faces from %s\n", Cfg.Gallery.Dir)
	g, report, err := gallery.Load(ctx, Cfg.Gallery.Dir, w, os.Stderr)
	if err != nil {
		return nil, err
	}
	report.Print(os.Stderr, g)
	return g, nil
}

// largestFace picks the box with the biggest area, the first one on ties.
func largestFace(boxes []image.Rectangle) image.Rectangle {
	best := boxes[0]
	maxArea := best.Dx() * best.Dy()
	for _, b := range boxes[1:] {
		if area := b.Dx() * b.Dy(); area > maxArea {
			maxArea = area
			best = b
		}
	}
	return best
}

var (
	stdinOnce  sync.Once
	stdinLines <-chan string
)

// inputLines is the single reader of stdin. The quit watcher and the
// interactive prompts all take lines from it, so a line is never split
// between two readers.
func inputLines() <-chan string {
	stdinOnce.Do(func() {
		stdinLines = readLines(os.Stdin)
	})
	return stdinLines
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// prompt prints question and waits for one line. ok is false once input is
// closed or ctx is done.
func prompt(ctx context.Context, lines <-chan string, question string) (string, bool) {
	fmt.Print(question)
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-lines:
		return strings.TrimSpace(line), ok
	}
}

// watchQuit cancels when a line reading "q" arrives. It returns when ctx is
// done or input closes; closed input does not cancel.
func watchQuit(ctx context.Context, lines <-chan string, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "q", "quit", "exit":
				cancel()
				return
			}
		}
	}
}
