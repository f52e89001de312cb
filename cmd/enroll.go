package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/attendant/internal/gallery"
	"github.com/andresmejia3/attendant/internal/recognize"
	"github.com/andresmejia3/attendant/internal/utils"
	"github.com/google/renameio"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// EnrollOptions holds the enroll flags.
type EnrollOptions struct {
	Source   sourceFlags
	Samples  int
	Interval time.Duration
}

var enrollOpts EnrollOptions

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Capture face samples of a new person into the gallery",
	Long: `Capture face samples of a person from the camera and save them as
<gallery>/<name>_<n>.jpg. Only frames with exactly one face are kept.
Running it again for the same name adds samples after the existing ones.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		enrollOpts.Source.apply(cmd)
		return runEnroll(cmd.Context(), args[0], enrollOpts)
	},
}

func init() {
	enrollOpts.Source.register(enrollCmd)
	enrollCmd.Flags().IntVarP(&enrollOpts.Samples, "samples", "s", 5, "Number of samples to capture")
	enrollCmd.Flags().DurationVarP(&enrollOpts.Interval, "interval", "i", time.Second, "Minimum time between two saved samples")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(ctx context.Context, name string, opts EnrollOptions) error {
	if err := gallery.ValidateName(name); err != nil {
		utils.ShowError("Invalid name", err, nil)
		return err
	}
	if opts.Samples < 1 {
		err := fmt.Errorf("must be >= 1, got %d", opts.Samples)
		utils.ShowError("Invalid sample count", err, nil)
		return err
	}

	if err := os.MkdirAll(Cfg.Gallery.Dir, 0755); err != nil {
		utils.ShowError("Failed to create gallery directory", err, nil)
		return err
	}
	next, err := gallery.NextIndex(Cfg.Gallery.Dir, name)
	if err != nil {
		utils.ShowError("Failed to read gallery directory", err, nil)
		return err
	}

	w, err := startEngine(ctx)
	if err != nil {
		utils.ShowError("Failed to start AI worker", err, nil)
		return err
	}
	defer w.Close()

	src, err := openSource(ctx, opts.Source)
	if err != nil {
		utils.ShowError("Failed to open frame source", err, nil)
		return err
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watchQuit(ctx, inputLines(), cancel)

	fmt.Fprintf(os.Stderr, "📸 Enrolling %s: look at the camera. Type q + Enter to stop early.\n", name)
	e := &enroller{
		dir:      Cfg.Gallery.Dir,
		name:     name,
		next:     next,
		interval: opts.Interval,
		detector: w,
		source:   src,
		out:      os.Stderr,
	}
	saved, err := e.run(ctx, opts.Samples)
	if err != nil {
		utils.ShowError("Enrollment failed", err, w.Cmd)
		return err
	}

	if len(saved) == 0 {
		fmt.Fprintf(os.Stderr, "❌ No samples saved for %s.\n", name)
		return nil
	}
	fmt.Fprintf(os.Stderr, "✅ Saved %d samples for %s in %s\n", len(saved), name, Cfg.Gallery.Dir)
	return nil
}

// enroller captures single-face frames into the gallery directory.
type enroller struct {
	dir      string
	name     string
	next     int
	interval time.Duration
	detector recognize.Detector
	source   recognize.FrameSource
	out      io.Writer
	now      func() time.Time
}

// run saves up to n samples and returns their paths. It stops early, without
// error, on cancellation or when a finite source runs out.
func (e *enroller) run(ctx context.Context, n int) ([]string, error) {
	if e.now == nil {
		e.now = time.Now
	}
	bar := progressbar.NewOptions(n,
		progressbar.OptionSetDescription("📸 Capturing"),
		progressbar.OptionSetWriter(e.out),
		progressbar.OptionShowCount(),
	)

	var saved []string
	var last time.Time
	for len(saved) < n {
		if ctx.Err() != nil {
			break
		}
		frame, err := e.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				break
			}
			return saved, err
		}
		if !last.IsZero() && e.now().Sub(last) < e.interval {
			continue
		}

		boxes, err := e.detector.Detect(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return saved, err
		}
		if len(boxes) != 1 {
			fmt.Fprintf(e.out, "\r⚠️  %d faces in view, need exactly one", len(boxes))
			continue
		}

		path, err := e.save(frame)
		if err != nil {
			return saved, err
		}
		saved = append(saved, path)
		last = e.now()
		bar.Add(1)
	}
	bar.Finish()
	fmt.Fprintln(e.out)
	return saved, nil
}

func (e *enroller) save(frame image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 95}); err != nil {
		return "", fmt.Errorf("encoding sample: %w", err)
	}
	path := filepath.Join(e.dir, gallery.SampleFileName(e.name, e.next))
	if err := renameio.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("saving sample: %w", err)
	}
	e.next++
	return path, nil
}
