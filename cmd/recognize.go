package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/attendant/internal/cooldown"
	"github.com/andresmejia3/attendant/internal/ledger"
	"github.com/andresmejia3/attendant/internal/overlay"
	"github.com/andresmejia3/attendant/internal/recognize"
	"github.com/andresmejia3/attendant/internal/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// RecognizeOptions holds the recognize flags. Unset flags fall back to the config.
type RecognizeOptions struct {
	Source         sourceFlags
	Threshold      float64
	Cooldown       time.Duration
	Scale          float64
	ProcessEvery   int
	CaptureRetries int
	Preview        string
	Snapshots      string
	AllowEmpty     bool
}

var recognizeOpts RecognizeOptions

var recognizeCmd = &cobra.Command{
	Use:         "recognize",
	Aliases:     []string{"run"},
	Short:       "Recognize faces on the camera feed and mark attendance",
	Long:        "Recognize faces on the camera feed and mark each known person present once per day.\nType q and Enter (or press Ctrl+C) to stop.",
	Annotations: map[string]string{needsLedger: "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := applyRecognizeFlags(cmd, &recognizeOpts); err != nil {
			return err
		}
		return runRecognize(cmd.Context(), recognizeOpts)
	},
}

func init() {
	f := recognizeCmd.Flags()
	recognizeOpts.Source.register(recognizeCmd)
	f.Float64VarP(&recognizeOpts.Threshold, "threshold", "t", 0.6, "Face matching threshold (lower is stricter)")
	f.DurationVar(&recognizeOpts.Cooldown, "cooldown", 10*time.Second, "Minimum time between two attendance attempts for one person")
	f.Float64Var(&recognizeOpts.Scale, "scale", 0.25, "Downscale frames by this factor before detection (1 disables)")
	f.IntVarP(&recognizeOpts.ProcessEvery, "process-every", "n", 2, "Run detection on every Nth frame")
	f.IntVar(&recognizeOpts.CaptureRetries, "capture-retries", 0, "Consecutive failed frame reads tolerated before stopping")
	f.StringVar(&recognizeOpts.Preview, "preview", "", "Annotated preview JPEG, replaced every frame (default: preview.jpg)")
	f.StringVar(&recognizeOpts.Snapshots, "snapshots", "", "Save an annotated frame for every new attendance record in this directory")
	f.BoolVar(&recognizeOpts.AllowEmpty, "allow-empty", false, "Start even when no known faces were loaded")
	rootCmd.AddCommand(recognizeCmd)
}

// applyRecognizeFlags merges explicit flags into the config and copies the
// effective values back into opts.
func applyRecognizeFlags(cmd *cobra.Command, opts *RecognizeOptions) error {
	opts.Source.apply(cmd)
	f := cmd.Flags()
	r := &Cfg.Recognition
	if f.Changed("threshold") {
		r.Threshold = opts.Threshold
	}
	if f.Changed("cooldown") {
		r.Cooldown = opts.Cooldown
	}
	if f.Changed("scale") {
		r.Scale = opts.Scale
	}
	if f.Changed("process-every") {
		r.ProcessEvery = opts.ProcessEvery
	}
	if f.Changed("capture-retries") {
		r.CaptureRetries = opts.CaptureRetries
	}
	if f.Changed("preview") {
		r.PreviewPath = opts.Preview
	}
	if f.Changed("snapshots") {
		r.SnapshotDir = opts.Snapshots
	}
	if err := Cfg.Validate(); err != nil {
		return err
	}

	opts.Threshold = r.Threshold
	opts.Cooldown = r.Cooldown
	opts.Scale = r.Scale
	opts.ProcessEvery = r.ProcessEvery
	opts.CaptureRetries = r.CaptureRetries
	opts.Preview = r.PreviewPath
	opts.Snapshots = r.SnapshotDir
	return nil
}

// runRecognize orchestrates one recognition session: worker startup, gallery
// load, frame source, the loop itself and the closing summary.
func runRecognize(ctx context.Context, opts RecognizeOptions) error {
	session := uuid.New().String()

	// 1. Engine & Gallery
	w, err := startEngine(ctx)
	if err != nil {
		utils.ShowError("Failed to start AI worker", err, nil)
		return err
	}
	defer w.Close()

	g, err := loadGallery(ctx, w)
	if err != nil {
		utils.ShowError("Failed to load known faces", err, w.Cmd)
		return err
	}
	if g.Len() == 0 && !opts.AllowEmpty {
		err := errors.New("no known faces loaded, enroll someone first or pass --allow-empty")
		utils.ShowError("Nothing to recognize", err, nil)
		return err
	}

	// 2. Frames in, annotated frames out
	src, err := openSource(ctx, opts.Source)
	if err != nil {
		utils.ShowError("Failed to open frame source", err, nil)
		return err
	}

	snapshots := opts.Snapshots
	if snapshots != "" {
		snapshots = filepath.Join(snapshots, session[:8])
	}
	sink, err := overlay.NewPreviewSink(opts.Preview, snapshots)
	if err != nil {
		src.Close()
		utils.ShowError("Failed to prepare preview", err, nil)
		return err
	}

	loop, err := recognize.New(recognize.Config{
		Gallery:  g,
		Ledger:   Ledger,
		Tracker:  cooldown.New(opts.Cooldown),
		Detector: w,
		Embedder: w,
		Source:   src,
		Sink:     sink,
		Out:      os.Stdout,
		Options: recognize.Options{
			Threshold:      opts.Threshold,
			Scale:          opts.Scale,
			ProcessEvery:   opts.ProcessEvery,
			CaptureRetries: opts.CaptureRetries,
		},
	})
	if err != nil {
		src.Close()
		return err
	}

	// 3. Run until q, Ctrl+C, or the source gives out
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watchQuit(ctx, inputLines(), cancel)

	fmt.Fprintf(os.Stderr, "👁️  Session %s started (threshold %.2f, cooldown %s). Type q + Enter to stop.\n",
		session[:8], opts.Threshold, opts.Cooldown)
	if opts.Preview != "" {
		fmt.Fprintf(os.Stderr, "🖼️  Live preview: %s\n", opts.Preview)
	}

	start := time.Now()
	stats, runErr := loop.Run(ctx)
	printSessionSummary(ctx, stats, time.Since(start))

	if runErr != nil {
		var cerr *recognize.CaptureError
		if errors.As(runErr, &cerr) {
			utils.ShowError("Capture device failed", runErr, src.cmd)
		} else {
			utils.ShowError("Recognition stopped", runErr, w.Cmd)
		}
		return runErr
	}
	return nil
}

func printSessionSummary(ctx context.Context, stats recognize.Stats, elapsed time.Duration) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "📊 SESSION SUMMARY (%s)\n", utils.FmtDuration(elapsed))
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🎞️  Frames read:        %d (%d analyzed)\n", stats.Frames, stats.Processed)
	fmt.Fprintf(os.Stderr, "👁️  Faces seen:         %d (%d unknown)\n", stats.Faces, stats.Unknown)
	fmt.Fprintf(os.Stderr, "✅ New records:        %d\n", stats.Recorded)
	fmt.Fprintf(os.Stderr, "ℹ️  Already present:    %d\n", stats.AlreadyPresent)
	if stats.StorageFailures > 0 {
		fmt.Fprintf(os.Stderr, "⚠️  Failed writes:      %d\n", stats.StorageFailures)
	}
	if stats.FrameErrors > 0 {
		fmt.Fprintf(os.Stderr, "⚠️  Skipped frames:     %d\n", stats.FrameErrors)
	}
	// The session context may be cancelled already
	if n, err := Ledger.Count(context.WithoutCancel(ctx), time.Now().Format(ledger.DateLayout)); err == nil {
		fmt.Fprintf(os.Stderr, "👥 Present today:      %d\n", n)
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}
