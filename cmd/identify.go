package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/attendant/internal/gallery"
	"github.com/andresmejia3/attendant/internal/ledger"
	"github.com/andresmejia3/attendant/internal/match"
	"github.com/andresmejia3/attendant/internal/utils"
	"github.com/spf13/cobra"
)

// IdentifyOptions holds the identify flags.
type IdentifyOptions struct {
	Threshold float64
	Mark      bool
}

var identifyOpts IdentifyOptions

var identifyCmd = &cobra.Command{
	Use:         "identify <image_path>",
	Short:       "Identify the person in a still image",
	Long:        "Match the largest face of an image against the known faces. With --mark the person is also marked present.",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{needsLedger: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if cmd.Flags().Changed("threshold") {
			Cfg.Recognition.Threshold = identifyOpts.Threshold
		}
		if err := Cfg.Validate(); err != nil {
			return err
		}
		identifyOpts.Threshold = Cfg.Recognition.Threshold
		return runIdentify(cmd.Context(), args[0], identifyOpts)
	},
}

func init() {
	identifyCmd.Flags().Float64VarP(&identifyOpts.Threshold, "threshold", "t", 0.6, "Face matching threshold (lower is stricter)")
	identifyCmd.Flags().BoolVarP(&identifyOpts.Mark, "mark", "m", false, "Mark the identified person present")
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(ctx context.Context, imagePath string, opts IdentifyOptions) error {
	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		utils.ShowError("Input file does not exist", err, nil)
		return err
	}
	img, err := gallery.DecodeFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

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

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	boxes, err := w.Detect(ctx, img)
	if err != nil {
		utils.ShowError("AI processing failed", err, w.Cmd)
		return err
	}
	if len(boxes) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}

	// Pick largest face if multiple
	if len(boxes) > 1 {
		fmt.Printf("⚠️  Multiple faces detected (%d). Using the largest face.\n", len(boxes))
	}
	box := largestFace(boxes)
	vec, err := w.Embed(ctx, img, box)
	if err != nil {
		utils.ShowError("AI processing failed", err, w.Cmd)
		return err
	}

	res := match.Match(vec, g, opts.Threshold)
	if !res.Known() {
		if g.Len() == 0 {
			fmt.Println("❌ No known faces to compare against.")
		} else {
			fmt.Printf("❌ No match found (closest distance %.3f, threshold %.2f).\n", res.Distance, opts.Threshold)
		}
		return nil
	}
	fmt.Printf("✅ Found Match: %s (distance %.3f)\n", res.Identity, res.Distance)

	if !opts.Mark {
		return nil
	}
	now := time.Now()
	out, err := Ledger.Mark(ctx, res.Identity, now)
	if err != nil {
		utils.ShowError("Failed to save attendance", err, nil)
		return err
	}
	if out == ledger.AlreadyPresent {
		fmt.Printf("ℹ️  %s already marked present today\n", res.Identity)
	} else {
		fmt.Printf("✅ Attendance marked for %s at %s\n", res.Identity, now.Format(ledger.TimeLayout))
	}
	return nil
}
