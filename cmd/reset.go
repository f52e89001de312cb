package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/attendant/internal/store"
	"github.com/andresmejia3/attendant/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetRecords   bool
	resetSnapshots string
	resetPreview   bool
	resetYes       bool
)

var resetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Reset system state (attendance records, preview, snapshots)",
	Long:        "Clears recorded data. By default it clears the attendance records and the preview. Enrolled faces are never touched.",
	Annotations: map[string]string{needsLedger: "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing records and preview
		if !resetRecords && !resetPreview && resetSnapshots == "" {
			resetRecords = true
			resetPreview = true
		}

		ctx := cmd.Context()
		lines := inputLines()

		if resetRecords && confirm(ctx, lines, "⚠️  Are you sure you want to DELETE all attendance records?") {
			r, ok := Ledger.Store().(store.Resetter)
			if !ok {
				err := fmt.Errorf("%s store cannot be reset", Cfg.Store.Backend)
				utils.ShowError("Failed to reset attendance", err, nil)
				return err
			}
			fmt.Println("🗑️  Clearing attendance records...")
			if err := r.Reset(ctx); err != nil {
				utils.ShowError("Failed to reset attendance", err, nil)
				return err
			}
		}

		if resetPreview && Cfg.Recognition.PreviewPath != "" {
			if confirm(ctx, lines, "⚠️  Are you sure you want to delete the preview image?") {
				fmt.Println("🗑️  Clearing preview...")
				removePath(Cfg.Recognition.PreviewPath)
			}
		}

		if resetSnapshots != "" {
			if confirm(ctx, lines, fmt.Sprintf("⚠️  Are you sure you want to delete all snapshots in %s?", resetSnapshots)) {
				fmt.Println("🗑️  Clearing snapshots...")
				removePath(resetSnapshots)
			}
		}

		fmt.Println("✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetRecords, "records", false, "Clear the attendance store")
	resetCmd.Flags().BoolVar(&resetPreview, "preview", false, "Delete the preview image")
	resetCmd.Flags().StringVar(&resetSnapshots, "snapshots", "", "Delete this snapshot directory")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(ctx context.Context, lines <-chan string, question string) bool {
	if resetYes {
		return true
	}
	res, ok := prompt(ctx, lines, question+" [y/N]: ")
	res = strings.ToLower(res)
	return ok && (res == "y" || res == "yes")
}

func removePath(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
