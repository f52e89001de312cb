package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/andresmejia3/attendant/internal/gallery"
	"github.com/andresmejia3/attendant/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all enrolled identities in the gallery",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := runList(os.Stdout, Cfg.Gallery.Dir); err != nil {
			utils.ShowError("Failed to list identities", err, nil)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// runList reports the identities found from sample file names alone, without
// running face extraction.
func runList(out io.Writer, dir string) error {
	samples, skipped, err := gallery.ScanDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(out, "No '%s' folder found. Enroll someone first.\n", dir)
			return nil
		}
		return err
	}

	if len(samples) == 0 {
		fmt.Fprintln(out, "No identities found in gallery.")
	} else {
		type row struct {
			count int
			files []string
		}
		rows := make(map[string]*row)
		var names []string
		for _, s := range samples {
			r, ok := rows[s.Identity]
			if !ok {
				r = &row{}
				rows[s.Identity] = r
				names = append(names, s.Identity)
			}
			r.count++
			r.files = append(r.files, filepath.Base(s.Path))
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tSAMPLES\tFIRST FILE")
		fmt.Fprintln(w, "----\t-------\t----------")
		for _, n := range names {
			fmt.Fprintf(w, "%s\t%d\t%s\n", n, rows[n].count, rows[n].files[0])
		}
		w.Flush()
		fmt.Fprintf(out, "\n%d people, %d samples\n", len(names), len(samples))
	}

	for _, s := range skipped {
		fmt.Fprintf(out, "⚠️  Ignored %s: %v\n", s.File, s.Err)
	}
	return nil
}
