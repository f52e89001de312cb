package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/attendant/internal/ledger"
	"github.com/andresmejia3/attendant/internal/utils"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:         "report",
	Aliases:     []string{"all"},
	Short:       "Show attendance for every recorded day",
	Annotations: map[string]string{needsLedger: "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := printReport(cmd.Context(), os.Stdout, Ledger); err != nil {
			utils.ShowError("Failed to build report", err, nil)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func printReport(ctx context.Context, out io.Writer, l *ledger.Ledger) error {
	days, err := l.Summary(ctx)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		fmt.Fprintln(out, "No attendance records found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "DATE\tPRESENT\tNAMES")
	fmt.Fprintln(w, "----\t-------\t-----")
	for _, d := range days {
		fmt.Fprintf(w, "%s\t%d\t%s\n", d.Date, d.Total, strings.Join(d.Present, ", "))
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d days on record\n", len(days))
	return nil
}
