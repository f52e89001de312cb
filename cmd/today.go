package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/attendant/internal/ledger"
	"github.com/andresmejia3/attendant/internal/utils"
	"github.com/spf13/cobra"
)

var todayDate string

var todayCmd = &cobra.Command{
	Use:         "today",
	Short:       "Show today's attendance",
	Annotations: map[string]string{needsLedger: "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		date := todayDate
		if date == "" {
			date = time.Now().Format(ledger.DateLayout)
		}
		if err := printDay(cmd.Context(), os.Stdout, Ledger, date); err != nil {
			utils.ShowError("Failed to read attendance", err, nil)
			return err
		}
		return nil
	},
}

func init() {
	todayCmd.Flags().StringVarP(&todayDate, "date", "d", "", "Show another day (YYYY-MM-DD)")
	rootCmd.AddCommand(todayCmd)
}

// printDay writes the table of one day followed by its total.
func printDay(ctx context.Context, out io.Writer, l *ledger.Ledger, date string) error {
	recs, err := l.Query(ctx, date)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n📅 Attendance for %s\n", date)
	if len(recs) == 0 {
		fmt.Fprintln(out, "No attendance records for this day.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tDATE\tTIME\tSTATUS")
	fmt.Fprintln(w, "----\t----\t----\t------")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Date, r.Time, r.Status)
	}
	w.Flush()
	fmt.Fprintf(out, "\nTotal Present: %d\n", len(recs))
	return nil
}
