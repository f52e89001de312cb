package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/attendant/internal/ledger"
	"github.com/spf13/cobra"
)

var menuCmd = &cobra.Command{
	Use:         "menu",
	Short:       "Interactive menu: enroll, recognize, view attendance",
	Annotations: map[string]string{needsLedger: "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runMenu(cmd, inputLines())
	},
}

func init() {
	rootCmd.AddCommand(menuCmd)
}

type menuAction int

const (
	actionNone menuAction = iota
	actionEnroll
	actionRecognize
	actionToday
	actionReport
	actionExit
)

func parseMenuChoice(s string) menuAction {
	switch s {
	case "1":
		return actionEnroll
	case "2":
		return actionRecognize
	case "3":
		return actionToday
	case "4":
		return actionReport
	case "5", "q":
		return actionExit
	default:
		return actionNone
	}
}

func printMenu() {
	fmt.Println("\n==================================================")
	fmt.Println("  FACE RECOGNITION ATTENDANCE SYSTEM")
	fmt.Println("==================================================")
	fmt.Println("  1. Enroll a new person")
	fmt.Println("  2. Start recognition")
	fmt.Println("  3. View today's attendance")
	fmt.Println("  4. View all attendance")
	fmt.Println("  5. Exit")
	fmt.Println("==================================================")
}

// runMenu keeps offering the menu until Exit, closed input or Ctrl+C. A failed
// action is reported and the menu comes back.
func runMenu(cmd *cobra.Command, lines <-chan string) error {
	ctx := cmd.Context()
	for {
		printMenu()
		choice, ok := prompt(ctx, lines, "Enter your choice (1-5): ")
		if !ok {
			return nil
		}

		switch parseMenuChoice(choice) {
		case actionEnroll:
			name, ok := prompt(ctx, lines, "Enter the person's name: ")
			if !ok {
				return nil
			}
			opts := EnrollOptions{Samples: 5, Interval: time.Second}
			runEnroll(ctx, name, opts)

		case actionRecognize:
			var opts RecognizeOptions
			if err := applyRecognizeFlags(cmd, &opts); err != nil {
				return err
			}
			runRecognize(ctx, opts)

		case actionToday:
			if err := printDay(ctx, os.Stdout, Ledger, time.Now().Format(ledger.DateLayout)); err != nil {
				fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
			}

		case actionReport:
			if err := printReport(ctx, os.Stdout, Ledger); err != nil {
				fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
			}

		case actionExit:
			fmt.Println("👋 Goodbye!")
			return nil

		default:
			fmt.Println("Invalid choice. Please try again.")
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}
