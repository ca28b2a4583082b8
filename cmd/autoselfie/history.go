package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/autoselfie/internal/store"
)

var (
	historyLimit   int
	historyAttempt string
	historyDelete  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent captures from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireStore(); err != nil {
			return err
		}
		ctx := cmd.Context()
		captures := st.Captures()

		if historyDelete != "" {
			if err := captures.DeleteAttempt(ctx, historyDelete); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("attempt %s not found", historyDelete)
				}
				return fmt.Errorf("failed to delete attempt: %w", err)
			}
			fmt.Printf("Deleted attempt %s\n", historyDelete)
			return nil
		}

		var list []*store.Capture
		var err error
		if historyAttempt != "" {
			attempt, err := captures.GetAttempt(ctx, historyAttempt)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("attempt %s not found", historyAttempt)
				}
				return fmt.Errorf("failed to get attempt: %w", err)
			}
			fmt.Printf("Attempt %s: %d captures, started %s\n\n",
				attempt.ID, attempt.Captures, attempt.StartedAt.Local().Format("2006-01-02 15:04:05"))
			list, err = captures.ListByAttempt(ctx, historyAttempt)
			if err != nil {
				return fmt.Errorf("failed to list captures: %w", err)
			}
		} else {
			list, err = captures.Recent(ctx, historyLimit)
			if err != nil {
				return fmt.Errorf("failed to list captures: %w", err)
			}
		}

		if len(list) == 0 {
			fmt.Println("No captures recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tATTEMPT\tMODE\tSIZE\tCAPTURED")
		fmt.Fprintln(w, "--\t-------\t----\t----\t--------")
		for _, c := range list {
			fmt.Fprintf(w, "%d\t%s\t%s\t%dx%d\t%s\n", c.ID, c.AttemptID, c.Mode, c.Width, c.Height, c.CapturedAt.Local().Format("2006-01-02 15:04:05"))
		}
		w.Flush()
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of captures to show")
	historyCmd.Flags().StringVar(&historyAttempt, "attempt", "", "Show the captures of one attempt")
	historyCmd.Flags().StringVar(&historyDelete, "delete", "", "Delete an attempt and its captures")
	historyCmd.MarkFlagsMutuallyExclusive("attempt", "delete")
	rootCmd.AddCommand(historyCmd)
}
