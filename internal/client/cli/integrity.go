package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dmitrijs2005/logsync/internal/client/integrity"
	"github.com/spf13/cobra"
)

func NewVerifyCommand(o *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <id>",
		Short: "Recompute the content hash of an entry on the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				res, err := a.verifier.Verify(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "verify", err)
				}
				if err := p.print(res, func(w io.Writer) error { return resultText(w, res) }); err != nil {
					return err
				}
				if !res.IsValid {
					return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("entry %s failed verification", args[0])}
				}
				return nil
			})
		},
	}
}

func resultText(w io.Writer, r integrity.Result) error {
	verdict := "valid"
	if !r.IsValid {
		verdict = "INVALID"
	}
	fmt.Fprintf(w, "%s: %s\n", r.EntryID, verdict)
	if r.CanonicalID != "" && r.CanonicalID != r.EntryID {
		fmt.Fprintf(w, "  canonical id: %s\n", r.CanonicalID)
	}
	fmt.Fprintf(w, "  stored hash:   %s\n", orDash(r.CurrentHash))
	fmt.Fprintf(w, "  computed hash: %s\n", orDash(r.ComputedHash))
	if r.LocalStale {
		fmt.Fprintf(w, "  local copy is stale (hash %s)\n", orDash(r.LocalHash))
	}
	if r.LowConfidence {
		fmt.Fprintln(w, "  matched by business key among several candidates")
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", r.Error)
	}
	return nil
}

func NewVerifyAllCommand(o *RootOptions) *cobra.Command {
	var details bool
	cmd := &cobra.Command{
		Use:   "verify-all",
		Short: "Verify every local entry and store the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				sum, err := a.verifier.VerifyAll(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "verify all", err)
				}
				if !details {
					sum.Results = nil
				}
				if err := p.print(sum, func(w io.Writer) error { return summaryText(w, sum) }); err != nil {
					return err
				}
				if sum.Invalid > 0 || sum.Failed > 0 {
					return &ExitError{Code: ExitFailure,
						Message: fmt.Sprintf("%d invalid, %d failed", sum.Invalid, sum.Failed)}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&details, "details", false, "include the per-entry results")
	return cmd
}

func summaryText(w io.Writer, s integrity.Summary) error {
	fmt.Fprintf(w, "%d entries: %d valid, %d invalid, %d failed (%.1f%% valid)\n",
		s.Total, s.Valid, s.Invalid, s.Failed, s.ValidPercent)
	if len(s.Results) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tVALID\tSTORED\tCOMPUTED")
	for _, r := range s.Results {
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", r.EntryID, r.IsValid, short(r.CurrentHash), short(r.ComputedHash))
	}
	return tw.Flush()
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func short(s *string) string {
	if s == nil {
		return "-"
	}
	if len(*s) > 12 {
		return (*s)[:12]
	}
	return *s
}
