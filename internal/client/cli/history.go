package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/audit"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/spf13/cobra"
)

func NewHistoryCommand(o *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the audit trail of an entry, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				entries, err := a.history.History(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "history", err)
				}
				if entries == nil {
					entries = []models.AuditEntry{}
				}
				return p.print(entries, func(w io.Writer) error {
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "TIME\tACTION\tFIELDS\tREASON")
					for _, e := range entries {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.Timestamp.Local().Format(time.DateTime),
							e.Action, len(e.ChangedFields), orEmpty(e.ComplianceReason))
					}
					return tw.Flush()
				})
			})
		},
	}
}

func NewRevisionsCommand(o *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revisions <id>",
		Short: "List the stored snapshots of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				revs, err := a.history.Revisions(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "revisions", err)
				}
				if revs == nil {
					revs = []models.RevisionEntry{}
				}
				return p.print(revs, func(w io.Writer) error {
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "VERSION\tCREATED\tDATE\tROUTE")
					for _, r := range revs {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s-%s\n", r.Version, r.CreatedAt.Local().Format(time.DateTime),
							r.Data.Date, r.Data.Departure, r.Data.Destination)
					}
					return tw.Flush()
				})
			})
		},
	}
}

func NewRestoreCommand(o *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore <id> <version>",
		Short: "Overwrite an entry with one of its revisions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || version < 1 {
				return WrapExitError(ExitCommandError, "bad version", fmt.Errorf("version must be a positive integer, got %q", args[1]))
			}
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(),
					fmt.Sprintf("Restore %s to version %d?", args[0], version))
				if err != nil {
					return WrapExitError(ExitCommandError, "restore", err)
				}
				if !ok {
					return &ExitError{Code: ExitFailure, Message: "restore cancelled"}
				}
			}
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				res, err := a.history.Restore(ctx, args[0], version)
				if err != nil {
					return WrapExitError(ExitFailure, "restore", err)
				}
				return p.print(res, func(w io.Writer) error { return restoreText(w, res, version) })
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func restoreText(w io.Writer, res audit.RestoreResult, version int64) error {
	fmt.Fprintf(w, "restored %s to version %d (now version %d)\n", res.Record.ID, version, res.Record.Version)
	if len(res.Diff) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tBEFORE\tAFTER")
	for _, d := range res.Diff {
		fmt.Fprintf(tw, "%s\t%v\t%v\n", d.Field, d.OldValue, d.NewValue)
	}
	return tw.Flush()
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
