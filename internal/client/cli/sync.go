package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/logsync/internal/client/integrity"
	"github.com/dmitrijs2005/logsync/internal/client/legacy"
	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/dmitrijs2005/logsync/internal/client/syncctx"
	"github.com/dmitrijs2005/logsync/internal/client/syncqueue"
	"github.com/spf13/cobra"
)

type statusView struct {
	syncctx.State
	Degraded     bool               `json:"degraded"`
	LastSyncedAt *time.Time         `json:"last_synced_at,omitempty"`
	Integrity    *integrity.Summary `json:"integrity,omitempty"`
	Legacy       *legacy.Status     `json:"legacy_import,omitempty"`
}

func NewStatusCommand(o *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, queue length and the last sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				a.Probe(ctx)
				pending, err := a.engine.Pending(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "read queue", err)
				}
				a.state.SetQueueLength(len(pending))

				v := statusView{State: a.state.Snapshot(), Degraded: a.store.Degraded()}
				if v.LastSyncedAt, err = a.engine.LastSync(ctx); err != nil {
					return WrapExitError(ExitFailure, "read last sync", err)
				}
				if v.Integrity, err = a.verifier.LastSummary(ctx); err != nil {
					return WrapExitError(ExitFailure, "read integrity summary", err)
				}
				if v.Legacy, err = a.importer.Status(ctx); err != nil {
					return WrapExitError(ExitFailure, "read import status", err)
				}
				return p.print(v, func(w io.Writer) error { return statusText(w, v) })
			})
		},
	}
}

func statusText(w io.Writer, v statusView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	online := "offline"
	if v.IsOnline {
		online = "online"
	}
	fmt.Fprintf(tw, "backend:\t%s\n", online)
	fmt.Fprintf(tw, "queued:\t%d\n", v.QueueLength)
	if v.LastSyncedAt != nil {
		fmt.Fprintf(tw, "last sync:\t%s\n", v.LastSyncedAt.Local().Format(time.DateTime))
	} else {
		fmt.Fprintf(tw, "last sync:\tnever\n")
	}
	if v.LastError != nil {
		fmt.Fprintf(tw, "last error:\t%s\n", *v.LastError)
	}
	if v.Integrity != nil {
		fmt.Fprintf(tw, "integrity:\t%d/%d valid (%.1f%%) at %s\n", v.Integrity.Valid, v.Integrity.Total,
			v.Integrity.ValidPercent, v.Integrity.CheckedAt.Local().Format(time.DateTime))
	}
	if v.Legacy != nil && v.Legacy.Completed {
		fmt.Fprintf(tw, "legacy import:\t%d entries at %s\n", v.Legacy.Imported,
			v.Legacy.MigratedAt.Local().Format(time.DateTime))
	}
	if v.Degraded {
		fmt.Fprintf(tw, "store:\tin memory, changes are lost on exit\n")
	}
	return tw.Flush()
}

type drainView struct {
	syncqueue.DrainReport
	Online bool     `json:"online"`
	Errors []string `json:"errors,omitempty"`
}

func NewSyncCommand(o *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued changes against the backend now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				if !a.Probe(ctx) {
					return WrapExitError(ExitFailure, "sync", fmt.Errorf("backend unreachable"))
				}
				report, err := a.engine.Drain(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "sync", err)
				}
				v := drainView{DrainReport: report, Online: a.state.IsOnline()}
				for _, e := range report.Errors {
					v.Errors = append(v.Errors, e.Error())
				}
				if err := p.print(v, func(w io.Writer) error { return drainText(w, v) }); err != nil {
					return err
				}
				if report.Remaining > 0 && report.Failed > 0 {
					return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d changes still queued", report.Remaining)}
				}
				return nil
			})
		},
	}
}

func drainText(w io.Writer, v drainView) error {
	if !v.Ran {
		_, err := fmt.Fprintln(w, "sync skipped: offline or already running")
		return err
	}
	fmt.Fprintf(w, "synced %d of %d, %d failed, %d deferred, %d queued\n",
		v.Succeeded, v.Attempted, v.Failed, v.Deferred, v.Remaining)
	if v.Stuck > 0 {
		fmt.Fprintf(w, "%d changes reached the retry limit; run 'logsync retry'\n", v.Stuck)
	}
	for _, e := range v.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	return nil
}

func NewRetryCommand(o *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Reset the retry count of changes that gave up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				n, err := a.engine.RetryFailed(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "retry", err)
				}
				return p.print(map[string]int{"reset": n}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "reset %d changes\n", n)
					return err
				})
			})
		},
	}
}

func NewQueueCommand(o *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List queued changes in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				entries, err := a.engine.Pending(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "read queue", err)
				}
				if entries == nil {
					entries = []models.QueueEntry{}
				}
				return p.print(entries, func(w io.Writer) error { return queueTable(w, entries) })
			})
		},
	}
}

func queueTable(w io.Writer, entries []models.QueueEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOP\tENTRY\tRETRIES\tENQUEUED\tLAST ERROR")
	for _, q := range entries {
		lastErr := ""
		if q.LastError != nil {
			lastErr = *q.LastError
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", q.ID, q.Operation, q.EntryID, q.RetryCount,
			q.EnqueuedAt.Local().Format(time.DateTime), lastErr)
	}
	return tw.Flush()
}
