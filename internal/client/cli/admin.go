package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/logsync/internal/client/legacy"
	"github.com/spf13/cobra"
)

func NewServeCommand(o *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync loop with the HTTP API and health endpoints",
		Long: `serve keeps the connectivity monitor and the sync engine running,
draining the queue whenever the backend is reachable. The HTTP API listens on
api.addr and the gRPC health service on api.health_addr when they are set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return o.withApp(cmd, func(ctx context.Context, a *App, _ printer) error {
				if err := a.Serve(ctx); err != nil {
					return WrapExitError(ExitFailure, "serve", err)
				}
				return nil
			})
		},
	}
}

func NewImportLegacyCommand(o *RootOptions) *cobra.Command {
	var force, reset bool
	cmd := &cobra.Command{
		Use:   "import-legacy <file>",
		Short: "Queue entries exported from the browser logbook",
		Long: `import-legacy reads a JSON array of entries in the old browser format
("-" reads stdin) and queues each one for insertion. The import runs once;
--force runs it again, skipping entries imported before.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				if reset {
					if err := a.importer.Reset(ctx); err != nil {
						return WrapExitError(ExitFailure, "reset import", err)
					}
				}
				var r io.Reader = cmd.InOrStdin()
				if args[0] != "-" {
					f, err := os.Open(args[0])
					if err != nil {
						return WrapExitError(ExitCommandError, "open export", err)
					}
					defer f.Close()
					r = f
				}
				st, err := a.importer.Import(ctx, r, force)
				if err != nil {
					return WrapExitError(ExitFailure, "import", err)
				}
				return p.print(st, func(w io.Writer) error { return importText(w, st) })
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "run even if an import already completed")
	cmd.Flags().BoolVar(&reset, "reset", false, "forget the previous import before running")
	return cmd
}

func importText(w io.Writer, st legacy.Status) error {
	_, err := fmt.Fprintf(w, "imported %d entries (%d already present, %d invalid)\n",
		st.Imported, st.Skipped, st.Invalid)
	return err
}

func NewMigrateRemoteCommand(o *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-remote",
		Short: "Apply the backend schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				applied, err := a.Migrate(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "migrate", err)
				}
				if applied == nil {
					applied = []string{}
				}
				return p.print(map[string][]string{"applied": applied}, func(w io.Writer) error {
					if len(applied) == 0 {
						_, err := fmt.Fprintln(w, "schema is up to date")
						return err
					}
					for _, m := range applied {
						fmt.Fprintf(w, "applied %s\n", m)
					}
					return nil
				})
			})
		},
	}
}
