package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/logsync/internal/client/config"
	"github.com/spf13/cobra"
)

// RootOptions holds global state shared by every command.
type RootOptions struct {
	Format string
	cfg    *config.Config
	opts   []Option
}

// NewRootCommand creates the logsync command tree. opts are passed to
// NewApp for every command.
func NewRootCommand(opts ...Option) *cobra.Command {
	o := &RootOptions{opts: opts}

	cmd := &cobra.Command{
		Use:   "logsync",
		Short: "Offline-first pilot logbook with a durable sync queue",
		Long: `logsync keeps a pilot logbook in a local SQLite store and replays
every change against a PostgreSQL backend whenever it is reachable.

Records get canonical ids, content hashes and versions from the backend;
their history and revision snapshots can be inspected and restored.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(o.Format) {
				return WrapExitError(ExitCommandError, "bad flag",
					fmt.Errorf("invalid output %q: must be one of %v", o.Format, ValidFormats))
			}
			cfg, err := config.Load(config.ConfigPath(cmd.Flags()))
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			config.ApplyFlags(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid config", err)
			}
			o.cfg = cfg
			return nil
		},
	}

	config.RegisterFlags(cmd.PersistentFlags())
	cmd.PersistentFlags().StringVarP(&o.Format, "output", "o", "text", "output format (text|json|yaml)")

	cmd.AddCommand(
		NewServeCommand(o),
		NewAddCommand(o),
		NewUpdateCommand(o),
		NewDeleteCommand(o),
		NewListCommand(o),
		NewStatusCommand(o),
		NewSyncCommand(o),
		NewRetryCommand(o),
		NewQueueCommand(o),
		NewVerifyCommand(o),
		NewVerifyAllCommand(o),
		NewHistoryCommand(o),
		NewRevisionsCommand(o),
		NewRestoreCommand(o),
		NewImportLegacyCommand(o),
		NewMigrateRemoteCommand(o),
	)
	return cmd
}

// withApp builds the App for one command run and closes it afterwards.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *App, p printer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := NewApp(ctx, o.cfg, cmd.ErrOrStderr(), o.opts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "start", err)
	}
	defer a.Close()
	return fn(ctx, a, printer{format: o.Format, w: cmd.OutOrStdout()})
}
