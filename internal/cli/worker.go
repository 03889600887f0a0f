package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/clapval/internal/harness"
	"github.com/roach88/clapval/internal/worker"
)

// NewWorkerCommand creates the hidden command worker processes run. It
// serves requests on the control pipes set up by the parent process.
func NewWorkerCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "worker",
		Short:         "Run validator requests for a parent clapval process",
		Hidden:        true,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			// Plugin output on stderr is captured by the parent, so log
			// in the same place.
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			suite := harness.NewSuite(opts.env.Loader, harness.WithLogger(logger))
			if err := worker.ServeFDs(ctx, suite); err != nil {
				return WrapExitError(ExitCommandError, "worker", err)
			}
			return nil
		},
	}
}
