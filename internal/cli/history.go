package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/clapval/internal/result"
	"github.com/roach88/clapval/internal/store"
)

// HistoryOptions holds flags for the history command and its subcommands.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show runs recorded with validate --db",
		Long: `Show validation runs recorded with 'clapval validate --db'.

Examples:
  clapval history --db ./clapval.db
  clapval history --db ./clapval.db --limit 5 --format json
  clapval history show --db ./clapval.db 0192f7e4-...
  clapval history delete --db ./clapval.db 0192f7e4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of runs to list (0 lists every run)")

	cmd.AddCommand(&cobra.Command{
		Use:           "show <run-id>",
		Short:         "Print the report of a recorded run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd, opts, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "delete <run-id>",
		Short:         "Delete a recorded run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryDelete(cmd, opts, args[0])
		},
	})

	return cmd
}

func (o *HistoryOptions) open(cmd *cobra.Command) (*store.Store, context.Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := store.Open(o.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, ctx, nil
}

func runHistoryList(cmd *cobra.Command, opts *HistoryOptions) error {
	st, ctx, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	formatter := opts.formatter(cmd)
	if formatter.Structured() {
		if runs == nil {
			runs = []store.RunSummary{}
		}
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tDURATION\tMODULES\tRESULT\tSUMMARY")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.RunID,
			r.StartedAt.Local().Format(time.DateTime),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Modules,
			exitClassLabel(r.ExitClass),
			summaryLine(r.Tally),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writeTrimmed(cmd.OutOrStdout(), buf.String())
}

func exitClassLabel(c result.ExitClass) string {
	switch c {
	case result.ExitPassed:
		return "passed"
	case result.ExitTestsFailed:
		return "failed"
	case result.ExitSetupError:
		return "setup error"
	default:
		return fmt.Sprintf("exit %d", int(c))
	}
}

func runHistoryShow(cmd *cobra.Command, opts *HistoryOptions, runID string) error {
	st, ctx, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	formatter := opts.formatter(cmd)
	report, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error("RUN_NOT_FOUND", fmt.Sprintf("no run with id %s", runID), nil)
		return NewExitError(ExitCommandError, "")
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if formatter.Structured() {
		return formatter.Success(report)
	}
	return renderReport(formatter, report, report.Tally())
}

func runHistoryDelete(cmd *cobra.Command, opts *HistoryOptions, runID string) error {
	st, ctx, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteRun(ctx, runID); err != nil {
		return WrapExitError(ExitCommandError, "failed to delete run", err)
	}
	formatter := opts.formatter(cmd)
	if formatter.Structured() {
		return formatter.Success(map[string]string{"deleted": runID})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", runID)
	return nil
}
