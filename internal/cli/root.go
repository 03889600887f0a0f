package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/clap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "yaml"

	env Environment
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// Environment supplies the plugin loader and the command used to start
// worker processes.
type Environment struct {
	Loader abi.Loader

	// WorkerCommand is the argv of a worker process. Empty means the
	// running executable with the "worker" argument.
	WorkerCommand []string

	// WorkerEnv is appended to the environment of worker processes.
	WorkerEnv []string
}

// DefaultEnvironment loads real .clap modules.
func DefaultEnvironment() Environment {
	return Environment{Loader: clap.NewLoader()}
}

// NewRootCommand creates the root command for the clapval CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(DefaultEnvironment())
}

// NewRootCommandWith creates the root command with a custom environment.
func NewRootCommandWith(env Environment) *cobra.Command {
	opts := &RootOptions{env: env}

	cmd := &cobra.Command{
		Use:   "clapval",
		Short: "clapval - CLAP plugin validator",
		Long: `Validate CLAP audio plugins against the CLAP ABI contract.

Every test runs in its own worker process by default so that a plugin that
crashes or hangs only fails the test that triggered it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewWorkerCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// logger writes structured diagnostics to w. Verbose mode lowers the level
// to Debug.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
