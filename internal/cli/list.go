package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/clapval/internal/abi"
	"github.com/roach88/clapval/internal/clap"
	"github.com/roach88/clapval/internal/engine"
	"github.com/roach88/clapval/internal/harness"
	"github.com/roach88/clapval/internal/registry"
	"github.com/roach88/clapval/internal/result"
	"github.com/roach88/clapval/internal/worker"
)

// NewListCommand creates the list command and its subcommands.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List validator tests or installed plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newListTestsCommand(rootOpts))
	cmd.AddCommand(newListPluginsCommand(rootOpts))
	return cmd
}

func newListTestsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tests",
		Short: "List every validator test",
		Long: `List every validator test in execution order.

Pedantic tests are flagged; they report issues that are not strictly
violations of the CLAP ABI.

Examples:
  clapval list tests
  clapval list tests --verbose
  clapval list tests --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			cases := harness.Registry().List()
			if formatter.Structured() {
				return formatter.Success(cases)
			}
			return writeTestTable(cmd.OutOrStdout(), cases, opts.Verbose)
		},
	}
}

func testFlags(tc registry.TestCase) string {
	var flags []string
	if tc.Pedantic {
		flags = append(flags, "pedantic")
	}
	if !tc.DefaultEnabled {
		flags = append(flags, "disabled")
	}
	return strings.Join(flags, ",")
}

func writeTestTable(w io.Writer, cases []registry.TestCase, verbose bool) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 8, 2, ' ', 0)
	if verbose {
		fmt.Fprintln(tw, "ID\tKIND\tFLAGS\tDESCRIPTION")
	} else {
		fmt.Fprintln(tw, "ID\tKIND\tFLAGS")
	}
	for _, tc := range cases {
		if verbose {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tc.ID, tc.Kind, testFlags(tc), tc.Description)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", tc.ID, tc.Kind, testFlags(tc))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writeTrimmed(w, buf.String())
}

// writeTrimmed strips the padding tabwriter leaves after empty last cells.
func writeTrimmed(w io.Writer, table string) error {
	lines := strings.Split(strings.TrimSuffix(table, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// ListPluginsOptions holds flags for list plugins.
type ListPluginsOptions struct {
	*RootOptions
	InProcess bool
}

// ModuleListing is one scanned module.
type ModuleListing struct {
	Path    string           `json:"path" yaml:"path"`
	Version *abi.Version     `json:"clap_version,omitempty" yaml:"clap_version,omitempty"`
	Plugins []abi.Descriptor `json:"plugins" yaml:"plugins"`
	Error   string           `json:"error,omitempty" yaml:"error,omitempty"`
}

type scanner interface {
	Scan(ctx context.Context, path string) (harness.ScanResult, error)
}

func newListPluginsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListPluginsOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "plugins [module.clap...]",
		Short: "List the plugins exposed by CLAP modules",
		Long: `List the plugins exposed by CLAP modules.

Without arguments the standard CLAP directories are searched: the entries of
$CLAP_PATH followed by the platform defaults (~/.clap and /usr/lib/clap on
Linux, ~/Library/Audio/Plug-Ins/CLAP and /Library/Audio/Plug-Ins/CLAP on
macOS).

Each module is scanned in a worker process unless --in-process is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListPlugins(cmd, opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.InProcess, "in-process", false, "scan modules in this process")
	return cmd
}

func runListPlugins(cmd *cobra.Command, opts *ListPluginsOptions, paths []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	if len(paths) == 0 {
		dirs := clap.SearchPaths()
		formatter.VerboseLog("Searching %s", strings.Join(dirs, ", "))
		found, err := clap.FindModules(dirs)
		if err != nil {
			return WrapExitError(ExitCommandError, "search for modules", err)
		}
		paths = found
	}

	var sc scanner
	if opts.InProcess {
		sc = engine.InProcess(harness.NewSuite(opts.env.Loader, harness.WithLogger(logger)))
	} else {
		runnerOpts := []worker.RunnerOption{worker.WithEnv(opts.env.WorkerEnv...), worker.WithLogger(logger)}
		if len(opts.env.WorkerCommand) > 0 {
			runnerOpts = append(runnerOpts, worker.WithCommand(opts.env.WorkerCommand...))
		}
		r, err := worker.NewRunner(runnerOpts...)
		if err != nil {
			return WrapExitError(ExitCommandError, "set up worker", err)
		}
		sc = r
	}

	listings := make([]ModuleListing, 0, len(paths))
	failed := 0
	for _, path := range paths {
		listing := ModuleListing{Path: path, Plugins: []abi.Descriptor{}}
		res, err := sc.Scan(ctx, path)
		if err != nil {
			listing.Error = err.Error()
			failed++
		} else {
			v := res.Version
			listing.Version = &v
			if res.Descriptors != nil {
				listing.Plugins = res.Descriptors
			}
		}
		listings = append(listings, listing)
	}

	if formatter.Structured() {
		if err := formatter.Success(listings); err != nil {
			return WrapExitError(ExitCommandError, "write listing", err)
		}
	} else if err := renderListings(formatter, listings); err != nil {
		return WrapExitError(ExitCommandError, "write listing", err)
	}
	if failed > 0 {
		return NewExitError(ExitCommandError, "")
	}
	return nil
}

func renderListings(f *OutputFormatter, listings []ModuleListing) error {
	if len(listings) == 0 {
		_, err := fmt.Fprintln(f.Writer, "No CLAP modules found.")
		return err
	}
	styles := f.Styles()
	w := &errWriter{w: f.Writer}
	for i, m := range listings {
		if i > 0 {
			w.printf("\n")
		}
		if m.Error != "" {
			w.printf("%s\n  %s\n", styles.Heading.Render(m.Path), m.Error)
			continue
		}
		w.printf("%s %s\n", styles.Heading.Render(m.Path), styles.Subtle.Render(fmt.Sprintf("(CLAP %s)", m.Version)))
		if len(m.Plugins) == 0 {
			w.printf("  %s\n", styles.Subtle.Render("no plugins"))
		}
		for _, d := range m.Plugins {
			w.printf("  %s\n", pluginTitle(result.NewPluginReport(&d)))
			if f.Verbose {
				if d.Description != "" {
					w.printf("    %s\n", d.Description)
				}
				if len(d.Features) > 0 {
					w.printf("    %s\n", styles.Subtle.Render("features: "+strings.Join(d.Features, ", ")))
				}
			}
		}
	}
	return w.err
}
