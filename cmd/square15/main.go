// Square15 is the conversational operations agent for a field-services
// business: staff describe what they need in plain language and the agent
// records leads, quotes, invoices, orders, projects and expenses.
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]); a .env file in the
// working directory is loaded first so the YAML can reference secrets as
// ${VARS}.
//
// Usage:
//
//	square15 init [dir]            Write a starter config
//	square15 serve                 Start the API server and background jobs
//	square15 ask <request>         Run one request from the command line
//	square15 migrate               Apply database migrations
//	square15 token issue ...       Issue a signed access token
//	square15 token hash-key <key>  Hash an API key for the config file
//	square15 version               Print version and build information
//	square15 -o json version       Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/buildinfo"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/config"
)

// main constructs the OS-level environment and delegates to [run], which
// keeps os.Exit, os.Stdout and os.Args out of the application logic.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	envFile    string
	output     string // text or json
}

// run is the real entry point. The cobra tree is built per call so tests
// can drive the full command surface without package-level state.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	root := newRootCommand(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "square15",
		Short:         "Square15 - conversational operations agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "text" && opts.output != "json" {
				return fmt.Errorf("unknown output format: %q (expected text or json)", opts.output)
			}
			return loadEnv(opts.envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default: auto-discover)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")

	cmd.AddCommand(newInitCommand(stdout))
	cmd.AddCommand(newServeCommand(opts, stdout))
	cmd.AddCommand(newAskCommand(opts, stdout))
	cmd.AddCommand(newMigrateCommand(opts, stdout))
	cmd.AddCommand(newTokenCommand(opts, stdout))
	cmd.AddCommand(newVersionCommand(opts, stdout))

	return cmd
}

// loadEnv loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newVersionCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(stdout, opts.output)
		},
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	return config.NewLogger(w, level, format)
}

func configuredLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	return cfg.Logger(w)
}

// loadConfig locates, parses and validates the YAML configuration file.
// Returns the parsed config and the path that was loaded.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
