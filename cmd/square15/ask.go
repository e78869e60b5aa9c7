package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/agent"
	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
)

type askOptions struct {
	*globalOptions
	credential string
	userID     string
	role       string
}

func newAskCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	askOpts := &askOptions{globalOptions: opts}

	cmd := &cobra.Command{
		Use:   "ask <request>",
		Short: "Run one request from the command line",
		Long: "Run one request through the agent and print the reply. With --credential the\n" +
			"request runs as the principal the credential resolves to; otherwise it runs\n" +
			"as a local principal built from --user and --role.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), stdout, cmd.ErrOrStderr(), askOpts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&askOpts.credential, "credential", "", "access token or API key to run as")
	cmd.Flags().StringVar(&askOpts.userID, "user", "cli", "user id for the local principal")
	cmd.Flags().StringVar(&askOpts.role, "role", auth.RoleAdmin, "role for the local principal")
	return cmd
}

// runAsk boots the agent without the API server and processes a single
// request. Logs go to stderr at warn level so stdout carries only the
// reply.
func runAsk(ctx context.Context, stdout, stderr io.Writer, opts *askOptions, request string) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, slog.LevelWarn, cfg.LogFormat)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	var resolver auth.Resolver
	if opts.credential != "" {
		chain, err := auth.NewFromConfig(cfg.Auth)
		if err != nil {
			return err
		}
		resolver = chain
	}
	svc := agent.NewService(logger, a.loop, resolver, a.registries())

	var p auth.Principal
	if opts.credential != "" {
		p, err = svc.Resolve(ctx, opts.credential)
	} else {
		p, err = auth.NewPrincipal(opts.userID, opts.userID, "", opts.role)
	}
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	res, err := svc.Chat(ctx, p, []agent.Message{{Role: "user", Content: request}}, nil, "")
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if opts.output == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(stdout, res.Content)
	return nil
}
