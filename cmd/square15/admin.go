package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/auth"
)

func newMigrateCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			logger, err := configuredLogger(stdout, cfg)
			if err != nil {
				return err
			}

			// Open applies pending migrations.
			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if err := st.Close(); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "database %s is up to date\n", cfg.Database.Path)
			return nil
		},
	}
}

type tokenOptions struct {
	userID string
	name   string
	email  string
	role   string
	ttl    time.Duration
}

func newTokenCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage credentials",
	}

	tokOpts := &tokenOptions{}
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed access token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenIssue(stdout, opts, tokOpts)
		},
	}
	issue.Flags().StringVar(&tokOpts.userID, "user", "", "user id (required)")
	issue.Flags().StringVar(&tokOpts.name, "name", "", "display name")
	issue.Flags().StringVar(&tokOpts.email, "email", "", "email address")
	issue.Flags().StringVar(&tokOpts.role, "role", auth.RoleViewer, "role: admin, sales, technician, accountant or viewer")
	issue.Flags().DurationVar(&tokOpts.ttl, "ttl", 0, "token lifetime (default: auth.token_ttl_min)")
	_ = issue.MarkFlagRequired("user")

	hashKey := &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Print the bcrypt hash of an API key for auth.api_keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashAPIKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, h)
			return nil
		},
	}

	cmd.AddCommand(issue, hashKey)
	return cmd
}

func runTokenIssue(stdout io.Writer, opts *globalOptions, tokOpts *tokenOptions) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("token issue: auth.jwt_secret is not configured")
	}

	p, err := auth.NewPrincipal(tokOpts.userID, tokOpts.name, tokOpts.email, tokOpts.role)
	if err != nil {
		return fmt.Errorf("token issue: %w", err)
	}
	ttl := tokOpts.ttl
	if ttl <= 0 {
		ttl = time.Duration(cfg.Auth.TokenTTLMin) * time.Minute
	}
	now := time.Now()
	token, err := auth.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, p, ttl, now)
	if err != nil {
		return err
	}

	if opts.output == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"token":      token,
			"user":       p.ID,
			"role":       p.Role,
			"expires_at": now.Add(ttl).UTC().Format(time.RFC3339),
		})
	}
	fmt.Fprintln(stdout, token)
	return nil
}
