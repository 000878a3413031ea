package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexjbarnes/recipe-sync/internal/api"
	"github.com/alexjbarnes/recipe-sync/internal/auth"
	"github.com/alexjbarnes/recipe-sync/internal/config"
	"github.com/alexjbarnes/recipe-sync/internal/logging"
	"github.com/alexjbarnes/recipe-sync/internal/secrets"
)

type loginOptions struct {
	token string
}

func newLoginCmd() *cobra.Command {
	opts := &loginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in via the browser",
		Long: `Opens your browser to sign in and stores the resulting session in
the OS keychain. Pass --token to paste a token directly instead, for
headless machines.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.token, "token", "", "sign in with a pasted token instead of the browser")

	return cmd
}

func runLogin(ctx context.Context, opts *loginOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)

	manager, err := auth.NewManager(auth.Config{
		Store:      secrets.Keyring{},
		API:        api.NewClient(cfg.APIURL, nil),
		WebBaseURL: cfg.WebBaseURL(),
		Logger:     logging.ForComponent(logger, "auth"),
	})
	if err != nil {
		return fmt.Errorf("initializing auth: %w", err)
	}

	if opts.token != "" {
		if err := manager.LoginWithToken(opts.token); err != nil {
			return fmt.Errorf("signing in with token: %w", err)
		}
	} else {
		fmt.Println("Opening your browser to sign in...")
		if err := manager.BrowserLogin(ctx); err != nil {
			return fmt.Errorf("signing in: %w", err)
		}
	}

	sess := manager.CurrentSession()
	fmt.Printf("Signed in as %s\n", sess.Email)

	return nil
}
