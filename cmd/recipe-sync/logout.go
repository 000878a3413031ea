package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexjbarnes/recipe-sync/internal/secrets"
	"github.com/alexjbarnes/recipe-sync/internal/session"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout()
		},
	}
}

func runLogout() error {
	if err := session.Delete(secrets.Keyring{}); err != nil {
		return fmt.Errorf("clearing stored session: %w", err)
	}

	fmt.Println("Signed out.")

	return nil
}
