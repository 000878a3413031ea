package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexjbarnes/recipe-sync/internal/secrets"
	"github.com/alexjbarnes/recipe-sync/internal/session"
	"github.com/alexjbarnes/recipe-sync/internal/state"
	"github.com/alexjbarnes/recipe-sync/internal/token"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sign-in state and the last completed sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	sess, err := session.Load(secrets.Keyring{})
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	if sess == nil {
		fmt.Println("Not signed in. Run \"recipe-sync login\" to get started.")
		return nil
	}

	fmt.Printf("Signed in as %s\n", sess.Email)

	if tok, err := token.Parse(sess.RawToken); err == nil {
		now := time.Now()
		if tok.IsExpired(now) {
			fmt.Println("Session:   expired (the daemon will sign you out)")
		} else {
			fmt.Printf("Session:   valid for %s\n", tok.TimeUntilExpiry(now).Round(time.Minute))
		}
	}

	appState, err := state.Load()
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	record, err := appState.LastSync()
	if err != nil {
		return fmt.Errorf("reading last sync: %w", err)
	}

	if record == nil {
		fmt.Println("Last sync: never")
		return nil
	}

	fmt.Printf("Last sync: %s (%d synced, %d pending)\n",
		record.CompletedAt.Local().Format(time.RFC1123),
		record.ItemsSynced, record.ItemsPending)

	return nil
}
