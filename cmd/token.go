/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vasilii314/taskbroker/auth"
	"github.com/vasilii314/taskbroker/store"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token USERNAME",
	Short: "Mint a bearer token for a user",
	Long: `Taskbroker token command.

The token command reads the same environment as "taskbroker serve", looks
the user up in the configured store and prints a token signed with
TASKBROKER_JWT_SECRET. It needs a persistent or sqlite store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := serverConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.JWTSecret == "" {
			return errors.New("TASKBROKER_JWT_SECRET is not set")
		}
		if store.StoreType(cfg.Store) == store.InMemoryStore {
			return errors.New("the memory store is private to a running server, use a persistent or sqlite store")
		}
		backend, err := store.Open(store.StoreType(cfg.Store), cfg.DBPath, 0600)
		if err != nil {
			return err
		}
		defer backend.Close()

		u, err := backend.Accounts.GetUserByUsername(cmd.Context(), args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no user named %q", args[0])
		}
		if err != nil {
			return err
		}
		tokens, err := auth.NewTokens(cfg.JWTSecret)
		if err != nil {
			return err
		}
		tokens.TTL = cfg.TokenTTL
		raw, err := tokens.Mint(u.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), raw)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringP("store", "s", "", "Type of datastore the server uses (default $TASKBROKER_STORE)")
	tokenCmd.Flags().String("db", "", "Database file of the store (default $TASKBROKER_DB_PATH)")
}
