/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/vasilii314/taskbroker/auth"
	"github.com/vasilii314/taskbroker/broker"
	"github.com/vasilii314/taskbroker/config"
	"github.com/vasilii314/taskbroker/store"
	"github.com/vasilii314/taskbroker/telemetry"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve command to run the broker API.",
	Long: `Taskbroker serve command.

The broker is responsible for:
- Registering users, charities and benefactors
- Accepting tasks from charities
- Handing pending tasks to benefactors who ask for them
- Recording every state change of a task`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := serverConfig(cmd)
		if err != nil {
			return err
		}

		shutdownTracing, err := telemetry.Setup(cmd.Context(), cfg.OTelEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				log.Printf("[cmd] [serve] Error flushing traces: %v", err)
			}
		}()

		backend, err := store.Open(store.StoreType(cfg.Store), cfg.DBPath, 0600)
		if err != nil {
			return err
		}
		defer func() {
			if err := backend.Close(); err != nil {
				log.Printf("[cmd] [serve] Error closing store: %v", err)
			}
		}()

		b := broker.New(backend)
		authn, err := authenticator(cfg, b.Accounts)
		if err != nil {
			return err
		}
		api := broker.Api{Address: cfg.Host, Port: cfg.Port, Broker: b, Auth: authn}
		log.Printf("Starting broker API on http://%s:%d with %s store", cfg.Host, cfg.Port, cfg.Store)
		return api.Start(cmd.Context(), cfg.ShutdownTimeout)
	},
}

// serverConfig reads the environment and lets the flags override it.
func serverConfig(cmd *cobra.Command) (config.Server, error) {
	cfg, err := config.LoadServer()
	if err != nil {
		return config.Server{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("store") {
		cfg.Store, _ = flags.GetString("store")
	}
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return config.Server{}, fmt.Errorf("port out of range: %d", cfg.Port)
	}
	return cfg, nil
}

// authenticator accepts bearer tokens when a secret is configured and
// HTTP Basic credentials always.
func authenticator(cfg config.Server, accounts store.AccountStore) (auth.Authenticator, error) {
	chain := auth.Chain{}
	if cfg.JWTSecret != "" {
		tokens, err := auth.NewTokens(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		tokens.TTL = cfg.TokenTTL
		chain = append(chain, auth.Bearer{Accounts: accounts, Tokens: tokens})
	}
	return append(chain, auth.Basic{Accounts: accounts}), nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "Hostname or IP address")
	serveCmd.Flags().IntP("port", "p", 5554, "Port on which to listen")
	serveCmd.Flags().StringP("store", "s", "memory", "Type of datastore to use (\"memory\", \"persistent\" or \"sqlite\")")
	serveCmd.Flags().String("db", "taskbroker.db", "Database file for the persistent and sqlite stores")
}
