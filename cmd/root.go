/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vasilii314/taskbroker/client"
	"github.com/vasilii314/taskbroker/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskbroker",
	Short: "Broker volunteer tasks between charities and benefactors.",
	Long: `Taskbroker command.

Charities post tasks, benefactors ask to take them on, and the charity
accepts or rejects each request and finally marks the task done.
Run "taskbroker serve" to start the broker API; the other commands talk
to a running broker.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("server", "m", "", "Broker address (default from the client config, then "+config.DefaultServer+")")
	rootCmd.PersistentFlags().String("user", "", "Username for HTTP Basic authentication")
	rootCmd.PersistentFlags().String("password", "", "Password for HTTP Basic authentication")
	rootCmd.PersistentFlags().String("token", "", "Bearer token, used instead of username and password")
	rootCmd.PersistentFlags().String("config", "", "Client config file (default ~/.config/taskbroker/config.toml)")
}

func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	return config.ClientPath()
}

// clientConfig merges the client config file with the global flags. Flags
// win over the file.
func clientConfig(cmd *cobra.Command) (config.Client, error) {
	path, err := configPath(cmd)
	if err != nil {
		return config.Client{}, err
	}
	cfg, err := config.LoadClient(path)
	if err != nil {
		return config.Client{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server, _ = flags.GetString("server")
	}
	if flags.Changed("user") {
		cfg.Username, _ = flags.GetString("user")
	}
	if flags.Changed("password") {
		cfg.Password, _ = flags.GetString("password")
	}
	if flags.Changed("token") {
		cfg.Token, _ = flags.GetString("token")
	}
	return cfg, nil
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := clientConfig(cmd)
	if err != nil {
		return nil, err
	}
	c := client.New(cfg.Server)
	c.Username = cfg.Username
	c.Password = cfg.Password
	c.Token = cfg.Token
	return c, nil
}
