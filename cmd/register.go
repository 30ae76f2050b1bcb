/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/vasilii314/taskbroker/account"
	"github.com/vasilii314/taskbroker/config"
)

// registerCmd represents the register command
var registerCmd = &cobra.Command{
	Use:   "register USERNAME",
	Short: "Create a user account",
	Long: `Taskbroker register command.

The register command signs up a new user with the password given by
--password. With --save the server, username and password are written to
the client config so later commands pick them up.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		email, _ := cmd.Flags().GetString("email")
		reg := account.Registration{Username: args[0], Password: c.Password, Email: email}
		msg, err := c.RegisterUser(cmd.Context(), reg)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)

		if save, _ := cmd.Flags().GetBool("save"); !save {
			return nil
		}
		path, err := configPath(cmd)
		if err != nil {
			return err
		}
		cfg, err := clientConfig(cmd)
		if err != nil {
			return err
		}
		cfg.Username = args[0]
		if err := config.SaveClient(path, cfg); err != nil {
			return err
		}
		log.Printf("Saved credentials to %s", path)
		return nil
	},
}

var charityCmd = &cobra.Command{
	Use:   "charity",
	Short: "Manage your charity",
}

var charityRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a charity for the current user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		regNumber, _ := cmd.Flags().GetString("reg-number")
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		ch, err := c.RegisterCharity(cmd.Context(), account.CharityRegistration{Name: name, RegNumber: regNumber})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Charity %s registered as %s\n", ch.Name, ch.ID)
		return nil
	},
}

var benefactorCmd = &cobra.Command{
	Use:   "benefactor",
	Short: "Manage your benefactor profile",
}

var benefactorRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the current user as a benefactor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		experience, _ := cmd.Flags().GetInt("experience")
		freeTime, _ := cmd.Flags().GetInt("free-time")
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		b, err := c.RegisterBenefactor(cmd.Context(), account.BenefactorRegistration{Experience: experience, FreeTimePerWeek: freeTime})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Benefactor registered as %s\n", b.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerCmd, charityCmd, benefactorCmd)
	registerCmd.Flags().String("email", "", "Email address")
	registerCmd.Flags().Bool("save", false, "Save the server and credentials to the client config")
	charityCmd.AddCommand(charityRegisterCmd)
	charityRegisterCmd.Flags().String("name", "", "Charity name")
	charityRegisterCmd.Flags().String("reg-number", "", "Ten digit registration number")
	benefactorCmd.AddCommand(benefactorRegisterCmd)
	benefactorRegisterCmd.Flags().Int("experience", account.ExperienceBeginner, "Experience level: 0 beginner, 1 intermediate, 2 expert")
	benefactorRegisterCmd.Flags().Int("free-time", 0, "Free hours per week")
}
