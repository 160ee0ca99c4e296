package cmd

import (
	"fmt"
	"github.com/cbusillo/discord-blue/discordblue"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the database and state document, and set the admin API password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		// Run database migrations
		db, err := discordblue.CreateDB(ctx, cfg.DatabaseType, cfg.Database)
		if err != nil {
			return fmt.Errorf("error creating database: %w", err)
		}
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			defer sqlDB.Close()
		}

		store, err := discordblue.LoadStateStore(cfg.StatePath, nil)
		if err != nil {
			return fmt.Errorf("error loading state document: %w", err)
		}
		fmt.Fprintf(out, "State document: %s\n", store.Path())

		if store.State().API.AdminPasswordHash != "" {
			fmt.Fprintln(out, "Admin password is already set.")
		} else {
			fmt.Fprintln(out, "Admin password is not set. Let's set it up.")

			var password string
			for {
				fmt.Fprint(out, "Enter admin password: ")
				passwordBytes, err := readPassword()
				if err != nil {
					return fmt.Errorf("error reading password: %w", err)
				}
				password = string(passwordBytes)
				fmt.Fprintln(out)

				fmt.Fprint(out, "Confirm admin password: ")
				confirmPasswordBytes, err := readPassword()
				if err != nil {
					return fmt.Errorf("error reading password: %w", err)
				}
				fmt.Fprintln(out)

				if password != "" && password == string(confirmPasswordBytes) {
					break
				}
				fmt.Fprintln(out, "Passwords do not match. Please try again.")
			}

			hashedPassword, err := discordblue.HashPassword(password)
			if err != nil {
				return fmt.Errorf("error hashing password: %w", err)
			}
			err = store.Update(
				func(s *discordblue.State) error {
					s.API.AdminPasswordHash = hashedPassword
					return nil
				},
			)
			if err != nil {
				return fmt.Errorf("error saving admin password: %w", err)
			}
			fmt.Fprintln(out, "Admin password set successfully.")
		}

		fmt.Fprintln(
			out,
			"Initialization complete. You can now start the bot with the 'run' subcommand.",
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
