package cmd

import (
	"fmt"
	"github.com/cbusillo/discord-blue/discordblue"
	"github.com/spf13/cobra"
	"os"
)

var (
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Connects the bot to discord, and starts the API if enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bot, err := newBot(cmd)
			if err != nil {
				return fmt.Errorf("error creating bot: %w", err)
			}
			bot.SetSelector(discordblue.TerminalSelector(os.Stdin, cmd.OutOrStdout()))

			if err = bot.Run(cmd.Context()); err != nil {
				return fmt.Errorf("error running bot: %w", err)
			}
			return nil
		},
	}
)

//goland:noinspection GoLinter
func init() {
	rootCmd.AddCommand(runCmd)
}
