package cmd

import (
	"errors"
	"fmt"
	"github.com/cbusillo/discord-blue/discordblue"
	"github.com/spf13/cobra"
	"strings"
)

var generateCmd = &cobra.Command{
	Use:   "generate <username> <message...>",
	Short: "Generate a reply with a user's fine-tuned model",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bot, err := newBot(cmd)
		if err != nil {
			return fmt.Errorf("error creating bot: %w", err)
		}
		reply, err := bot.LLM().Generate(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if errors.Is(err, discordblue.ErrModelNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "Model not found for %s\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}
