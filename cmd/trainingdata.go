package cmd

import (
	"fmt"
	"github.com/cbusillo/discord-blue/discordblue"
	"github.com/spf13/cobra"
)

var (
	resetTrainingData bool

	trainingDataCmd = &cobra.Command{
		Use:   "training-data <username|all>",
		Short: "Collect conversations from the guild as fine-tuning data",
		Long: fmt.Sprintf(
			"Collects the conversations a user replied to in every readable "+
				"text channel, and writes them to the training data directory. "+
				"Use %q to write one file per author.",
			discordblue.AllUsers,
		),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bot, err := newBot(cmd)
			if err != nil {
				return fmt.Errorf("error creating bot: %w", err)
			}
			count, err := bot.CollectTrainingData(cmd.Context(), args[0], resetTrainingData)
			if err != nil {
				return err
			}
			fmt.Fprintf(
				cmd.OutOrStdout(),
				"Collected %d conversations into %s\n",
				count,
				cfg.LLM.DataDir,
			)
			return nil
		},
	}
)

func init() {
	trainingDataCmd.Flags().BoolVar(
		&resetTrainingData,
		"reset",
		false,
		"Delete existing training data before collecting",
	)
	rootCmd.AddCommand(trainingDataCmd)
}
