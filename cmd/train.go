package cmd

import (
	"fmt"
	"github.com/spf13/cobra"
)

var (
	waitForTraining bool

	trainCmd = &cobra.Command{
		Use:   "train <username>",
		Short: "Start a fine-tuning job on a user's training data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bot, err := newBot(cmd)
			if err != nil {
				return fmt.Errorf("error creating bot: %w", err)
			}
			job, err := bot.LLM().Train(cmd.Context(), args[0], waitForTraining)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fine-tuning job %s: %s\n", job.ID, job.Status)
			if job.FineTunedModel != "" {
				fmt.Fprintf(out, "Model: %s\n", job.FineTunedModel)
			}
			return nil
		},
	}
)

func init() {
	trainCmd.Flags().BoolVar(&waitForTraining, "wait", false, "Wait for the job to finish and save the model")
	rootCmd.AddCommand(trainCmd)
}
