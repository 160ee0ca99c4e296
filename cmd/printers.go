package cmd

import (
	"fmt"
	"github.com/spf13/cobra"
	"text/tabwriter"
)

var printersCmd = &cobra.Command{
	Use:   "printers",
	Short: "List the printers available to the PrintNode account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		bot, err := newBot(cmd)
		if err != nil {
			return fmt.Errorf("error creating bot: %w", err)
		}
		printers, err := bot.PrintNode().Printers(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATE\tCOMPUTER")
		for _, p := range printers {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.State, p.Computer.Name)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(printersCmd)
}
