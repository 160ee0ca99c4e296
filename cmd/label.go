package cmd

import (
	"fmt"
	"github.com/cbusillo/discord-blue/discordblue"
	"github.com/spf13/cobra"
	"os"
)

var (
	labelSchool    string
	labelOut       string
	labelPrinterID int

	labelCmd = &cobra.Command{
		Use:   "label --school KEY [--out file.pdf | --printer-id N] id...",
		Short: "Render or print an asset tag label with up to three IDs",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if labelPrinterID != 0 {
				bot, err := newBot(cmd)
				if err != nil {
					return fmt.Errorf("error creating bot: %w", err)
				}
				job, err := bot.PrintAssetLabel(cmd.Context(), labelPrinterID, labelSchool, args, nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Sent print job %d to printer %d\n", job.PrintNodeJobID, job.PrinterID)
				return nil
			}

			store, err := discordblue.LoadStateStore(cfg.StatePath, nil)
			if err != nil {
				return fmt.Errorf("error loading state document: %w", err)
			}
			school, ok := store.State().AssetLabelPrinter.Schools[labelSchool]
			if !ok {
				return fmt.Errorf("unknown school %q", labelSchool)
			}
			pdf, err := discordblue.AssetLabelPDF(school, args...)
			if err != nil {
				return err
			}
			filename := labelOut
			if filename == "" {
				filename = discordblue.SchoolKey(school) + ".pdf"
			}
			if err = os.WriteFile(filename, pdf, 0o644); err != nil {
				return fmt.Errorf("error writing label: %w", err)
			}
			fmt.Fprintf(out, "Wrote %s\n", filename)
			return nil
		},
	}
)

func init() {
	labelCmd.Flags().StringVar(&labelSchool, "school", "", "School key from the state document")
	labelCmd.Flags().StringVar(&labelOut, "out", "", "Output file (default <school>.pdf)")
	labelCmd.Flags().IntVar(&labelPrinterID, "printer-id", 0, "Print to this PrintNode printer instead of writing a file")
	_ = labelCmd.MarkFlagRequired("school")
	rootCmd.AddCommand(labelCmd)
}
