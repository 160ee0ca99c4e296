package cmd

import (
	"fmt"
	"github.com/cbusillo/discord-blue/code128"
	"github.com/spf13/cobra"
	"strconv"
	"strings"
)

var showCodes bool

var barcodeCmd = &cobra.Command{
	Use:   "barcode <data>",
	Short: "Print the Code 128 barcode font string for data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codes, err := code128.Codes(args[0])
		if err != nil {
			return err
		}
		symbol, err := code128.Symbol(codes)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, symbol)
		if showCodes {
			values := make([]string, len(codes))
			for i, c := range codes {
				values[i] = strconv.Itoa(c)
			}
			fmt.Fprintf(out, "codes: %s\n", strings.Join(values, " "))
			fmt.Fprintf(out, "checksum: %d\n", codes[len(codes)-2])
		}
		return nil
	},
}

func init() {
	barcodeCmd.Flags().BoolVar(&showCodes, "codes", false, "Also print the symbol codes and checksum")
	rootCmd.AddCommand(barcodeCmd)
}
