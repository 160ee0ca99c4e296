package cmd

import (
	"fmt"
	"github.com/cbusillo/discord-blue/discordblue"
	"github.com/spf13/cobra"
)

var (
	shipTo        discordblue.Address
	shipParcel    = discordblue.DefaultParcel()
	shipPrinterID int

	shipCmd = &cobra.Command{
		Use:   "ship [flags]",
		Short: "Buy the cheapest shipping label from the saved return address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bot, err := newBot(cmd)
			if err != nil {
				return fmt.Errorf("error creating bot: %w", err)
			}
			label, err := bot.Ship(cmd.Context(), shipTo, shipParcel, shipPrinterID)
			if label != nil {
				out := cmd.OutOrStdout()
				fmt.Fprintf(
					out,
					"%s %s: %s %s\n",
					label.Rate.Provider,
					label.Rate.ServiceLevel.Name,
					label.Rate.Amount,
					label.Rate.Currency,
				)
				fmt.Fprintf(out, "Tracking: %s\n", label.TrackingNumber)
				fmt.Fprintf(out, "Label: %s\n", label.LabelURL)
			}
			return err
		},
	}
)

func init() {
	flags := shipCmd.Flags()
	flags.StringVar(&shipTo.Name, "name", "", "Recipient name")
	flags.StringVar(&shipTo.Company, "company", "", "Recipient company")
	flags.StringVar(&shipTo.Street1, "street1", "", "Street address")
	flags.StringVar(&shipTo.Street2, "street2", "", "Apartment, suite, etc.")
	flags.StringVar(&shipTo.City, "city", "", "City")
	flags.StringVar(&shipTo.State, "region", "", "State or province")
	flags.StringVar(&shipTo.Zip, "zip", "", "Postal code")
	flags.StringVar(&shipTo.Country, "country", "US", "Country code")
	flags.StringVar(&shipTo.Phone, "phone", "", "Recipient phone")
	flags.StringVar(&shipTo.Email, "email", "", "Recipient email")

	flags.StringVar(&shipParcel.Length, "length", shipParcel.Length, "Parcel length")
	flags.StringVar(&shipParcel.Width, "width", shipParcel.Width, "Parcel width")
	flags.StringVar(&shipParcel.Height, "height", shipParcel.Height, "Parcel height")
	flags.StringVar(&shipParcel.DistanceUnit, "distance-unit", shipParcel.DistanceUnit, "cm, in, ft, mm, m or yd")
	flags.StringVar(&shipParcel.Weight, "weight", shipParcel.Weight, "Parcel weight")
	flags.StringVar(&shipParcel.MassUnit, "mass-unit", shipParcel.MassUnit, "g, oz, lb or kg")

	flags.IntVar(&shipPrinterID, "printer-id", 0, "Print the label on this PrintNode printer")

	for _, name := range []string{"name", "street1", "city", "region", "zip"} {
		_ = shipCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(shipCmd)
}
