package cmd

import (
	"fmt"
	"github.com/cbusillo/discord-blue/discordblue"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

var (
	stateCmd = &cobra.Command{
		Use:   "state",
		Short: "Inspect or edit the state document",
	}

	stateGetCmd = &cobra.Command{
		Use:   "get <key>",
		Short: "Print a value from the state document, by section__field key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := discordblue.LoadStateStore(cfg.StatePath, nil)
			if err != nil {
				return fmt.Errorf("error loading state document: %w", err)
			}
			value, err := store.Get(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if table, ok := value.(map[string]any); ok {
				data, err := toml.Marshal(table)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		},
	}

	stateSetCmd = &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a value in the state document, by section__field key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := discordblue.LoadStateStore(cfg.StatePath, nil)
			if err != nil {
				return fmt.Errorf("error loading state document: %w", err)
			}
			if err = store.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", args[0])
			return nil
		},
	}

	statePathCmd = &cobra.Command{
		Use:   "path",
		Short: "Print the path of the state document",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), cfg.StatePath)
		},
	}
)

func init() {
	stateCmd.AddCommand(stateGetCmd, stateSetCmd, statePathCmd)
	rootCmd.AddCommand(stateCmd)
}
