package cmd

import (
	"fmt"
	"github.com/cbusillo/discord-blue/discordblue"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"strings"
	"syscall"
)

// passwordReader is a function type for reading passwords. It's really only
// here to make testing easier.
type passwordReader func() ([]byte, error)

var customPasswordReader passwordReader

func readPassword() ([]byte, error) {
	if customPasswordReader != nil {
		return customPasswordReader()
	}
	return term.ReadPassword(int(syscall.Stdin))
}

// promptSecrets asks for each secret whose configured value is
// discordblue.SecretFromTerminal, without echoing the input
func promptSecrets(cmd *cobra.Command) error {
	secrets := []struct {
		key   string
		value *string
	}{
		{"discord.token", &cfg.Discord.Token},
		{"printnode.api_key", &cfg.PrintNode.APIKey},
		{"shippo.api_key", &cfg.Shippo.APIKey},
		{"llm.token", &cfg.LLM.Token},
	}
	out := cmd.OutOrStdout()
	for _, secret := range secrets {
		if *secret.value != discordblue.SecretFromTerminal {
			continue
		}
		fmt.Fprintf(out, "Enter %s: ", secret.key)
		value, err := readPassword()
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("error reading %s: %w", secret.key, err)
		}
		*secret.value = strings.TrimSpace(string(value))
		if *secret.value == "" {
			return fmt.Errorf("%s is required", secret.key)
		}
	}
	return nil
}
