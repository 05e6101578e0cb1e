package commands

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/mailai/internal/credential"
	"github.com/nhle/mailai/internal/theme"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage secrets in the OS keyring",
	Long: "Store mail passwords and provider API keys in the OS keyring. Known keys: " +
		strings.Join(credential.Keys, ", ") + ".",
}

var credentialsSetCmd = &cobra.Command{
	Use:       "set <key>",
	Short:     "Prompt for a secret and store it",
	Args:      cobra.ExactArgs(1),
	ValidArgs: credential.Keys,
	RunE:      runCredentialsSet,
}

var credentialsDeleteCmd = &cobra.Command{
	Use:       "delete <key>",
	Short:     "Remove a stored secret",
	Args:      cobra.ExactArgs(1),
	ValidArgs: credential.Keys,
	RunE:      runCredentialsDelete,
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show which secrets are stored",
	RunE:  runCredentialsList,
}

func init() {
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
	credentialsCmd.AddCommand(credentialsListCmd)
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !slices.Contains(credential.Keys, key) {
		return fmt.Errorf("%w: %s", credential.ErrUnknownKey, key)
	}

	var secret string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(key).
				Description("Stored in the OS keyring, never in the config file.").
				EchoMode(huh.EchoModePassword).
				Value(&secret).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("value is required")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	creds, err := credential.Open()
	if err != nil {
		return err
	}
	if err := creds.Set(key, strings.TrimSpace(secret)); err != nil {
		return err
	}
	fmt.Printf("stored %s\n", key)
	return nil
}

func runCredentialsDelete(cmd *cobra.Command, args []string) error {
	creds, err := credential.Open()
	if err != nil {
		return err
	}
	if err := creds.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

func runCredentialsList(cmd *cobra.Command, args []string) error {
	creds, err := credential.Open()
	if err != nil {
		return err
	}
	stored, err := creds.Stored()
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(stored)
	}
	for _, k := range credential.Keys {
		state := theme.HelpStyle.Render("not set")
		if stored[k] {
			state = "stored"
		}
		fmt.Println(theme.KeyValue([2]string{k, state}))
	}
	return nil
}
