package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/mailai/internal/model"
)

var initConfigForce bool

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a configuration template",
	Long: `Write a YAML configuration with every setting at its default value to
the --config path. Fill in the mailbox and provider credentials, or store
them with "mailai credentials set" and enable use_keyring.`,
	RunE: runInitConfig,
}

func init() {
	initConfigCmd.Flags().BoolVar(&initConfigForce, "force", false, "Overwrite an existing file")
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !initConfigForce {
		return fmt.Errorf("%s already exists; use --force to overwrite", configPath)
	}

	if err := model.SaveConfig(configPath, model.DefaultAppConfig()); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", configPath)
	return nil
}
