// Package commands implements the mailai command line.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nhle/mailai/internal/model"
)

var (
	// configPath is the YAML configuration file.
	configPath string

	// envFile is loaded into the environment before the configuration.
	envFile string

	// logLevel overrides log.level when set.
	logLevel string

	// outputFormat controls output format (text, json).
	outputFormat string
)

// rootCmd is the base command for the CLI. Without a subcommand it opens
// the interactive menu.
var rootCmd = &cobra.Command{
	Use:   "mailai",
	Short: "Answer email with AI",
	Long: `mailai watches an IMAP mailbox for messages whose subject carries one of
the configured keywords, reads their text and PDF or DOCX attachments,
asks an AI provider (with fallback to the next one), and replies in the
same thread over SMTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env file is fine; the environment may be set already.
		_ = godotenv.Load(envFile)
		return nil
	},
	RunE: runMenu,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", model.DefaultConfigPath(),
		"Path to the YAML configuration file",
	)
	rootCmd.PersistentFlags().StringVar(
		&envFile, "env-file", ".env",
		"Environment file loaded before the configuration",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"Log level override (debug, info, warn, error)",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(menuCmd)
}
