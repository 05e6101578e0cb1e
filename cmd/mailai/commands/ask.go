package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mailai/internal/app"
	"github.com/nhle/mailai/internal/theme"
	"github.com/nhle/mailai/internal/ui/chat"
)

var (
	askProvider string
	askModel    string
)

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Ask a single question through the provider chain",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive chat with the provider chain",
	RunE:  runChat,
}

func init() {
	for _, c := range []*cobra.Command{askCmd, chatCmd} {
		c.Flags().StringVarP(&askProvider, "provider", "p", "", "Provider to try first")
		c.Flags().StringVarP(&askModel, "model", "m", "", "Model override for --provider")
	}
}

type askJSON struct {
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Answer   string   `json:"answer"`
	Attempts []string `json:"attempts,omitempty"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry := app.NewRegistry(cfg, newLogger(cfg))

	ctx, stop := signalContext()
	defer stop()

	return ask(ctx, registry, strings.Join(args, " "))
}

func ask(ctx context.Context, answerer chat.Answerer, question string) error {
	answer, err := answerer.Query(ctx, question, askProvider, askModel)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(askJSON{
			Provider: answer.Provider,
			Model:    answer.Model,
			Answer:   answer.Text,
			Attempts: answer.Attempts,
		})
	}

	fmt.Println(strings.TrimSpace(answer.Text))
	fmt.Println(theme.HelpStyle.Render(fmt.Sprintf("-- %s (%s)", answer.Label, answer.Model)))
	for _, a := range answer.Attempts {
		fmt.Println(theme.HelpStyle.Render("   skipped " + a))
	}
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The panel owns the screen; provider logs would tear it.
	registry := app.NewRegistry(cfg, app.NewLogger(cfg, io.Discard))
	return chat.Run(registry, askProvider, askModel, cfg.AI.QueryTimeout)
}
