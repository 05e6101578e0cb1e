package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

const (
	menuProcessOnce = "once"
	menuMonitor     = "monitor"
	menuProviders   = "providers"
	menuAsk         = "ask"
	menuExit        = "exit"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Choose an action interactively",
	RunE:  runMenu,
}

func runMenu(cmd *cobra.Command, args []string) error {
	for {
		var choice string
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("mailai").
					Options(
						huh.NewOption("Process unseen requests once", menuProcessOnce),
						huh.NewOption("Monitor the mailbox", menuMonitor),
						huh.NewOption("List AI providers", menuProviders),
						huh.NewOption("Ask a question", menuAsk),
						huh.NewOption("Exit", menuExit),
					).
					Value(&choice),
			),
		).Run()
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		if err != nil {
			return err
		}

		switch choice {
		case menuProcessOnce:
			err = runOnce(cmd, nil)
		case menuMonitor:
			err = runMonitor(cmd, nil)
		case menuProviders:
			err = runProvidersList(cmd, nil)
		case menuAsk:
			err = menuQuestion(cmd)
		case menuExit:
			return nil
		}
		if err != nil {
			fmt.Println("error:", err)
		}
		fmt.Println()
	}
}

func menuQuestion(cmd *cobra.Command) error {
	var question string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Question").
				Value(&question),
		),
	).Run()
	if err != nil {
		return err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil
	}
	return runAsk(cmd, []string{question})
}
