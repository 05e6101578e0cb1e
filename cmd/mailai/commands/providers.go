package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/mailai/internal/app"
	"github.com/nhle/mailai/internal/theme"
)

// sampleQuestions are sent by "providers test".
var sampleQuestions = []string{
	"What is 2+2? Answer with the number only.",
	"Name the capital of France in one word.",
}

var providersCmd = &cobra.Command{
	Use:     "providers",
	Aliases: []string{"list-providers"},
	Short:   "List AI providers in priority order",
	RunE:    runProvidersList,
}

var providersTestCmd = &cobra.Command{
	Use:   "test [provider...]",
	Short: "Send sample questions to each available provider",
	Long: `Ask every available provider (or only the named ones) a couple of
short questions and report the answer and latency. Fallback is not used:
each provider answers for itself.`,
	RunE: runProvidersTest,
}

func init() {
	providersCmd.AddCommand(providersTestCmd)
}

func runProvidersList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	providers := toProviderJSON(app.NewRegistry(cfg, newLogger(cfg)).Describe(ctx))
	if outputFormat == "json" {
		return outputJSON(providers)
	}
	printProviders(providers)
	return nil
}

type providerTestJSON struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	Error    string `json:"error,omitempty"`
	Elapsed  string `json:"elapsed"`
}

func runProvidersTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry := app.NewRegistry(cfg, newLogger(cfg))

	ctx, stop := signalContext()
	defer stop()

	wanted := make(map[string]bool, len(args))
	for _, a := range args {
		wanted[strings.ToLower(a)] = true
	}

	var results []providerTestJSON
	for _, p := range registry.ResolveOrder(ctx, "") {
		if len(wanted) > 0 && !wanted[p.Name()] {
			continue
		}
		if outputFormat != "json" {
			fmt.Println(theme.HeaderStyle.Render(p.Label()) + theme.HelpStyle.Render("  "+p.DefaultModel()))
		}
		for _, q := range sampleQuestions {
			qctx, cancel := context.WithTimeout(ctx, cfg.AI.QueryTimeout)
			start := time.Now()
			answer, err := p.Query(qctx, q, p.DefaultModel())
			cancel()

			r := providerTestJSON{
				Provider: p.Name(),
				Model:    p.DefaultModel(),
				Question: q,
				Answer:   strings.TrimSpace(answer),
				Elapsed:  time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				r.Error = err.Error()
			}
			results = append(results, r)

			if outputFormat != "json" {
				fmt.Println("  Q: " + q)
				if err != nil {
					fmt.Println("  " + theme.StatusStyle("failed").Render("error: "+r.Error))
				} else {
					fmt.Printf("  A: %s %s\n", r.Answer, theme.HelpStyle.Render("("+r.Elapsed+")"))
				}
			}
		}
	}

	if outputFormat == "json" {
		return outputJSON(results)
	}
	if len(results) == 0 {
		fmt.Println(theme.HelpStyle.Render("no available provider to test"))
	}
	return nil
}
