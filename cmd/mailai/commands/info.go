package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/mailai/internal/ai"
	"github.com/nhle/mailai/internal/app"
	"github.com/nhle/mailai/internal/credential"
	"github.com/nhle/mailai/internal/extract"
	"github.com/nhle/mailai/internal/theme"
)

const mailboxProbeTimeout = 15 * time.Second

var infoSkipMailbox bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show configuration and provider status",
	Long: `Print a summary of the loaded configuration, the availability of
each AI provider, the supported attachment formats, which secrets are in
the keyring, and the number of unseen messages in the mailbox.`,
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoSkipMailbox, "no-mailbox", false, "Do not connect to IMAP")
}

type infoJSON struct {
	ConfigPath string            `json:"config_path"`
	Mailbox    string            `json:"mailbox"`
	Relay      string            `json:"relay"`
	Keywords   []string          `json:"keywords"`
	Interval   string            `json:"interval"`
	Fallback   bool              `json:"fallback"`
	Providers  []providerJSON    `json:"providers"`
	Formats    []string          `json:"formats"`
	Keyring    map[string]bool   `json:"keyring,omitempty"`
	Unseen     *int              `json:"unseen,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signalContext()
	defer stop()

	registry := app.NewRegistry(cfg, log)
	out := infoJSON{
		ConfigPath: configPath,
		Mailbox:    fmt.Sprintf("%s@%s/%s", cfg.IMAP.Username, cfg.IMAP.Addr(), cfg.IMAP.Mailbox),
		Relay:      cfg.SMTP.Addr(),
		Keywords:   cfg.Filter.Keywords,
		Interval:   cfg.Loop.Interval.String(),
		Fallback:   cfg.AI.Fallback,
		Providers:  toProviderJSON(registry.Describe(ctx)),
		Formats:    extract.SupportedFormats(),
		Errors:     map[string]string{},
	}

	if cfg.UseKeyring {
		if creds, err := credential.Open(); err != nil {
			out.Errors["keyring"] = err.Error()
		} else if stored, err := creds.Stored(); err != nil {
			out.Errors["keyring"] = err.Error()
		} else {
			out.Keyring = stored
		}
	}

	if !infoSkipMailbox {
		a, err := app.New(cfg, log)
		if err != nil {
			out.Errors["mailbox"] = err.Error()
		} else {
			defer a.Close()
			pctx, cancel := context.WithTimeout(ctx, mailboxProbeTimeout)
			n, err := a.Poller.CountUnseen(pctx)
			cancel()
			if err != nil {
				out.Errors["mailbox"] = err.Error()
			} else {
				out.Unseen = &n
			}
		}
	}

	if outputFormat == "json" {
		return outputJSON(out)
	}

	fmt.Println(theme.HeaderStyle.Render("mailai"))
	pairs := [][2]string{
		{"Config", out.ConfigPath},
		{"Mailbox", out.Mailbox},
		{"SMTP relay", out.Relay},
		{"Keywords", strings.Join(out.Keywords, ", ")},
		{"Interval", out.Interval},
		{"Fallback", strconv.FormatBool(out.Fallback)},
		{"Formats", strings.Join(out.Formats, ", ")},
	}
	if out.Unseen != nil {
		pairs = append(pairs, [2]string{"Unseen", strconv.Itoa(*out.Unseen)})
	}
	fmt.Println(theme.KeyValue(pairs...))

	fmt.Println()
	printProviders(out.Providers)

	if out.Keyring != nil {
		fmt.Println()
		fmt.Println(theme.HeaderStyle.Render("Keyring"))
		for _, k := range credential.Keys {
			state := theme.HelpStyle.Render("not set")
			if out.Keyring[k] {
				state = "stored"
			}
			fmt.Println(theme.KeyValue([2]string{k, state}))
		}
	}

	for what, msg := range out.Errors {
		fmt.Println(theme.StatusStyle("failed").Render(what + ": " + msg))
	}
	return nil
}

type providerJSON struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Model     string `json:"model"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	Breaker   string `json:"breaker,omitempty"`
}

func toProviderJSON(infos []ai.Info) []providerJSON {
	out := make([]providerJSON, 0, len(infos))
	for _, i := range infos {
		out = append(out, providerJSON{
			Name:      i.Name,
			Label:     i.Label,
			Model:     i.Model,
			Available: i.Available,
			Reason:    i.Reason,
			Breaker:   i.Breaker,
		})
	}
	return out
}

func printProviders(providers []providerJSON) {
	fmt.Println(theme.HeaderStyle.Render("Providers"))
	for i, p := range providers {
		line := fmt.Sprintf("%d. %-20s %-28s %s", i+1, p.Label, p.Model, theme.Availability(p.Available))
		if !p.Available && p.Reason != "" {
			line += theme.HelpStyle.Render("  " + p.Reason)
		}
		fmt.Println(line)
	}
}
