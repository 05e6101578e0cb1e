package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/nhle/mailai/internal/app"
	"github.com/nhle/mailai/internal/model"
	"github.com/nhle/mailai/internal/processor"
	"github.com/nhle/mailai/internal/theme"
)

// loadConfig reads the configuration and applies command line overrides.
func loadConfig() (*model.AppConfig, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// newLogger writes logs to stderr so stdout stays clean for output.
func newLogger(cfg *model.AppConfig) zerolog.Logger {
	return app.NewLogger(cfg, os.Stderr)
}

// loadApp loads the configuration and builds the full pipeline, logging
// to stderr.
func loadApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, newLogger(cfg))
}

// loadAppLoggingTo is loadApp with logs written to w.
func loadAppLoggingTo(w io.Writer) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, app.NewLogger(cfg, w))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// outputJSON prints v as indented JSON.
func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// jsonResult is the JSON form of model.ProcessingResult.
type jsonResult struct {
	UID      uint32 `json:"uid"`
	From     string `json:"from,omitempty"`
	Subject  string `json:"subject"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// jsonReport is the JSON form of model.CycleReport.
type jsonReport struct {
	ID         string       `json:"id"`
	Mode       string       `json:"mode"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Delivered  int          `json:"delivered"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Error      string       `json:"error,omitempty"`
	Results    []jsonResult `json:"results"`
}

func toJSONResults(results []model.ProcessingResult) []jsonResult {
	out := make([]jsonResult, 0, len(results))
	for _, r := range results {
		out = append(out, jsonResult{
			UID:      r.UID,
			From:     r.From,
			Subject:  r.Subject,
			Status:   string(r.Status),
			Stage:    string(r.Stage),
			Kind:     string(r.Kind),
			Provider: r.Provider,
			Model:    r.Model,
			Reason:   r.Reason,
		})
	}
	return out
}

func toJSONReport(r *model.CycleReport) jsonReport {
	c := r.Counts()
	out := jsonReport{
		ID:         r.ID.String(),
		Mode:       string(r.Mode),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Delivered:  c.Delivered,
		Skipped:    c.Skipped,
		Failed:     c.Failed,
		Results:    toJSONResults(r.Results),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

// printReport writes a cycle report in the selected output format.
func printReport(r *model.CycleReport) error {
	if outputFormat == "json" {
		return outputJSON(toJSONReport(r))
	}

	fmt.Printf("%s %s\n", theme.HeaderStyle.Render("cycle "+r.ID.String()[:8]), theme.Counts(r.Counts()))
	for _, res := range r.Results {
		fmt.Println("  " + theme.Result(res))
	}
	if len(r.Results) == 0 && r.Err == nil {
		fmt.Println(theme.HelpStyle.Render("  no new requests"))
	}
	if r.Err != nil {
		fmt.Println("  " + theme.StatusStyle(model.StatusFailed).Render("aborted: "+r.Err.Error()))
	}
	return nil
}

// loopFlags are shared by run and monitor.
type loopFlags struct {
	provider    string
	model       string
	maxMessages int
}

func (f loopFlags) options() processor.Options {
	return processor.Options{
		Provider:    f.provider,
		Model:       f.model,
		MaxMessages: f.maxMessages,
	}
}
