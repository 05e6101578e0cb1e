// Package app wires configuration, secrets, and the pipeline components
// into a runnable application.
package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nhle/mailai/internal/ai"
	"github.com/nhle/mailai/internal/credential"
	"github.com/nhle/mailai/internal/email"
	"github.com/nhle/mailai/internal/logging"
	"github.com/nhle/mailai/internal/model"
	"github.com/nhle/mailai/internal/processor"
	"github.com/nhle/mailai/internal/store"
)

// App holds every long-lived component built from one configuration.
type App struct {
	Config   *model.AppConfig
	Log      zerolog.Logger
	Registry *ai.Registry
	Poller   *email.Poller
	Sender   *email.Sender
	Loop     *processor.Loop

	// Journal is nil unless journal.enabled is set.
	Journal store.Journal
}

// LoadConfig reads the configuration at path and, when use_keyring is
// set, fills blank secrets from the OS keyring. It does not validate.
func LoadConfig(path string) (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if !cfg.UseKeyring {
		return cfg, nil
	}

	creds, err := credential.Open()
	if err != nil {
		return nil, err
	}
	if _, err := creds.Resolve(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the application logger from cfg.
func NewLogger(cfg *model.AppConfig, w io.Writer) zerolog.Logger {
	return logging.New(cfg.Log, w)
}

// NewRegistry builds the provider registry alone, for commands that only
// talk to the AI backends.
func NewRegistry(cfg *model.AppConfig, log zerolog.Logger) *ai.Registry {
	providers := ai.NewProviders(cfg.AI.Providers, &http.Client{})
	return ai.NewRegistry(ai.OptionsFromConfig(cfg.AI), log, providers...)
}

// New validates cfg and builds the full pipeline.
func New(cfg *model.AppConfig, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: NewRegistry(cfg, log),
		Poller:   email.NewPoller(cfg.IMAP, cfg.Extract.MaxAttachmentBytes, log),
		Sender:   email.NewSender(cfg.SMTP, log),
	}

	deps := processor.Deps{
		Mailbox:  a.Poller,
		Answerer: a.Registry,
		Sender:   a.Sender,
	}

	if cfg.Journal.Enabled {
		journal, err := store.NewSQLiteStore(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("opening journal %s: %w", cfg.Journal.Path, err)
		}
		a.Journal = journal
		deps.Recorder = journal
	}

	a.Loop = processor.New(cfg, deps, log)
	return a, nil
}

// OpenJournal opens the configured journal for reading.
func OpenJournal(cfg *model.AppConfig) (store.Journal, error) {
	if !cfg.Journal.Enabled {
		return nil, errors.New("journal is disabled; set journal.enabled in the config")
	}
	return store.NewSQLiteStore(cfg.Journal.Path)
}

// Close releases the journal, if open.
func (a *App) Close() error {
	if a.Journal != nil {
		return a.Journal.Close()
	}
	return nil
}
