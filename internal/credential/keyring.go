// Package credential keeps mail and provider secrets in the OS keyring.
package credential

import (
	"errors"
	"fmt"
	"slices"

	"github.com/99designs/keyring"

	"github.com/nhle/mailai/internal/model"
)

const serviceName = "mailai"

// Secret names understood by Resolve and the credentials command.
const (
	KeyIMAPPassword = "imap-password"
	KeySMTPPassword = "smtp-password"
	KeyOpenAI       = "openai-api-key"
	KeyGemini       = "gemini-api-key"
	KeyClaude       = "claude-api-key"
)

// Keys lists every known secret name.
var Keys = []string{KeyIMAPPassword, KeySMTPPassword, KeyOpenAI, KeyGemini, KeyClaude}

// ErrUnknownKey is returned for a secret name not in Keys.
var ErrUnknownKey = errors.New("unknown credential key")

// Store reads and writes secrets in a keyring.
type Store struct {
	ring keyring.Keyring
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Open opens the system keyring, falling back to an encrypted file under
// ~/.config/mailai/credentials.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailai/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailai-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return New(ring), nil
}

func checkKey(key string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	return nil
}

// Get retrieves a secret. A missing secret returns keyring.ErrKeyNotFound.
func (s *Store) Get(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	item, err := s.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a secret.
func (s *Store) Set(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "mailai " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a secret.
func (s *Store) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Stored reports which known secrets are present.
func (s *Store) Stored() (map[string]bool, error) {
	names, err := s.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	out := make(map[string]bool, len(Keys))
	for _, k := range Keys {
		out[k] = slices.Contains(names, k)
	}
	return out, nil
}

// Resolve fills every blank secret in cfg from the keyring and returns
// the names it filled. Values already present in cfg win.
func (s *Store) Resolve(cfg *model.AppConfig) ([]string, error) {
	targets := map[string]*string{
		KeyIMAPPassword: &cfg.IMAP.Password,
		KeySMTPPassword: &cfg.SMTP.Password,
		KeyOpenAI:       &cfg.AI.Providers.ChatGPT.APIKey,
		KeyGemini:       &cfg.AI.Providers.Gemini.APIKey,
		KeyClaude:       &cfg.AI.Providers.Claude.APIKey,
	}

	var filled []string
	for _, key := range Keys {
		dst := targets[key]
		if *dst != "" {
			continue
		}
		val, err := s.Get(key)
		if errors.Is(err, keyring.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return filled, err
		}
		*dst = val
		filled = append(filled, key)
	}

	// The SMTP password defaults to the IMAP one, as in LoadConfig.
	if cfg.SMTP.Password == "" && cfg.SMTP.Username == cfg.IMAP.Username {
		cfg.SMTP.Password = cfg.IMAP.Password
	}
	return filled, nil
}
