package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/nhle/mailai/internal/failure"
)

// Provider names accepted in configuration and on the command line.
const (
	ProviderChatGPT = "chatgpt"
	ProviderGemini  = "gemini"
	ProviderClaude  = "claude"
	ProviderOllama  = "ollama"
)

// KnownProviders lists every provider name in default priority order.
// Remote providers come first and the local Ollama server last.
var KnownProviders = []string{
	ProviderChatGPT, ProviderGemini, ProviderClaude, ProviderOllama,
}

// Connection security modes for IMAP and SMTP.
const (
	SecurityTLS      = "tls"
	SecurityStartTLS = "starttls"
	SecurityNone     = "none"
)

// DefaultKeywords is the keyword set used when none is configured.
var DefaultKeywords = []string{
	"AI", "IA", "Artificial Intelligence", "Inteligencia Artificial",
	"Machine Learning", "ChatGPT", "GPT", "Gemini", "Ollama", "Claude",
}

// IMAPConfig holds the inbound mailbox settings.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`

	// Security is one of "tls", "starttls" or "none".
	Security string `mapstructure:"security" yaml:"security"`
	Mailbox  string `mapstructure:"mailbox" yaml:"mailbox"`
}

// Addr returns host:port.
func (c IMAPConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// SMTPConfig holds the outbound relay settings for sending replies.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Security string `mapstructure:"security" yaml:"security"`

	// From is the envelope and header sender. Defaults to Username.
	From    string        `mapstructure:"from" yaml:"from"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Addr returns host:port.
func (c SMTPConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// ProviderConfig holds the credentials and defaults of one AI backend.
type ProviderConfig struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	Model     string `mapstructure:"model" yaml:"model"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ProvidersConfig groups the per-backend settings.
type ProvidersConfig struct {
	ChatGPT ProviderConfig `mapstructure:"chatgpt" yaml:"chatgpt"`
	Gemini  ProviderConfig `mapstructure:"gemini" yaml:"gemini"`
	Claude  ProviderConfig `mapstructure:"claude" yaml:"claude"`
	Ollama  ProviderConfig `mapstructure:"ollama" yaml:"ollama"`
}

// AIConfig holds provider selection and fallback settings.
type AIConfig struct {
	DefaultProvider string   `mapstructure:"default_provider" yaml:"default_provider"`
	Fallback        bool     `mapstructure:"fallback" yaml:"fallback"`
	Order           []string `mapstructure:"order" yaml:"order"`

	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`

	// BreakerFailures consecutive failures open a provider's circuit
	// for BreakerCooldown. Zero disables the breaker.
	BreakerFailures uint32        `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown"`

	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
}

// FilterConfig holds the subject keyword set.
type FilterConfig struct {
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
}

// ExtractConfig bounds attachment handling.
type ExtractConfig struct {
	// MaxAttachmentBytes is the largest attachment payload kept in memory.
	MaxAttachmentBytes int64 `mapstructure:"max_attachment_bytes" yaml:"max_attachment_bytes"`

	// MaxDocumentChars truncates extracted text. Zero means unlimited.
	MaxDocumentChars int `mapstructure:"max_document_chars" yaml:"max_document_chars"`
}

// LoopConfig controls polling cadence and per-cycle limits.
type LoopConfig struct {
	Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
	MaxMessages  int           `mapstructure:"max_messages" yaml:"max_messages"`
	CycleTimeout time.Duration `mapstructure:"cycle_timeout" yaml:"cycle_timeout"`
}

// PromptTemplate swaps the base instructions when one of its keywords
// appears in the request text.
type PromptTemplate struct {
	Name         string   `mapstructure:"name" yaml:"name"`
	Keywords     []string `mapstructure:"keywords" yaml:"keywords"`
	Priority     int      `mapstructure:"priority" yaml:"priority"`
	Instructions string   `mapstructure:"instructions" yaml:"instructions"`
}

// PromptConfig holds the instructions sent ahead of every request.
type PromptConfig struct {
	Instructions string           `mapstructure:"instructions" yaml:"instructions"`
	Templates    []PromptTemplate `mapstructure:"templates" yaml:"templates"`
}

// JournalConfig controls the optional sqlite outcome journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	IMAP    IMAPConfig    `mapstructure:"imap" yaml:"imap"`
	SMTP    SMTPConfig    `mapstructure:"smtp" yaml:"smtp"`
	AI      AIConfig      `mapstructure:"ai" yaml:"ai"`
	Filter  FilterConfig  `mapstructure:"filter" yaml:"filter"`
	Extract ExtractConfig `mapstructure:"extract" yaml:"extract"`
	Loop    LoopConfig    `mapstructure:"loop" yaml:"loop"`
	Prompt  PromptConfig  `mapstructure:"prompt" yaml:"prompt"`
	Journal JournalConfig `mapstructure:"journal" yaml:"journal"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`

	// UseKeyring resolves blank secrets from the OS keyring.
	UseKeyring bool `mapstructure:"use_keyring" yaml:"use_keyring"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailai/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailai", "config.yaml")
}

// DefaultJournalPath returns ~/.config/mailai/journal.db.
func DefaultJournalPath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "journal.db")
}

// DefaultInstructions is prepended to every prompt unless configured.
const DefaultInstructions = "You are an assistant that answers questions " +
	"received by email. Answer clearly and concisely in the language of " +
	"the question. When documents are attached, use their content to " +
	"answer and say so when they do not contain the answer."

// DefaultAppConfig returns the configuration used for every key that is
// not set in the file or environment.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		IMAP: IMAPConfig{
			Host:     "imap.gmail.com",
			Port:     993,
			Security: SecurityTLS,
			Mailbox:  "INBOX",
		},
		SMTP: SMTPConfig{
			Host:     "smtp.gmail.com",
			Port:     587,
			Security: SecurityStartTLS,
			Timeout:  30 * time.Second,
		},
		AI: AIConfig{
			DefaultProvider: ProviderChatGPT,
			Fallback:        true,
			Order:           slices.Clone(KnownProviders),
			QueryTimeout:    120 * time.Second,
			ProbeTimeout:    5 * time.Second,
			BreakerFailures: 3,
			BreakerCooldown: 5 * time.Minute,
			Providers: ProvidersConfig{
				ChatGPT: ProviderConfig{Model: "gpt-5-mini"},
				Gemini: ProviderConfig{
					Model:   "gemini-1.5-flash",
					BaseURL: "https://generativelanguage.googleapis.com/v1beta",
				},
				Claude: ProviderConfig{
					Model:     "claude-sonnet-4-5-20250929",
					BaseURL:   "https://api.anthropic.com/v1",
					MaxTokens: 2048,
				},
				Ollama: ProviderConfig{
					Model:   "gpt-oss:20b",
					BaseURL: "http://localhost:11434",
				},
			},
		},
		Filter: FilterConfig{Keywords: slices.Clone(DefaultKeywords)},
		Extract: ExtractConfig{
			MaxAttachmentBytes: 10 << 20,
			MaxDocumentChars:   10000,
		},
		Loop: LoopConfig{
			Interval:     5 * time.Minute,
			MaxMessages:  10,
			CycleTimeout: 15 * time.Minute,
		},
		Prompt:  PromptConfig{Instructions: DefaultInstructions},
		Journal: JournalConfig{Path: DefaultJournalPath()},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// legacyEnv maps configuration keys to the plain environment variable
// names accepted alongside the MAILAI_ prefixed ones.
var legacyEnv = map[string][]string{
	"imap.host":                     {"IMAP_SERVER"},
	"imap.port":                     {"IMAP_PORT"},
	"imap.username":                 {"EMAIL_ADDRESS"},
	"imap.password":                 {"EMAIL_PASSWORD"},
	"smtp.host":                     {"SMTP_SERVER"},
	"smtp.port":                     {"SMTP_PORT"},
	"ai.default_provider":           {"DEFAULT_AI_PROVIDER"},
	"ai.fallback":                   {"ENABLE_FALLBACK"},
	"ai.order":                      {"FALLBACK_ORDER"},
	"ai.providers.chatgpt.api_key":  {"OPENAI_API_KEY"},
	"ai.providers.chatgpt.model":    {"OPENAI_MODEL"},
	"ai.providers.gemini.api_key":   {"GEMINI_API_KEY"},
	"ai.providers.gemini.model":     {"GEMINI_MODEL"},
	"ai.providers.claude.api_key":   {"ANTHROPIC_API_KEY"},
	"ai.providers.claude.model":     {"ANTHROPIC_MODEL"},
	"ai.providers.ollama.base_url":  {"OLLAMA_URL"},
	"ai.providers.ollama.model":     {"OLLAMA_MODEL_DEFAULT"},
	"filter.keywords":               {"AI_KEYWORDS"},
	"loop.interval":                 {"CHECK_INTERVAL"},
	"extract.max_document_chars":    {"MAX_DOCUMENT_SIZE"},
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// overlaid with environment variables. A missing file is not an error.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultAppConfig())

	for key, names := range legacyEnv {
		envKey := "MAILAI_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envKey}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !os.IsNotExist(err) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsDurationHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// leaves flattens cfg into dotted viper keys. Prompt templates are not
// included; they are only read from the file.
func leaves(cfg *AppConfig) map[string]any {
	m := map[string]any{
		"imap.host":     cfg.IMAP.Host,
		"imap.port":     cfg.IMAP.Port,
		"imap.username": cfg.IMAP.Username,
		"imap.password": cfg.IMAP.Password,
		"imap.security": cfg.IMAP.Security,
		"imap.mailbox":  cfg.IMAP.Mailbox,

		"smtp.host":     cfg.SMTP.Host,
		"smtp.port":     cfg.SMTP.Port,
		"smtp.username": cfg.SMTP.Username,
		"smtp.password": cfg.SMTP.Password,
		"smtp.security": cfg.SMTP.Security,
		"smtp.from":     cfg.SMTP.From,
		"smtp.timeout":  cfg.SMTP.Timeout,

		"ai.default_provider": cfg.AI.DefaultProvider,
		"ai.fallback":         cfg.AI.Fallback,
		"ai.order":            cfg.AI.Order,
		"ai.query_timeout":    cfg.AI.QueryTimeout,
		"ai.probe_timeout":    cfg.AI.ProbeTimeout,
		"ai.breaker_failures": cfg.AI.BreakerFailures,
		"ai.breaker_cooldown": cfg.AI.BreakerCooldown,

		"filter.keywords":              cfg.Filter.Keywords,
		"extract.max_attachment_bytes": cfg.Extract.MaxAttachmentBytes,
		"extract.max_document_chars":   cfg.Extract.MaxDocumentChars,
		"loop.interval":                cfg.Loop.Interval,
		"loop.max_messages":            cfg.Loop.MaxMessages,
		"loop.cycle_timeout":           cfg.Loop.CycleTimeout,
		"prompt.instructions":          cfg.Prompt.Instructions,
		"journal.enabled":              cfg.Journal.Enabled,
		"journal.path":                 cfg.Journal.Path,
		"log.level":                    cfg.Log.Level,
		"log.format":                   cfg.Log.Format,
		"use_keyring":                  cfg.UseKeyring,
	}

	providers := map[string]ProviderConfig{
		ProviderChatGPT: cfg.AI.Providers.ChatGPT,
		ProviderGemini:  cfg.AI.Providers.Gemini,
		ProviderClaude:  cfg.AI.Providers.Claude,
		ProviderOllama:  cfg.AI.Providers.Ollama,
	}
	for name, p := range providers {
		prefix := "ai.providers." + name + "."
		m[prefix+"api_key"] = p.APIKey
		m[prefix+"model"] = p.Model
		m[prefix+"base_url"] = p.BaseURL
		m[prefix+"max_tokens"] = p.MaxTokens
	}
	return m
}

// setDefaults registers every leaf of cfg so that AutomaticEnv can
// override keys that never appear in the file.
func setDefaults(v *viper.Viper, cfg *AppConfig) {
	for key, value := range leaves(cfg) {
		v.SetDefault(key, value)
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsDurationHook reads bare numbers as seconds, so CHECK_INTERVAL=300
// and "interval: 300" both mean five minutes.
func secondsDurationHook(_ reflect.Type, t reflect.Type, data any) (any, error) {
	if t != durationType {
		return data, nil
	}
	switch d := data.(type) {
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(d)); err == nil {
			return time.Duration(n) * time.Second, nil
		}
	}
	return data, nil
}

// normalize trims list values and fills fields derived from others.
func (c *AppConfig) normalize() {
	c.Filter.Keywords = cleanList(c.Filter.Keywords)
	c.AI.Order = cleanList(c.AI.Order)
	for i, name := range c.AI.Order {
		c.AI.Order[i] = strings.ToLower(name)
	}
	c.AI.DefaultProvider = strings.ToLower(strings.TrimSpace(c.AI.DefaultProvider))
	c.IMAP.Security = strings.ToLower(c.IMAP.Security)
	c.SMTP.Security = strings.ToLower(c.SMTP.Security)

	if c.SMTP.Username == "" {
		c.SMTP.Username = c.IMAP.Username
	}
	if c.SMTP.Password == "" {
		c.SMTP.Password = c.IMAP.Password
	}
	if c.SMTP.From == "" {
		c.SMTP.From = c.SMTP.Username
	}
	if c.IMAP.Mailbox == "" {
		c.IMAP.Mailbox = "INBOX"
	}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports the first setting that makes the pipeline unusable as
// a configuration failure.
func (c *AppConfig) Validate() error {
	switch {
	case c.IMAP.Host == "":
		return failure.Configuration("imap.host is required")
	case c.IMAP.Username == "" || c.IMAP.Password == "":
		return failure.Configuration("imap credentials are required")
	case c.SMTP.Host == "":
		return failure.Configuration("smtp.host is required")
	case c.SMTP.From == "":
		return failure.Configuration("smtp.from is required")
	case len(c.Filter.Keywords) == 0:
		return failure.Configuration("filter.keywords is empty")
	case c.Loop.Interval <= 0:
		return failure.Configuration("loop.interval must be positive")
	case c.Loop.MaxMessages < 0:
		return failure.Configuration("loop.max_messages must not be negative")
	}

	for _, sec := range []string{c.IMAP.Security, c.SMTP.Security} {
		if !slices.Contains([]string{SecurityTLS, SecurityStartTLS, SecurityNone}, sec) {
			return failure.Configuration(fmt.Sprintf("unknown security mode %q", sec))
		}
	}

	for _, name := range c.AI.Order {
		if !slices.Contains(KnownProviders, name) {
			return failure.Configuration(fmt.Sprintf("unknown provider %q in ai.order", name))
		}
	}
	if c.AI.DefaultProvider != "" && !slices.Contains(KnownProviders, c.AI.DefaultProvider) {
		return failure.Configuration(fmt.Sprintf("unknown default provider %q", c.AI.DefaultProvider))
	}

	return nil
}

// Provider returns the settings for the named backend.
func (c *AppConfig) Provider(name string) (ProviderConfig, bool) {
	switch name {
	case ProviderChatGPT:
		return c.AI.Providers.ChatGPT, true
	case ProviderGemini:
		return c.AI.Providers.Gemini, true
	case ProviderClaude:
		return c.AI.Providers.Claude, true
	case ProviderOllama:
		return c.AI.Providers.Ollama, true
	}
	return ProviderConfig{}, false
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Durations go out as strings; a bare number reads back as seconds.
	for key, value := range leaves(cfg) {
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		v.Set(key, value)
	}
	if len(cfg.Prompt.Templates) > 0 {
		v.Set("prompt.templates", cfg.Prompt.Templates)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
