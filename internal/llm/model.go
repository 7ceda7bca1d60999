package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
	ProviderAnthropic Provider = "anthropic"
)

const (
	DefaultBaseURL = "https://integrate.api.nvidia.com/v1"
	DefaultModel   = "meta/llama-3.3-70b-instruct"
)

// KeySource tells where the API key came from.
type KeySource string

const (
	KeySourceConfig KeySource = "config"
	KeySourceEnv    KeySource = "env"
	KeySourceNone   KeySource = "none"
)

// ErrNotConfigured is returned when a provider needs a key that is missing.
var ErrNotConfigured = errors.New("llm api key not configured")

type Config struct {
	Provider  Provider
	Model     string
	BaseURL   string
	APIKey    string
	KeySource KeySource
}

// Status is the externally visible view of a Config. The key is never exposed.
type Status struct {
	Provider   Provider  `json:"provider"`
	Model      string    `json:"model"`
	BaseURL    string    `json:"baseUrl,omitempty"`
	Configured bool      `json:"configured"`
	Source     KeySource `json:"source"`
}

// Model wraps a langchaingo model for structured generation.
type Model struct {
	llm llms.Model
	cfg Config
}

// NewModel creates the provider client. A missing key is not an error here;
// calls fail with ErrNotConfigured so the server can still start.
func NewModel(cfg Config) (*Model, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.KeySource == "" {
		cfg.KeySource = KeySourceNone
		if cfg.APIKey != "" {
			cfg.KeySource = KeySourceConfig
		}
	}
	if cfg.Provider == ProviderOpenAI && cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	m := &Model{cfg: cfg}
	if cfg.Provider != ProviderOllama && cfg.APIKey == "" {
		return m, nil
	}

	var err error
	switch cfg.Provider {
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model), ollama.WithFormat("json")}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		m.llm, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		m.llm, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(cfg.BaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		m.llm, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	return m, nil
}

// Configured reports whether calls can reach a provider.
func (m *Model) Configured() bool {
	return m.llm != nil
}

func (m *Model) Status() Status {
	return Status{
		Provider:   m.cfg.Provider,
		Model:      m.cfg.Model,
		BaseURL:    m.cfg.BaseURL,
		Configured: m.Configured(),
		Source:     m.cfg.KeySource,
	}
}

// GenerateJSON asks the model for a single JSON object and returns its raw text.
func (m *Model) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	if m.llm == nil {
		return "", ErrNotConfigured
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "You produce a single JSON object and nothing else."),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := m.llm.GenerateContent(ctx, messages, llms.WithJSONMode())
	if err != nil {
		return "", fmt.Errorf("generate json: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return StripFence(resp.Choices[0].Content), nil
}

// Ping sends a minimal prompt to verify credentials.
func (m *Model) Ping(ctx context.Context) error {
	if m.llm == nil {
		return ErrNotConfigured
	}
	if _, err := llms.GenerateFromSinglePrompt(ctx, m.llm, "Reply with OK.", llms.WithMaxTokens(4)); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// StripFence removes a surrounding ```json fence some models add even in JSON mode.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
