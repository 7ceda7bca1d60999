package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"transcriptgen/internal/llm"
)

const (
	// EnvPrefix namespaces every environment override.
	EnvPrefix    = "TRANSCRIPTGEN"
	fileName     = "transcriptgen.yml"
	apiKeyEnvVar = "NVIDIA_API_KEY"
)

// Settings is the resolved runtime configuration. Precedence is flags, then
// environment, then transcriptgen.yml, then defaults.
type Settings struct {
	Workspace string          `mapstructure:"workspace" json:"workspace"`
	Addr      string          `mapstructure:"addr" json:"addr"`
	BasePath  string          `mapstructure:"base-path" json:"basePath"`
	LogLevel  string          `mapstructure:"log-level" json:"logLevel"`
	LogFile   string          `mapstructure:"log-file" json:"logFile,omitempty"`
	MaxJobs   int             `mapstructure:"max-jobs" json:"maxJobs"`
	JWTSecret string          `mapstructure:"jwt-secret" json:"-"`
	LLM       LLMSettings     `mapstructure:"llm" json:"llm"`
	Webhooks  []WebhookConfig `mapstructure:"webhooks" json:"webhooks,omitempty"`
}

type LLMSettings struct {
	Provider    string `mapstructure:"provider" json:"provider"`
	Model       string `mapstructure:"model" json:"model"`
	BaseURL     string `mapstructure:"base-url" json:"baseUrl,omitempty"`
	APIKey      string `mapstructure:"api-key" json:"-"`
	Parallelism int    `mapstructure:"parallelism" json:"parallelism"`
	Seed        int64  `mapstructure:"seed" json:"seed,omitempty"`

	keySource llm.KeySource
}

// WebhookConfig is one outbound job-event subscriber.
type WebhookConfig struct {
	URL            string   `mapstructure:"url" json:"url"`
	Secret         string   `mapstructure:"secret" json:"-"`
	Events         []string `mapstructure:"events" json:"events,omitempty"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds" json:"timeoutSeconds,omitempty"`
	Enabled        *bool    `mapstructure:"enabled" json:"enabled,omitempty"`
}

// SetDefaults registers every key on v so AutomaticEnv can resolve it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workspace", ".")
	v.SetDefault("addr", "127.0.0.1:8000")
	v.SetDefault("base-path", "/api/v1")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-file", "")
	v.SetDefault("max-jobs", 2)
	v.SetDefault("jwt-secret", "")
	v.SetDefault("llm.provider", string(llm.ProviderOpenAI))
	v.SetDefault("llm.model", llm.DefaultModel)
	v.SetDefault("llm.base-url", "")
	v.SetDefault("llm.api-key", "")
	v.SetDefault("llm.parallelism", 4)
	v.SetDefault("llm.seed", 0)
}

// BindEnv wires TRANSCRIPTGEN_* variables; "-" and "." both map to "_".
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// New returns a viper instance with defaults and env binding in place.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

// Path returns the settings file location for the workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// Load resolves Settings from v. A .env file and transcriptgen.yml in the
// workspace are both optional.
func Load(v *viper.Viper) (Settings, error) {
	workspace := v.GetString("workspace")
	if err := loadDotEnv(workspace); err != nil {
		return Settings{}, err
	}
	path := Path(workspace)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	s.LLM.resolveKey()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func loadDotEnv(workspace string) error {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (l *LLMSettings) resolveKey() {
	switch {
	case strings.TrimSpace(l.APIKey) != "":
		l.keySource = llm.KeySourceConfig
	case os.Getenv(apiKeyEnvVar) != "":
		l.APIKey = os.Getenv(apiKeyEnvVar)
		l.keySource = llm.KeySourceEnv
	default:
		l.keySource = llm.KeySourceNone
	}
}

// ModelConfig converts the settings into the llm client configuration.
func (l LLMSettings) ModelConfig() llm.Config {
	src := l.keySource
	if src == "" {
		src = llm.KeySourceNone
		if l.APIKey != "" {
			src = llm.KeySourceConfig
		}
	}
	return llm.Config{
		Provider:  llm.Provider(l.Provider),
		Model:     l.Model,
		BaseURL:   l.BaseURL,
		APIKey:    l.APIKey,
		KeySource: src,
	}
}

// Validate ensures the settings are usable.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Addr) == "" {
		return fmt.Errorf("addr is required")
	}
	if s.BasePath != "" && !strings.HasPrefix(s.BasePath, "/") {
		return fmt.Errorf("base-path must start with '/'")
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if s.MaxJobs < 1 {
		return fmt.Errorf("max-jobs must be at least 1")
	}
	switch llm.Provider(s.LLM.Provider) {
	case llm.ProviderOpenAI, llm.ProviderOllama, llm.ProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider %q is not supported", s.LLM.Provider)
	}
	if s.LLM.Parallelism < 1 {
		return fmt.Errorf("llm.parallelism must be at least 1")
	}
	for i, hook := range s.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// ParseLevel maps a log-level name onto slog.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log-level %q is not one of debug, info, warn, error", name)
	}
}
