package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"transcriptgen/internal/llm"
)

func loadWorkspace(t *testing.T, dir string) (Settings, error) {
	t.Helper()
	v := New()
	v.Set("workspace", dir)
	return Load(v)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(apiKeyEnvVar, "")
	s, err := loadWorkspace(t, t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Addr != "127.0.0.1:8000" || s.BasePath != "/api/v1" || s.MaxJobs != 2 || s.LLM.Parallelism != 4 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if s.LLM.Model != llm.DefaultModel || s.LLM.BaseURL != "" {
		t.Fatalf("unexpected llm defaults: %+v", s.LLM)
	}
	if got := s.LLM.ModelConfig().KeySource; got != llm.KeySourceNone {
		t.Fatalf("key source = %s", got)
	}
}

func TestLoadOllamaHasNoHostedBaseURL(t *testing.T) {
	t.Setenv(apiKeyEnvVar, "")
	t.Setenv("TRANSCRIPTGEN_LLM_PROVIDER", "ollama")
	s, err := loadWorkspace(t, t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := s.LLM.ModelConfig()
	if cfg.Provider != llm.ProviderOllama || cfg.BaseURL != "" {
		t.Fatalf("ollama config = %+v", cfg)
	}

	t.Setenv("TRANSCRIPTGEN_LLM_PROVIDER", "openai")
	s, err = loadWorkspace(t, t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	m, err := llm.NewModel(s.LLM.ModelConfig())
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	if got := m.Status().BaseURL; got != llm.DefaultBaseURL {
		t.Fatalf("openai base url = %q", got)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yml := `max-jobs: 3
llm:
  model: test-model
webhooks:
  - url: http://127.0.0.1:9/hook
    events: [job.completed]
    timeout_seconds: 2
`
	if err := os.WriteFile(Path(dir), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TRANSCRIPTGEN_MAX_JOBS", "5")
	t.Setenv("TRANSCRIPTGEN_LLM_API_KEY", "from-env-override")

	s, err := loadWorkspace(t, dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.MaxJobs != 5 {
		t.Fatalf("env should win over file, max-jobs = %d", s.MaxJobs)
	}
	if s.LLM.Model != "test-model" {
		t.Fatalf("model = %q", s.LLM.Model)
	}
	if len(s.Webhooks) != 1 || s.Webhooks[0].TimeoutSeconds != 2 || s.Webhooks[0].Events[0] != "job.completed" {
		t.Fatalf("webhooks = %+v", s.Webhooks)
	}
	cfg := s.LLM.ModelConfig()
	if cfg.APIKey != "from-env-override" || cfg.KeySource != llm.KeySourceConfig {
		t.Fatalf("model config = %+v", cfg)
	}
}

func TestAPIKeyFallsBackToDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(apiKeyEnvVar, "")
	os.Unsetenv(apiKeyEnvVar)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(apiKeyEnvVar+"=nv-123\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	s, err := loadWorkspace(t, dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := s.LLM.ModelConfig()
	if cfg.APIKey != "nv-123" || cfg.KeySource != llm.KeySourceEnv {
		t.Fatalf("model config = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	good := Settings{Addr: ":8000", BasePath: "/api/v1", LogLevel: "info", MaxJobs: 1, LLM: LLMSettings{Provider: "openai", Parallelism: 1}}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}
	cases := map[string]func(*Settings){
		"max-jobs":     func(s *Settings) { s.MaxJobs = 0 },
		"base-path":    func(s *Settings) { s.BasePath = "api" },
		"llm.provider": func(s *Settings) { s.LLM.Provider = "bard" },
		"log-level":    func(s *Settings) { s.LogLevel = "loud" },
		"webhooks[0]":  func(s *Settings) { s.Webhooks = []WebhookConfig{{URL: " "}} },
		"parallelism":  func(s *Settings) { s.LLM.Parallelism = 0 },
	}
	for want, mutate := range cases {
		s := good
		mutate(&s)
		err := s.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: got %v", want, err)
		}
	}
}

func TestSettingsJSONHidesSecrets(t *testing.T) {
	s := Settings{JWTSecret: "jwt", LLM: LLMSettings{APIKey: "key"}, Webhooks: []WebhookConfig{{URL: "u", Secret: "hook"}}}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, secret := range []string{`"jwt"`, `"key"`, `"hook"`} {
		if bytes.Contains(b, []byte(secret)) {
			t.Fatalf("secret %s leaked: %s", secret, b)
		}
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("job finished", "job", "j1")
	if strings.Contains(stderr.String(), "hidden") || !strings.Contains(stderr.String(), "job=j1") {
		t.Fatalf("stderr = %q", stderr.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(file.Bytes(), &rec); err != nil {
		t.Fatalf("file output not JSON: %v (%q)", err, file.String())
	}
	if rec["msg"] != "job finished" || rec["job"] != "j1" {
		t.Fatalf("file record = %v", rec)
	}
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tgen.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Info("hello")
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), `"msg":"hello"`) {
		t.Fatalf("log file = %q, %v", data, err)
	}
}
