package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides. Nested keys use a
// double underscore: CINEFORUM_LLM__PROVIDER -> llm.provider.
const EnvPrefix = "CINEFORUM_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CINEFORUM_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel(cfg.LLM.Provider)
	}

	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[ProviderType]bool{
	ProviderNone:      true,
	ProviderAnthropic: true,
	ProviderOpenAI:    true,
	ProviderGoogle:    true,
	ProviderOllama:    true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}

	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required (use %q to disable AI features)", ProviderNone)
	}
	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("invalid llm.provider %q: must be one of none, anthropic, openai, google, ollama", c.LLM.Provider)
	}
	if c.LLM.Provider != ProviderNone && c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute must be non-negative")
	}
	if c.LLM.EmbeddingProvider != "" && c.LLM.EmbeddingProvider != ProviderNone &&
		c.LLM.EmbeddingProvider != ProviderOpenAI && c.LLM.EmbeddingProvider != ProviderOllama {
		return fmt.Errorf("invalid llm.embedding_provider %q: must be none, openai or ollama", c.LLM.EmbeddingProvider)
	}

	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}

	if c.Events.PollIntervalSeconds <= 0 {
		return fmt.Errorf("events.poll_interval_seconds must be positive")
	}
	if c.Events.VotingWindowHours <= 0 {
		return fmt.Errorf("events.voting_window_hours must be positive")
	}

	if c.Chat.MessagesPerSecond <= 0 || c.Chat.Burst <= 0 {
		return fmt.Errorf("chat.messages_per_second and chat.burst must be positive")
	}

	if c.Games.TriviaQuestions <= 0 || c.Games.TimelineFilms < 2 {
		return fmt.Errorf("games.trivia_questions must be positive and games.timeline_films at least 2")
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}
