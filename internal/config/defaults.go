package config

// defaultModels maps each provider to the model used when none is configured.
var defaultModels = map[ProviderType]string{
	ProviderAnthropic: "claude-haiku-4-5-20251001",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderGoogle:    "gemini-2.0-flash",
	ProviderOllama:    "llama3",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
		DatabasePath: "data/cineforum.db",
		LLM: LLMConfig{
			Provider:          ProviderOpenAI,
			Model:             defaultModels[ProviderOpenAI],
			RequestsPerMinute: 30,
			EmbeddingProvider: ProviderOpenAI,
			EmbeddingModel:    "text-embedding-3-small",
		},
		Catalog: CatalogConfig{
			BaseURL:      "https://api.themoviedb.org/3",
			ImageBaseURL: "https://image.tmdb.org/t/p/w500",
			APIKeyEnv:    "TMDB_API_KEY",
			Language:     "it-IT",
		},
		Events: EventsConfig{
			PollIntervalSeconds: 60,
			VotingWindowHours:   72,
		},
		Chat: ChatConfig{
			MessagesPerSecond: 1,
			Burst:             5,
		},
		Games: GamesConfig{
			TriviaQuestions: 5,
			TimelineFilms:   5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultModel returns the default model for the given provider, or "" if unknown.
func DefaultModel(provider ProviderType) string {
	return defaultModels[provider]
}
