package config

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderNone      ProviderType = "none"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderGoogle    ProviderType = "google"
	ProviderOllama    ProviderType = "ollama"
)

// Config is the top-level cineforum configuration, corresponding to .cineforum.yml.
type Config struct {
	Server       ServerConfig  `yaml:"server" koanf:"server"`
	DatabasePath string        `yaml:"database_path" koanf:"database_path"`
	LLM          LLMConfig     `yaml:"llm" koanf:"llm"`
	Catalog      CatalogConfig `yaml:"catalog" koanf:"catalog"`
	Events       EventsConfig  `yaml:"events" koanf:"events"`
	Chat         ChatConfig    `yaml:"chat" koanf:"chat"`
	Games        GamesConfig   `yaml:"games" koanf:"games"`
	Logging      LoggingConfig `yaml:"logging" koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           int      `yaml:"port" koanf:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`
}

// LLMConfig selects the generative-AI provider used for content and the chat moderator.
type LLMConfig struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	RequestsPerMinute int          `yaml:"requests_per_minute" koanf:"requests_per_minute"`
	EmbeddingProvider ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string       `yaml:"embedding_model" koanf:"embedding_model"`
}

// CatalogConfig points at the TMDB-compatible movie metadata API.
type CatalogConfig struct {
	BaseURL      string `yaml:"base_url" koanf:"base_url"`
	ImageBaseURL string `yaml:"image_base_url" koanf:"image_base_url"`
	APIKeyEnv    string `yaml:"api_key_env" koanf:"api_key_env"`
	Language     string `yaml:"language" koanf:"language"`
}

// EventsConfig controls the cineforum event lifecycle.
type EventsConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds" koanf:"poll_interval_seconds"`
	VotingWindowHours   int `yaml:"voting_window_hours" koanf:"voting_window_hours"`
}

// ChatConfig holds per-user chat flood limits.
type ChatConfig struct {
	MessagesPerSecond float64 `yaml:"messages_per_second" koanf:"messages_per_second"`
	Burst             int     `yaml:"burst" koanf:"burst"`
}

// GamesConfig sizes the mini-game rounds.
type GamesConfig struct {
	TriviaQuestions int `yaml:"trivia_questions" koanf:"trivia_questions"`
	TimelineFilms   int `yaml:"timeline_films" koanf:"timeline_films"`
}

// LoggingConfig is passed through to internal/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}
