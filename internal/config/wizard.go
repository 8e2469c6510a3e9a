package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// DefaultPath is where init writes and serve reads the configuration.
const DefaultPath = ".cineforum.yml"

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to cineforum! Let's configure your club.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. AI provider.
	providerPrompt := promptui.Select{
		Label: "Select AI provider for news, trivia and the chat moderator",
		Items: []string{"openai", "anthropic", "google", "ollama", "none"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.LLM.Provider = ProviderType(providerStr)
	cfg.LLM.Model = DefaultModel(cfg.LLM.Provider)
	cfg.LLM.EmbeddingProvider = embeddingProviderFor(cfg.LLM.Provider)

	// 2. Model.
	if cfg.LLM.Provider != ProviderNone {
		modelPrompt := promptui.Prompt{
			Label:   "Model",
			Default: cfg.LLM.Model,
		}
		model, err := modelPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("model: %w", err)
		}
		cfg.LLM.Model = strings.TrimSpace(model)
	}

	// 3. Port.
	portPrompt := promptui.Prompt{
		Label:   "HTTP port",
		Default: strconv.Itoa(cfg.Server.Port),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("enter a port between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	cfg.Server.Port, _ = strconv.Atoi(portStr)

	// 4. Database.
	dbPrompt := promptui.Prompt{
		Label:   "Database file",
		Default: cfg.DatabasePath,
	}
	dbPath, err := dbPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("database path: %w", err)
	}
	cfg.DatabasePath = dbPath

	// 5. Extra CORS origins.
	originsPrompt := promptui.Prompt{
		Label:   "Extra allowed origins (comma-separated, blank for localhost only)",
		Default: "",
	}
	originsStr, err := originsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("allowed origins: %w", err)
	}
	cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, splitAndTrim(originsStr)...)

	if envVar := APIKeyEnvVar(cfg.LLM.Provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before running cineforum serve.\n", envVar)
	}
	if os.Getenv(cfg.Catalog.APIKeyEnv) == "" {
		fmt.Printf("Note: Set %s to import films from the catalog.\n", cfg.Catalog.APIKeyEnv)
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// embeddingProviderFor picks the embedding backend for a given LLM provider.
// OpenAI embeddings are used for all cloud providers.
func embeddingProviderFor(p ProviderType) ProviderType {
	switch p {
	case ProviderOllama:
		return ProviderOllama
	case ProviderNone:
		return ProviderNone
	default:
		return ProviderOpenAI
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
