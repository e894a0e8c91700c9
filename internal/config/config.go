// /internal/config/config.go
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Env holds process-level settings shared by every bot.
type Env struct {
	Bots        []string `env:"BOTS" envSeparator:","`
	ConfigDir   string   `env:"BOT_CONFIG_DIR" envDefault:"configs/bots"`
	Latitude    *float64 `env:"LOCAL_LATITUDE"`
	Longitude   *float64 `env:"LOCAL_LONGITUDE"`
	StoragePath string   `env:"STORAGE_PATH" envDefault:"data/datastore.json"`
	ArtifactDir string   `env:"ARTIFACT_DIR" envDefault:"data/artifacts"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string   `env:"LOG_FILE"`

	AIProvider     string `env:"AI_PROVIDER" envDefault:"openai"`
	OpenAIKey      string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `env:"OPENAI_BASE_URL"`
	ChatModel      string `env:"OPENAI_CHAT_MODEL" envDefault:"gpt-4o-mini"`
	EmbeddingModel string `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	ImageModel     string `env:"OPENAI_IMAGE_MODEL" envDefault:"dall-e-3"`
}

// LoadEnv reads an optional .env file and parses the environment.
func LoadEnv() (*Env, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, falling back to system environment variables")
	}

	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &e, nil
}

// HasLocation reports whether both coordinates for sun events are set.
func (e *Env) HasLocation() bool {
	return e.Latitude != nil && e.Longitude != nil
}
