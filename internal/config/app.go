package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/parley/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"PARLEY_RUNTIME_PATH" envDefault:".parley"`

	// Transport Flags
	EnableHTTP bool   `env:"ENABLE_HTTP" envDefault:"true"`
	HTTPAddr   string `env:"HTTP_ADDR" envDefault:":8000"`
	EnableCLI  bool   `env:"ENABLE_CLI" envDefault:"false"`

	// Context Management
	TokenThreshold       int `env:"TOKEN_THRESHOLD" envDefault:"3000"`
	MaxContextMessages   int `env:"MAX_CONTEXT_MESSAGES" envDefault:"12"`
	SummarizeMinMessages int `env:"SUMMARIZE_MIN_MESSAGES" envDefault:"8"`
	KeepRecent           int `env:"KEEP_RECENT" envDefault:"3"`

	SystemPrompt string `env:"SYSTEM_PROMPT" envDefault:"You are a precise and helpful assistant. Answer clearly, concretely and in the user's language."`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "parley.db")
}
