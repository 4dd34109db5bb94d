package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Getter resolves a named parameter from an external store (SSM). May be nil
// when no parameter prefix is configured.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Config aggregates every startup option. Read once at startup; no hot
// reload.
type Config struct {
	BotToken  string
	OpenAIKey string
	Model     string
	BaseURL   string

	MaxTokens      int
	RequestTimeout time.Duration
	MaxRetries     int

	OrgName string
	BotName string

	StateTable  string // empty disables the durable mirror and export sink
	ParamPrefix string
	SelfTest    bool
}

// Load reads the environment, falls back to the parameter store for missing
// credentials when a prefix is set, and validates. A missing required
// credential is fatal here, before the bot starts serving.
func Load(ctx context.Context, params Getter) (*Config, error) {
	cfg := &Config{
		BotToken:    strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		OpenAIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Model:       envDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
		BaseURL:     strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		OrgName:     envDefault("ORG_NAME", "Your Company"),
		BotName:     envDefault("BOT_NAME", "Helpdesk Assistant"),
		StateTable:  strings.TrimSpace(os.Getenv("STATE_TABLE")),
		ParamPrefix: strings.TrimRight(strings.TrimSpace(os.Getenv("PARAM_PREFIX")), "/"),
		SelfTest:    os.Getenv("SELF_TEST") == "1",
	}

	var err error
	if cfg.MaxTokens, err = envInt("MAX_TOKENS", 512); err != nil {
		return nil, err
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("config: MAX_TOKENS must be positive")
	}
	timeoutSecs, err := envInt("REQUEST_TIMEOUT", 20)
	if err != nil {
		return nil, err
	}
	if timeoutSecs <= 0 {
		return nil, fmt.Errorf("config: REQUEST_TIMEOUT must be positive")
	}
	cfg.RequestTimeout = time.Duration(timeoutSecs) * time.Second
	if cfg.MaxRetries, err = envInt("RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("config: RETRIES must not be negative")
	}

	if err := cfg.resolveCredentials(ctx, params); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolveCredentials(ctx context.Context, params Getter) error {
	if c.BotToken == "" && c.ParamPrefix != "" && params != nil {
		v, err := params.GetParameter(ctx, c.ParamPrefix+"/telegram-bot-token")
		if err != nil {
			return fmt.Errorf("config: fetch bot token: %w", err)
		}
		c.BotToken = strings.TrimSpace(v)
	}
	if c.OpenAIKey == "" && c.ParamPrefix != "" && params != nil {
		v, err := params.GetParameter(ctx, c.ParamPrefix+"/openai-api-key")
		if err != nil {
			return fmt.Errorf("config: fetch openai key: %w", err)
		}
		c.OpenAIKey = strings.TrimSpace(v)
	}

	if c.BotToken == "" {
		return fmt.Errorf("config: TELEGRAM_BOT_TOKEN is required")
	}
	if c.OpenAIKey == "" && !c.SelfTest {
		return fmt.Errorf("config: OPENAI_API_KEY is required (or set SELF_TEST=1)")
	}
	return nil
}

func envDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s value %q", key, v)
	}
	return n, nil
}
