package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPrompt — шаблон системного промпта, {question} и {Context} подставляются при каждом вопросе
const DefaultPrompt = `
Please provide most correct answer from the following context.
Think step by step and look the html tags and table values carefully to provide the most correct answer.
If the answer is not present in the context, please write "The information is not present in the context."
---
Question: {question}
---
Context: {Context}
`

type Config struct {
	ServerAddr     string `yaml:"server_addr"`
	LLMBaseURL     string `yaml:"llm_base_url"`
	ChatModel      string `yaml:"chat_model"`
	APIKey         string `yaml:"api_key"`
	Prompt         string `yaml:"prompt"`
	DefaultChat    string `yaml:"default_chat"`
	LayoutURL      string `yaml:"layout_url"`
	LayoutProvider string `yaml:"layout_provider"`
	LayoutFormat   string `yaml:"layout_format"`
	UploadDir      string `yaml:"upload_dir"`
	BodyLimitMB    int    `yaml:"body_limit_mb"`
}

// Default возвращает конфигурацию без env и файла
func Default() *Config {
	return &Config{
		ServerAddr:     ":8080",
		LLMBaseURL:     "https://api.upstage.ai/v1/solar",
		ChatModel:      "solar-1-mini-chat",
		Prompt:         DefaultPrompt,
		DefaultChat:    "Hi, I'm Solar",
		LayoutURL:      "https://api.upstage.ai/v1/document-ai/layout-analysis",
		LayoutProvider: "upstage",
		LayoutFormat:   "html",
		UploadDir:      "data/uploads",
		BodyLimitMB:    50,
	}
}

// Load: defaults -> YAML (CONFIG_FILE) -> env
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ServerAddr = getenv("SERVER_ADDR", cfg.ServerAddr)
	cfg.LLMBaseURL = getenv("LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.ChatModel = getenv("LLM_MODEL", cfg.ChatModel)
	cfg.APIKey = getenv("UPSTAGE_API_KEY", cfg.APIKey)
	cfg.Prompt = getenv("SYSTEM_PROMPT", cfg.Prompt)
	cfg.DefaultChat = getenv("DEFAULT_CHAT", cfg.DefaultChat)
	cfg.LayoutURL = getenv("LAYOUT_URL", cfg.LayoutURL)
	cfg.LayoutProvider = getenv("LAYOUT_PROVIDER", cfg.LayoutProvider)
	cfg.LayoutFormat = getenv("LAYOUT_FORMAT", cfg.LayoutFormat)
	cfg.UploadDir = getenv("UPLOAD_DIR", cfg.UploadDir)
	if v := os.Getenv("BODY_LIMIT_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("BODY_LIMIT_MB: %w", err)
		}
		cfg.BodyLimitMB = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// mergeFile накладывает YAML поверх текущих значений, отсутствующие ключи не трогает
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.LayoutProvider {
	case "upstage", "local":
	default:
		return fmt.Errorf("unknown layout_provider %q", c.LayoutProvider)
	}
	if c.DefaultChat == "" {
		return fmt.Errorf("default_chat must not be empty")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("upload_dir must not be empty")
	}
	if c.BodyLimitMB <= 0 {
		return fmt.Errorf("body_limit_mb must be positive, got %d", c.BodyLimitMB)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
