package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Agent    AgentConfig    `toml:"agent"`
	LLM      LLMConfig      `toml:"llm"`
	Tools    ToolsConfig    `toml:"tools"`
	Memory   MemoryConfig   `toml:"memory"`
	Observer ObserverConfig `toml:"observer"`
}

type AgentConfig struct {
	Name          string `toml:"name"`
	SystemPrompt  string `toml:"system_prompt"`
	MaxIterations int    `toml:"max_iterations"`
	TokenBudget   int    `toml:"token_budget"`
	SessionID     string `toml:"session_id"`
}

type LLMConfig struct {
	Model       string `toml:"model"`
	APIKey      string `toml:"api_key"`
	BaseURL     string `toml:"base_url"`
	MaxAttempts int    `toml:"max_attempts"`
}

type ToolsConfig struct {
	WorkspacePath  string `toml:"workspace_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
	MaxConcurrency int    `toml:"max_concurrency"`
	// NeedsApproval lists tool names gated behind the approval prompt.
	NeedsApproval []string `toml:"needs_approval"`
}

type MemoryConfig struct {
	// Backend selects the store: "sqlite" or "jsonfile".
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`
	SessionPath string `toml:"session_path"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Agent: AgentConfig{
			Name:          "axon",
			SystemPrompt:  "You are a capable assistant that solves tasks using the available tools.",
			MaxIterations: 10,
			TokenBudget:   32000,
		},
		LLM: LLMConfig{
			Model:       "gpt-4.1-mini",
			BaseURL:     "https://api.openai.com/v1",
			MaxAttempts: 3,
		},
		Tools: ToolsConfig{
			WorkspacePath:  filepath.Join(home, "axon-workspace"),
			TimeoutSeconds: 60,
			MaxRetries:     2,
			MaxConcurrency: 8,
			NeedsApproval:  []string{"shell_exec", "write_file"},
		},
		Memory: MemoryConfig{
			Backend:     "sqlite",
			Path:        filepath.Join(home, ".axon", "memory.db"),
			SessionPath: filepath.Join(home, ".axon", "sessions.json"),
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "axon.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides — the transport contract names OPENAI_API_KEY and
	// OPENAI_BASE_URL; AXON_* covers the rest.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("AXON_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("AXON_SESSION_ID"); v != "" {
		cfg.Agent.SessionID = v
	}
	if v := os.Getenv("AXON_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
