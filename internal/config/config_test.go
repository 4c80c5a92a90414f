package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("max iterations = %d", cfg.Agent.MaxIterations)
	}
	if cfg.LLM.BaseURL == "" {
		t.Error("base url empty")
	}
	if cfg.Memory.Backend != "sqlite" {
		t.Errorf("backend = %q", cfg.Memory.Backend)
	}
	if len(cfg.Tools.NeedsApproval) == 0 {
		t.Error("no default approval-gated tools")
	}
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axon.toml")
	doc := `
[agent]
name = "custom"
max_iterations = 5

[llm]
model = "local-model"
base_url = "http://localhost:11434/v1"

[memory]
backend = "jsonfile"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.Agent.Name != "custom" || cfg.Agent.MaxIterations != 5 {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.LLM.Model != "local-model" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.Memory.Backend != "jsonfile" {
		t.Errorf("backend = %q", cfg.Memory.Backend)
	}
	// Untouched keys keep defaults.
	if cfg.Tools.TimeoutSeconds != 60 {
		t.Errorf("timeout = %d", cfg.Tools.TimeoutSeconds)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axon.toml")
	doc := `
[llm]
api_key = "from-file"
base_url = "http://file"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("OPENAI_BASE_URL", "http://env")

	cfg := Load(path)
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("api key = %q, env must win", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != "http://env" {
		t.Errorf("base url = %q", cfg.LLM.BaseURL)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if cfg.Agent.Name != "axon" {
		t.Errorf("name = %q", cfg.Agent.Name)
	}
}
