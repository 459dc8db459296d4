// Package config loads tomato configuration from YAML with environment
// overrides. Discovery order: tomato.yaml, .tomato.yaml in the workspace,
// then built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tomato configuration.
type Config struct {
	Review    ReviewConfig    `yaml:"review"`
	Analyzers AnalyzersConfig `yaml:"analyzers"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Verify    VerifyConfig    `yaml:"verify"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ReviewConfig controls the convergence loop and batch scheduling.
type ReviewConfig struct {
	MaxIterations int    `yaml:"max_iterations"` // Iteration budget per file
	MiniBatch     int    `yaml:"mini_batch"`     // Concurrent file sessions
	ReportOnly    bool   `yaml:"report_only"`    // Never write fixes back
	ReportDir     string `yaml:"report_dir"`
}

// AnalyzersConfig configures diagnostic sources.
type AnalyzersConfig struct {
	// Command analyzers: each runs a linter binary and parses
	// file:line:col: CODE message output.
	Commands []CommandAnalyzerConfig `yaml:"commands"`

	// Structural enables the built-in tree-sitter analyzer.
	Structural StructuralConfig `yaml:"structural"`

	Timeout string `yaml:"timeout"` // Per-invocation timeout
}

// CommandAnalyzerConfig describes one external linter.
type CommandAnalyzerConfig struct {
	Name   string   `yaml:"name"`
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args"` // {file} is replaced by the target path
}

// StructuralConfig configures the built-in structural analyzer.
type StructuralConfig struct {
	Enabled        bool `yaml:"enabled"`
	MaxFuncLines   int  `yaml:"max_func_lines"`
	MaxArguments   int  `yaml:"max_arguments"`
	WantDocstrings bool `yaml:"want_docstrings"`
}

// KnowledgeConfig configures the guideline knowledge base.
type KnowledgeConfig struct {
	DatabasePath string `yaml:"database_path"`
	TopK         int    `yaml:"top_k"`
	Timeout      string `yaml:"timeout"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // ollama or genai
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
}

// LLMConfig configures the repair model.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai or genai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// VerifyConfig controls the verification policy.
type VerifyConfig struct {
	// Exec runs the candidate before accepting it. Files with no runnable
	// entry point are verified by diagnostic delta alone when false.
	Exec bool `yaml:"exec"`

	// EntryCommands maps file extensions to the command used to execute a
	// candidate, e.g. ".py" -> ["python3", "{file}"].
	EntryCommands map[string][]string `yaml:"entry_commands"`

	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures categorized logging.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Review: ReviewConfig{
			MaxIterations: 10,
			MiniBatch:     20,
			ReportDir:     filepath.Join(".tomato", "reviews"),
		},
		Analyzers: AnalyzersConfig{
			Commands: []CommandAnalyzerConfig{
				{Name: "ruff", Binary: "ruff", Args: []string{"check", "--output-format", "concise", "{file}"}},
			},
			Structural: StructuralConfig{
				Enabled:        true,
				MaxFuncLines:   60,
				MaxArguments:   6,
				WantDocstrings: true,
			},
			Timeout: "30s",
		},
		Knowledge: KnowledgeConfig{
			DatabasePath: filepath.Join(".tomato", "kb.db"),
			TopK:         5,
			Timeout:      "20s",
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "120s",
		},
		Verify: VerifyConfig{
			Exec: true,
			EntryCommands: map[string][]string{
				".py": {"python3", "{file}"},
				".sh": {"bash", "{file}"},
			},
			Timeout: "30s",
		},
	}
}

// Load reads configuration from the workspace, falling back to defaults.
// A missing config file is not an error; a malformed one is.
func Load(workspace string) (*Config, error) {
	cfg := Default()

	for _, name := range []string{"tomato.yaml", ".tomato.yaml"} {
		path := filepath.Join(workspace, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		break
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads configuration from an explicit path. Unlike Load, a missing
// or unreadable file is an error: the user asked for this file specifically.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays secrets and endpoints from the environment so keys never
// need to live in the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("TOMATO_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("TOMATO_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("TOMATO_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("TOMATO_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("TOMATO_OLLAMA_ENDPOINT"); v != "" {
		c.Embedding.OllamaEndpoint = v
	}
}

func (c *Config) validate() error {
	if c.Review.MaxIterations < 1 {
		return fmt.Errorf("review.max_iterations must be >= 1, got %d", c.Review.MaxIterations)
	}
	if c.Review.MiniBatch < 1 {
		return fmt.Errorf("review.mini_batch must be >= 1, got %d", c.Review.MiniBatch)
	}
	if c.Knowledge.TopK < 0 {
		return fmt.Errorf("knowledge.top_k must be >= 0, got %d", c.Knowledge.TopK)
	}
	for _, name := range []string{c.Analyzers.Timeout, c.Knowledge.Timeout, c.LLM.Timeout, c.Verify.Timeout} {
		if name == "" {
			continue
		}
		if _, err := time.ParseDuration(name); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", name, err)
		}
	}
	return nil
}

// Duration parses a configured timeout string, returning fallback when the
// field is empty or unparseable.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
