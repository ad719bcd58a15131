// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvOllamaURL = "STUDYGUIDE_OLLAMA_URL"
	EnvOCRModel  = "STUDYGUIDE_OCR_MODEL"
	EnvChatModel = "STUDYGUIDE_CHAT_MODEL"
	EnvGuidesDir = "STUDYGUIDE_DIR"
	EnvLogLevel  = "STUDYGUIDE_LOG_LEVEL"
)

type Config struct {
	StudyGuidesDir string `yaml:"study_guides_dir"`
	LogLevel       string `yaml:"log_level"`
	Ollama         struct {
		URL       string        `yaml:"url"`
		OCRModel  string        `yaml:"ocr_model"`
		ChatModel string        `yaml:"chat_model"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"ollama"`
	Processing struct {
		Concurrency          int    `yaml:"concurrency"`
		FailFast             bool   `yaml:"fail_fast"`
		ResetCorruptManifest bool   `yaml:"reset_corrupt_manifest"`
		ManifestFile         string `yaml:"manifest_file"`
		ResultsFile          string `yaml:"results_file"`
	} `yaml:"processing"`
}

// Load reads path if it exists, then applies environment overrides and
// defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.Processing.Concurrency < 0 {
		return nil, fmt.Errorf("processing.concurrency must not be negative, got %d", cfg.Processing.Concurrency)
	}

	return &cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvOllamaURL); v != "" {
		c.Ollama.URL = v
	}
	if v := os.Getenv(EnvOCRModel); v != "" {
		c.Ollama.OCRModel = v
	}
	if v := os.Getenv(EnvChatModel); v != "" {
		c.Ollama.ChatModel = v
	}
	if v := os.Getenv(EnvGuidesDir); v != "" {
		c.StudyGuidesDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.StudyGuidesDir == "" {
		c.StudyGuidesDir = "study_guides"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = "http://localhost:11434"
	}
	if c.Ollama.OCRModel == "" {
		c.Ollama.OCRModel = "llama3.2-vision"
	}
	if c.Ollama.ChatModel == "" {
		c.Ollama.ChatModel = "orca-mini"
	}
	if c.Ollama.Timeout == 0 {
		c.Ollama.Timeout = 2 * time.Minute
	}
	if c.Processing.Concurrency == 0 {
		c.Processing.Concurrency = 4
	}
	if c.Processing.ManifestFile == "" {
		c.Processing.ManifestFile = "manifest.json"
	}
	if c.Processing.ResultsFile == "" {
		c.Processing.ResultsFile = "ocr-results.txt"
	}
}
