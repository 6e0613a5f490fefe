// Package config loads ocrflow settings from a YAML file, a .env file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/providers"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProvider         = "mistral"
	DefaultChunkThresholdMB = 45.0
	DefaultDirPrefix        = "lumi_ocr_results_"
)

// Config holds all settings for a pipeline run.
type Config struct {
	Provider         string          `yaml:"provider"`
	APIKey           string          `yaml:"api_key"`
	OutputDir        string          `yaml:"output_dir"`
	DirPrefix        string          `yaml:"dir_prefix"`
	ChunkThresholdMB float64         `yaml:"chunk_threshold_mb"`
	Mistral          MistralConfig   `yaml:"mistral"`
	Gemini           GeminiConfig    `yaml:"gemini"`
	Tesseract        TesseractConfig `yaml:"tesseract"`
	GCP              GCPConfig       `yaml:"gcp"`
}

type MistralConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type GeminiConfig struct {
	Model         string `yaml:"model"`
	StagingBucket string `yaml:"staging_bucket"`
}

type TesseractConfig struct {
	Language string  `yaml:"language"`
	DPI      float64 `yaml:"dpi"`
}

// GCPConfig is only needed by the gemini provider and the cloud function.
type GCPConfig struct {
	ProjectID        string `yaml:"project_id"`
	Region           string `yaml:"region"`
	OutputBucket     string `yaml:"output_bucket"`
	Collection       string `yaml:"collection"`
	WorkflowID       string `yaml:"workflow_id"`
	WorkflowLocation string `yaml:"workflow_location"`
}

// Default returns a Config with every optional field filled in.
func Default() *Config {
	return &Config{
		Provider:         DefaultProvider,
		DirPrefix:        DefaultDirPrefix,
		ChunkThresholdMB: DefaultChunkThresholdMB,
		Mistral: MistralConfig{
			BaseURL: "https://api.mistral.ai/v1",
			Model:   "mistral-ocr-latest",
		},
		Gemini: GeminiConfig{
			Model: "gemini-1.5-pro",
		},
		Tesseract: TesseractConfig{
			Language: "eng",
			DPI:      300,
		},
		GCP: GCPConfig{
			Region:           "us-central1",
			Collection:       "ocr_jobs",
			WorkflowLocation: "us-central1",
		},
	}
}

// Load reads the optional YAML file at path, then applies .env and environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, models.ConfigurationError(fmt.Sprintf("failed to read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, models.ConfigurationError(fmt.Sprintf("failed to parse config file %s", path), err)
		}
	}
	cfg.applyEnv()

	if cfg.OutputDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, models.FilesystemError("failed to resolve working directory", err)
		}
		cfg.OutputDir = wd
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Provider = GetEnv("OCRFLOW_PROVIDER", c.Provider)
	c.OutputDir = GetEnv("OCRFLOW_OUTPUT_DIR", c.OutputDir)
	c.DirPrefix = GetEnv("OCRFLOW_DIR_PREFIX", c.DirPrefix)
	if v := GetEnv("OCRFLOW_CHUNK_THRESHOLD_MB", ""); v != "" {
		if mb, err := strconv.ParseFloat(v, 64); err == nil {
			c.ChunkThresholdMB = mb
		}
	}
	c.Mistral.APIKey = GetEnv("MISTRAL_API_KEY", c.Mistral.APIKey)
	c.APIKey = GetEnv("OCRFLOW_API_KEY", c.APIKey)

	c.Gemini.StagingBucket = GetEnv("GEMINI_STAGING_BUCKET", c.Gemini.StagingBucket)
	c.Tesseract.Language = GetEnv("TESSERACT_LANGUAGE", c.Tesseract.Language)

	c.GCP.ProjectID = GetEnv("PROJECT_ID", c.GCP.ProjectID)
	c.GCP.Region = GetEnv("VERTEX_AI_REGION", c.GCP.Region)
	c.GCP.OutputBucket = GetEnv("OUTPUT_BUCKET", c.GCP.OutputBucket)
	c.GCP.Collection = GetEnv("FIRESTORE_COLLECTION", c.GCP.Collection)
	c.GCP.WorkflowID = GetEnv("WORKFLOW_ID", c.GCP.WorkflowID)
	c.GCP.WorkflowLocation = GetEnv("WORKFLOW_LOCATION", c.GCP.WorkflowLocation)
}

// Validate checks the settings every run needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Provider) == "" {
		return models.ConfigurationError("provider must be set", nil)
	}
	if c.ChunkThresholdMB <= 0 {
		return models.ConfigurationError(fmt.Sprintf("chunk_threshold_mb must be positive, got %v", c.ChunkThresholdMB), nil)
	}
	return nil
}

// ChunkThresholdBytes converts the configured threshold to bytes.
func (c *Config) ChunkThresholdBytes() int64 {
	return int64(c.ChunkThresholdMB * 1024 * 1024)
}

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ProviderOptions returns the options for the configured provider.
func (c *Config) ProviderOptions() providers.Options {
	opts := providers.Options{
		APIKey:        c.APIKey,
		Language:      c.Tesseract.Language,
		DPI:           c.Tesseract.DPI,
		ProjectID:     c.GCP.ProjectID,
		Region:        c.GCP.Region,
		StagingBucket: c.Gemini.StagingBucket,
	}
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case providers.MistralID:
		if opts.APIKey == "" {
			opts.APIKey = c.Mistral.APIKey
		}
		opts.BaseURL = c.Mistral.BaseURL
		opts.Model = c.Mistral.Model
	case providers.GeminiID:
		opts.Model = c.Gemini.Model
	}
	return opts
}
