// Package config loads storytime settings from an optional TOML file, a
// .env file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultFile is read when no config path is given and it exists.
const DefaultFile = "storytime.toml"

// LLMConfig configures the expert panel and script synthesis calls.
type LLMConfig struct {
	Provider    string  `toml:"provider"`
	Model       string  `toml:"model"`
	BaseURL     string  `toml:"base_url"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	MaxAttempts int     `toml:"max_attempts"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	Provider       string  `toml:"provider"`
	Model          string  `toml:"model"`
	BaseURL        string  `toml:"base_url"`
	NarratorVoice  string  `toml:"narrator_voice"`
	CharacterVoice string  `toml:"character_voice"`
	Speed          float64 `toml:"speed"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	OutputDir string `toml:"output_dir"`
	UploadDir string `toml:"upload_dir"`
	LogDir    string `toml:"log_dir"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Addr         string `toml:"addr"`
	Environment  string `toml:"environment"`
	JobsTable    string `toml:"jobs_table"`
	Store        string `toml:"store"` // "s3" or "nats"
	Bucket       string `toml:"bucket"`
	CDNBaseURL   string `toml:"cdn_base_url"`
	NATSURL      string `toml:"nats_url"`
	NATSBucket   string `toml:"nats_bucket"`
	SecretPrefix string `toml:"secret_prefix"`
	MaxTasks     int    `toml:"max_tasks"`
}

// APIKeys are provider credentials. They only come from the environment
// or a secret store, never from the TOML file.
type APIKeys struct {
	Anthropic  string
	OpenAI     string
	DeepSeek   string
	Gemini     string
	ElevenLabs string
}

// Config is the root configuration structure.
type Config struct {
	LogLevel string       `toml:"log_level"`
	AgeGroup string       `toml:"age_group"`
	LLM      LLMConfig    `toml:"llm"`
	Simplify LLMConfig    `toml:"simplify"`
	TTS      TTSConfig    `toml:"tts"`
	Paths    PathsConfig  `toml:"paths"`
	Server   ServerConfig `toml:"server"`
	Keys     APIKeys      `toml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		AgeGroup: "8-12",
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "qwen2.5:32b-instruct",
			Temperature: 0.7,
			MaxAttempts: 3,
		},
		Simplify: LLMConfig{
			Provider:    "deepseek",
			Model:       "deepseek-chat",
			Temperature: 0.7,
			MaxTokens:   2000,
			MaxAttempts: 3,
		},
		TTS: TTSConfig{
			Provider: "openai",
			Speed:    1.0,
		},
		Paths: PathsConfig{
			OutputDir: "audio_output",
			UploadDir: "uploads",
		},
		Server: ServerConfig{
			Addr:        ":8000",
			Environment: "development",
			JobsTable:   "storytime-jobs",
			Store:       "s3",
			NATSBucket:  "AUDIOBOOKS",
			MaxTasks:    3,
		},
	}
}

// Load builds the configuration. An empty path falls back to
// STORYTIME_CONFIG, then DefaultFile if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("STORYTIME_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultFile
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	f, err := os.Open(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config %s: unknown keys:\n%s", path, strict.String())
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.LogLevel, "STORYTIME_LOG_LEVEL")
	setString(&c.AgeGroup, "STORYTIME_AGE_GROUP")

	setString(&c.LLM.Provider, "STORYTIME_LLM_PROVIDER")
	setString(&c.LLM.Model, "STORYTIME_LLM_MODEL")
	setString(&c.LLM.BaseURL, "STORYTIME_LLM_BASE_URL")
	setString(&c.Simplify.Provider, "STORYTIME_SIMPLIFY_PROVIDER")
	setString(&c.Simplify.Model, "STORYTIME_SIMPLIFY_MODEL")

	setString(&c.TTS.Provider, "STORYTIME_TTS_PROVIDER")
	setString(&c.TTS.NarratorVoice, "STORYTIME_NARRATOR_VOICE")
	setString(&c.TTS.CharacterVoice, "STORYTIME_CHARACTER_VOICE")

	setString(&c.Paths.OutputDir, "STORYTIME_OUTPUT_DIR")
	setString(&c.Paths.UploadDir, "STORYTIME_UPLOAD_DIR")

	setString(&c.Server.Addr, "STORYTIME_ADDR")
	setString(&c.Server.Environment, "STORYTIME_ENV")
	setString(&c.Server.JobsTable, "STORYTIME_JOBS_TABLE")
	setString(&c.Server.Store, "STORYTIME_STORE")
	setString(&c.Server.Bucket, "STORYTIME_S3_BUCKET")
	setString(&c.Server.CDNBaseURL, "STORYTIME_CDN_BASE_URL")
	setString(&c.Server.NATSURL, "STORYTIME_NATS_URL")
	setString(&c.Server.SecretPrefix, "STORYTIME_SECRET_PREFIX")
	setInt(&c.Server.MaxTasks, "STORYTIME_MAX_TASKS")

	setString(&c.Keys.Anthropic, "ANTHROPIC_API_KEY")
	setString(&c.Keys.OpenAI, "OPENAI_API_KEY")
	setString(&c.Keys.DeepSeek, "DEEPSEEK_API_KEY")
	setString(&c.Keys.Gemini, "GEMINI_API_KEY")
	setString(&c.Keys.ElevenLabs, "ELEVENLABS_API_KEY")
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f out of range [0, 2]", c.LLM.Temperature))
	}
	if c.Simplify.Temperature < 0 || c.Simplify.Temperature > 2 {
		errs = append(errs, fmt.Errorf("simplify.temperature %.2f out of range [0, 2]", c.Simplify.Temperature))
	}
	if c.TTS.Speed < 0 || c.TTS.Speed > 4 {
		errs = append(errs, fmt.Errorf("tts.speed %.2f out of range [0, 4]", c.TTS.Speed))
	}
	if c.Server.MaxTasks < 1 {
		errs = append(errs, fmt.Errorf("server.max_tasks must be at least 1"))
	}
	switch c.Server.Store {
	case "s3", "nats":
	default:
		errs = append(errs, fmt.Errorf("server.store %q: choose s3 or nats", c.Server.Store))
	}
	return errors.Join(errs...)
}

// APIKeyFor returns the credential for an LLM or TTS provider name.
func (c *Config) APIKeyFor(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic", "claude":
		return c.Keys.Anthropic
	case "openai":
		return c.Keys.OpenAI
	case "deepseek":
		return c.Keys.DeepSeek
	case "gemini":
		return c.Keys.Gemini
	case "elevenlabs":
		return c.Keys.ElevenLabs
	default:
		return ""
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
