package pdfquiz

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration. It is loaded once at startup and not
// modified afterwards.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Extract  ExtractConfig  `yaml:"extract"`
	Prompt   PromptConfig   `yaml:"prompt"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	MaxUploadMB     int           `yaml:"maxUploadMB"`
	MaxInFlight     int           `yaml:"maxInFlight"`
	RatePerMinute   int           `yaml:"ratePerMinute"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LLMConfig selects and tunes the completion provider.
type LLMConfig struct {
	Provider      string        `yaml:"provider"`
	APIKey        string        `yaml:"apiKey"`
	BaseURL       string        `yaml:"baseURL"`
	Model         string        `yaml:"model"`
	Temperature   *float32      `yaml:"temperature"`
	MaxTokens     int           `yaml:"maxTokens"`
	Timeout       time.Duration `yaml:"timeout"`
	VertexProject string        `yaml:"vertexProject"`
	VertexRegion  string        `yaml:"vertexRegion"`
}

// ExtractConfig controls PDF text extraction.
type ExtractConfig struct {
	Engine   string `yaml:"engine"` // "native" or "pdfcpu"
	MinChars int    `yaml:"minChars"`
}

// PromptConfig controls prompt construction.
type PromptConfig struct {
	MaxChars int `yaml:"maxChars"`
}

// PipelineConfig controls the orchestrator.
type PipelineConfig struct {
	Retries      int           `yaml:"retries"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

// StoreConfig points at the sqlite quiz archive. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls log level, format and the LLM transcript directory.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	LLMLogDir string `yaml:"llmLogDir"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MaxRetries caps PipelineConfig.Retries so a paid API is never hammered.
const MaxRetries = 3

// Extraction engines.
const (
	EngineNative = "native"
	EnginePdfcpu = "pdfcpu"
)

// Load reads .env (when present), then the YAML file at path (when given),
// then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			MaxUploadMB:     10,
			MaxInFlight:     4,
			RatePerMinute:   10,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    150 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		LLM: LLMConfig{
			Provider:     ProviderOpenAI,
			MaxTokens:    DefaultMaxTokens,
			Timeout:      DefaultTimeout,
			VertexRegion: DefaultVertexRegion,
		},
		Extract: ExtractConfig{
			Engine:   EngineNative,
			MinChars: DefaultMinChars,
		},
		Prompt: PromptConfig{
			MaxChars: DefaultMaxPromptChars,
		},
		Pipeline: PipelineConfig{
			Retries:      0,
			RetryBackoff: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// applyEnvOverrides reads the environment variables the service has always
// honoured (PORT, OPENAI_API_KEY, ...) plus PDFQUIZ_* settings.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("PDFQUIZ_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	switch strings.ToLower(cfg.LLM.Provider) {
	case ProviderGroq:
		if v := os.Getenv("GROQ_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
	default:
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
	}
	if v := os.Getenv("PDFQUIZ_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("PDFQUIZ_TEMPERATURE"); v != "" {
		if t, err := strconv.ParseFloat(v, 32); err == nil {
			temperature := float32(t)
			cfg.LLM.Temperature = &temperature
		}
	}
	if v := os.Getenv("PDFQUIZ_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("VERTEX_PROJECT"); v != "" {
		cfg.LLM.VertexProject = v
	}
	if v := os.Getenv("VERTEX_REGION"); v != "" {
		cfg.LLM.VertexRegion = v
	}

	if v := os.Getenv("PDFQUIZ_EXTRACT_ENGINE"); v != "" {
		cfg.Extract.Engine = v
	}
	if v := os.Getenv("PDFQUIZ_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("PDFQUIZ_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PDFQUIZ_LLM_LOG_DIR"); v != "" {
		cfg.Logging.LLMLogDir = v
	}
}

// Validate clamps policy values into their supported ranges and rejects
// settings the process cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 10
	}
	if c.Server.MaxInFlight <= 0 {
		c.Server.MaxInFlight = 1
	}

	switch strings.ToLower(c.LLM.Provider) {
	case ProviderOpenAI, ProviderGroq, ProviderVertex:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	c.LLM.Timeout = clampDuration(c.LLM.Timeout, MinTimeout, MaxTimeout)
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = DefaultMaxTokens
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > MaxTemperature) {
		return fmt.Errorf("llm temperature %g outside [0,%g]", *t, MaxTemperature)
	}

	switch c.Extract.Engine {
	case EngineNative, EnginePdfcpu:
	default:
		return fmt.Errorf("unknown extraction engine %q", c.Extract.Engine)
	}
	if c.Extract.MinChars <= 0 {
		c.Extract.MinChars = DefaultMinChars
	}

	c.Prompt.MaxChars = clampInt(c.Prompt.MaxChars, MinPromptChars, MaxPromptChars)
	c.Pipeline.Retries = clampInt(c.Pipeline.Retries, 0, MaxRetries)
	if c.Pipeline.RetryBackoff <= 0 {
		c.Pipeline.RetryBackoff = time.Second
	}

	// The response is written only after every attempt has finished.
	if budget := c.GenerationBudget(); c.Server.WriteTimeout < budget {
		c.Server.WriteTimeout = budget
	}
	return nil
}

// generationSlack covers extraction, prompt building and the response write.
const generationSlack = 30 * time.Second

// GenerationBudget is the longest a single Generate call can take: every
// attempt running to the LLM timeout plus the backoff between them.
func (c *Config) GenerationBudget() time.Duration {
	attempts := c.Pipeline.Retries + 1
	backoff := c.Pipeline.RetryBackoff * time.Duration(1<<c.Pipeline.Retries - 1)
	return c.LLM.Timeout*time.Duration(attempts) + backoff + generationSlack
}

// EffectiveTemperature returns the configured sampling temperature or
// DefaultTemperature when none is set. Zero is a valid setting.
func (c LLMConfig) EffectiveTemperature() float32 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// NewPageReader returns the page engine named by the config.
func (c ExtractConfig) NewPageReader() PageReader {
	if c.Engine == EnginePdfcpu {
		return PdfcpuReader{}
	}
	return NativeReader{}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
