package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drpaneas/vitisexpert/internal/llm"
)

const (
	DefaultAddr         = ":8080"
	DefaultImageModel   = "gemini-2.5-flash-image"
	DefaultOllamaHost   = "http://localhost:11434"
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"
	DefaultOpenMeteoURL = "https://api.open-meteo.com"
	DefaultHTTPTimeout  = 30 * time.Second
)

// Config holds all runtime configuration for vitisexpert.
type Config struct {
	Provider     llm.ProviderName `yaml:"provider"`
	Model        string           `yaml:"model"`
	ImageModel   string           `yaml:"image_model"`
	OllamaHost   string           `yaml:"ollama_host"`
	Addr         string           `yaml:"addr"`
	JournalPath  string           `yaml:"journal"`
	StagesFile   string           `yaml:"stages_file"`
	NominatimURL string           `yaml:"nominatim_url"`
	OpenMeteoURL string           `yaml:"open_meteo_url"`
	HTTPTimeout  time.Duration    `yaml:"http_timeout"`
	Verbose      bool             `yaml:"verbose"`

	// Keys are only read from the environment, never from the config file.
	APIKey       string `yaml:"-"`
	GeminiAPIKey string `yaml:"-"`
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Provider:     llm.ProviderGemini,
		ImageModel:   DefaultImageModel,
		OllamaHost:   DefaultOllamaHost,
		Addr:         DefaultAddr,
		NominatimURL: DefaultNominatimURL,
		OpenMeteoURL: DefaultOpenMeteoURL,
		HTTPTimeout:  DefaultHTTPTimeout,
	}
}

// LoadFile overlays the YAML file at path onto c. A missing file is an
// error; an empty path is a no-op.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv populates environment-dependent fields (keys, hosts, paths).
// Non-secret fields are only overridden when the variable is set.
func (c *Config) LoadFromEnv() {
	c.GeminiAPIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY")
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.OllamaHost = v
	}
	if v := os.Getenv("VITIS_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("VITIS_JOURNAL"); v != "" {
		c.JournalPath = v
	}
	if v := os.Getenv("VITIS_STAGES_FILE"); v != "" {
		c.StagesFile = v
	}
	switch c.Provider {
	case llm.ProviderGemini:
		c.APIKey = c.GeminiAPIKey
	case llm.ProviderOpenAI:
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	case llm.ProviderAnthropic:
		c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Provider {
	case llm.ProviderGemini, llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderOllama:
	default:
		return fmt.Errorf("unsupported LLM provider %q: must be gemini, openai, anthropic, or ollama", c.Provider)
	}
	if c.APIKey == "" && c.Provider != llm.ProviderOllama {
		return fmt.Errorf("%s requires an API key (set %s)", c.Provider, envKeyForProvider(c.Provider))
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.NominatimURL == "" || c.OpenMeteoURL == "" {
		return fmt.Errorf("weather service URLs must not be empty")
	}
	return nil
}

// DefaultModel returns the default text model name for the given provider.
func DefaultModel(provider llm.ProviderName) string {
	switch provider {
	case llm.ProviderGemini:
		return "gemini-3-flash-preview"
	case llm.ProviderOpenAI:
		return "gpt-4o"
	case llm.ProviderAnthropic:
		return "claude-sonnet-4-5"
	case llm.ProviderOllama:
		return "llama3"
	default:
		return ""
	}
}

func envKeyForProvider(provider llm.ProviderName) string {
	switch provider {
	case llm.ProviderGemini:
		return "GEMINI_API_KEY"
	case llm.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case llm.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
