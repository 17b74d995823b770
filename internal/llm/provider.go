package llm

import (
	"context"
	"errors"
	"fmt"
)

// ProviderName identifies a supported LLM provider.
type ProviderName string

const (
	ProviderGemini    ProviderName = "gemini"
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOllama    ProviderName = "ollama"
)

// ErrImageUnsupported is returned when image editing is requested from a
// provider that cannot produce images.
var ErrImageUnsupported = errors.New("provider does not support image editing")

// CompleteOptions controls per-request LLM parameters.
// A nil value uses provider-specific defaults.
type CompleteOptions struct {
	Temperature *float32
	MaxTokens   int
	// Schema, when set, asks the provider for a JSON response matching it.
	Schema *Schema
}

// ProviderConfig holds the configuration needed to construct a Provider.
type ProviderConfig struct {
	Name       ProviderName
	APIKey     string
	Model      string
	ImageModel string
	OllamaHost string
}

// Provider abstracts an LLM completion backend.
type Provider interface {
	Complete(ctx context.Context, system, prompt string, opts *CompleteOptions) (string, error)
}

// Image is raw image bytes plus their MIME type.
type Image struct {
	MIMEType string
	Data     []byte
}

// ImageEditor edits an image according to a natural-language instruction.
// A nil image with a nil error means the model answered without an image.
type ImageEditor interface {
	EditImage(ctx context.Context, img Image, instruction string) (*Image, error)
}

// NewProvider creates a Provider for the given configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case ProviderGemini:
		return newGemini(cfg.APIKey, cfg.Model, cfg.ImageModel)
	case ProviderOpenAI:
		return newOpenAI(cfg.APIKey, cfg.Model), nil
	case ProviderAnthropic:
		return newAnthropic(cfg.APIKey, cfg.Model), nil
	case ProviderOllama:
		return newOllama(cfg.OllamaHost, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Name)
	}
}

// NewImageEditor creates the image editing backend. Only Gemini image models
// are supported, so apiKey must be a Gemini API key regardless of the text
// provider in use.
func NewImageEditor(apiKey, model string) (ImageEditor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("image editing requires a Gemini API key: %w", ErrImageUnsupported)
	}
	return newGemini(apiKey, "", model)
}
