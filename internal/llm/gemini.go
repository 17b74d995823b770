package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

type geminiProvider struct {
	client     *genai.Client
	model      string
	imageModel string
}

func newGemini(apiKey, model, imageModel string) (*geminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &geminiProvider{
		client:     client,
		model:      model,
		imageModel: imageModel,
	}, nil
}

func (p *geminiProvider) Complete(ctx context.Context, system, prompt string, opts *CompleteOptions) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts != nil {
		if opts.Temperature != nil {
			cfg.Temperature = genai.Ptr(*opts.Temperature)
		}
		if opts.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(opts.MaxTokens)
		}
		if opts.Schema != nil {
			cfg.ResponseMIMEType = "application/json"
			cfg.ResponseSchema = opts.Schema.toGenAI()
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	return resp.Text(), nil
}

func (p *geminiProvider) EditImage(ctx context.Context, img Image, instruction string) (*Image, error) {
	if p.imageModel == "" {
		return nil, ErrImageUnsupported
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, img.MIMEType),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.imageModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini image edit: %w", err)
	}
	return firstImage(resp), nil
}

// firstImage returns the first inline-data part of the first candidate. The
// response may interleave text and image parts.
func firstImage(resp *genai.GenerateContentResponse) *Image {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return nil
	}
	for _, part := range content.Parts {
		if part == nil || part.InlineData == nil {
			continue
		}
		mime := part.InlineData.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return &Image{MIMEType: mime, Data: part.InlineData.Data}
	}
	slog.Debug("gemini response contained no image part", "parts", len(content.Parts))
	return nil
}
