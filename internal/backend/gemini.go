package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/example/verifai/internal/imageprocessor"
)

// Gemini generates verdicts with Google's Gemini models. The client is
// created once and shared by all requests.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
}

// NewGemini connects a Gemini client for the named model.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	model = strings.TrimSpace(model)
	if apiKey == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY is empty")
	}
	if model == "" {
		return nil, errors.New("gemini: model name is empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	m := client.GenerativeModel(model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	return &Gemini{client: client, model: m, name: model}, nil
}

// Provider implements Generator.
func (g *Gemini) Provider() string { return "gemini" }

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, instruction string, img *imageprocessor.Image) (string, error) {
	resp, err := g.model.GenerateContent(ctx,
		genai.Text(instruction),
		&genai.Blob{MIMEType: img.MIMEType, Data: img.Data},
	)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", g.name, err)
	}
	return firstText(resp), nil
}

// Close releases the underlying connection.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
