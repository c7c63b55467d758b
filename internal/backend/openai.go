package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/example/verifai/internal/imageprocessor"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI generates verdicts through an OpenAI-compatible chat completions
// endpoint.
type OpenAI struct {
	client *resty.Client
	model  string
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAI builds a client for the given endpoint. An empty baseURL uses
// the public API. A zero timeout leaves deadlines to the caller's context.
func NewOpenAI(baseURL, apiKey, model string, timeout time.Duration) (*OpenAI, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai: OPENAI_API_KEY is empty")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("openai: model name is empty")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenAIBaseURL
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &OpenAI{client: client, model: strings.TrimSpace(model)}, nil
}

// Provider implements Generator.
func (o *OpenAI) Provider() string { return "openai" }

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, instruction string, img *imageprocessor.Image) (string, error) {
	dataURL := "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	body := chatRequest{
		Model: o.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: instruction},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	var out chatResponse
	var apiErr apiError
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return "", fmt.Errorf("openai: status %d: %s", resp.StatusCode(), apiErr.Error.Message)
		}
		return "", fmt.Errorf("openai: status %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}
