package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"

	"auditx/internal"
	"auditx/internal/config"
)

const (
	providerAzure  = "azure"
	providerGemini = "gemini"

	noResponse = "No response generated."
)

type Generation struct {
	Content string
	Usage   *internal.RAGUsage
}

type Generator interface {
	Generate(ctx context.Context, system, prompt string) (Generation, error)
}

type sampling struct {
	maxTokens   int
	temperature float64
	topP        float64
}

func samplingFrom(cfg config.Config) sampling {
	return sampling{maxTokens: cfg.RAGMaxTokens, temperature: cfg.RAGTemperature, topP: cfg.RAGTopP}
}

// NewGenerator picks the configured provider.
func NewGenerator(ctx context.Context, cfg config.Config) (Generator, error) {
	if !cfg.LLMConfigured() {
		return nil, ErrNotConfigured
	}
	if cfg.LLMProvider == providerGemini {
		return NewGeminiGenerator(ctx, cfg)
	}
	return NewAzureGenerator(cfg), nil
}

// AzureGenerator calls an Azure OpenAI chat completions deployment.
type AzureGenerator struct {
	url        string
	key        string
	sampling   sampling
	httpClient *http.Client
}

func NewAzureGenerator(cfg config.Config) *AzureGenerator {
	return &AzureGenerator{
		url:        ChatCompletionsURL(cfg.AzureOpenAIEndpoint, cfg.AzureOpenAIDeployment, cfg.AzureOpenAIAPIVersion),
		key:        cfg.AzureOpenAIKey,
		sampling:   samplingFrom(cfg),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ChatCompletionsURL accepts either the resource endpoint or a full
// deployment URL pasted from the portal.
func ChatCompletionsURL(endpoint, deployment, apiVersion string) string {
	base := strings.TrimSpace(endpoint)
	if i := strings.Index(base, "/openai/deployments/"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimRight(base, "/")
	return base + "/openai/deployments/" + url.PathEscape(deployment) + "/chat/completions?api-version=" + url.QueryEscape(apiVersion)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (g *AzureGenerator) Generate(ctx context.Context, system, prompt string) (Generation, error) {
	body, err := json.Marshal(chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   g.sampling.maxTokens,
		Temperature: g.sampling.temperature,
		TopP:        g.sampling.topP,
	})
	if err != nil {
		return Generation{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return Generation{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", g.key)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Generation{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Generation{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Generation{}, fmt.Errorf("openai request failed: %d", resp.StatusCode)
	}

	var payload chatResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Generation{}, fmt.Errorf("decode openai response: %w", err)
	}

	out := Generation{Content: noResponse}
	if len(payload.Choices) > 0 && payload.Choices[0].Message.Content != "" {
		out.Content = payload.Choices[0].Message.Content
	}
	if payload.Usage != nil {
		out.Usage = &internal.RAGUsage{
			PromptTokens:     payload.Usage.PromptTokens,
			CompletionTokens: payload.Usage.CompletionTokens,
			TotalTokens:      payload.Usage.TotalTokens,
		}
	}
	return out, nil
}

// GeminiGenerator answers through the Gemini API.
type GeminiGenerator struct {
	client   *genai.Client
	model    string
	sampling sampling
}

func NewGeminiGenerator(ctx context.Context, cfg config.Config) (*GeminiGenerator, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is required", ErrNotConfigured)
	}
	model := cfg.GeminiModel
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, sampling: samplingFrom(cfg)}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, system, prompt string) (Generation, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		MaxOutputTokens:   int32(g.sampling.maxTokens),
		Temperature:       genai.Ptr(float32(g.sampling.temperature)),
		TopP:              genai.Ptr(float32(g.sampling.topP)),
	})
	if err != nil {
		return Generation{}, fmt.Errorf("GenAI generate failed: %w", err)
	}

	out := Generation{Content: result.Text()}
	if out.Content == "" {
		out.Content = noResponse
	}
	if u := result.UsageMetadata; u != nil {
		out.Usage = &internal.RAGUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}
