package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditx/internal"
	"auditx/internal/config"
)

func TestChatCompletionsURL(t *testing.T) {
	want := "https://res.openai.azure.com/openai/deployments/gpt-4o/chat/completions?api-version=2024-02-15-preview"
	cases := []string{
		"https://res.openai.azure.com",
		"https://res.openai.azure.com/",
		"https://res.openai.azure.com/openai/deployments/other/chat/completions?api-version=2023-05-15",
	}
	for _, endpoint := range cases {
		assert.Equal(t, want, ChatCompletionsURL(endpoint, "gpt-4o", "2024-02-15-preview"), endpoint)
	}
}

func TestAzureGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt-4o/chat/completions", r.URL.Path)
		assert.Equal(t, "openai-key", r.Header.Get("api-key"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 800, body.MaxTokens)
		assert.InDelta(t, 0.3, body.Temperature, 1e-9)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "Is A-1.2 covered?", body.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Yes [Source 1]"}}],
			"usage":{"prompt_tokens":120,"completion_tokens":8,"total_tokens":128}}`))
	}))
	defer srv.Close()

	cfg := config.Config{
		AzureOpenAIEndpoint:   srv.URL,
		AzureOpenAIKey:        "openai-key",
		AzureOpenAIDeployment: "gpt-4o",
		AzureOpenAIAPIVersion: "2024-02-15-preview",
		RAGMaxTokens:          800,
		RAGTemperature:        0.3,
		RAGTopP:               0.95,
	}
	gen, err := NewGenerator(context.Background(), cfg)
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), "system", "Is A-1.2 covered?")
	require.NoError(t, err)
	assert.Equal(t, "Yes [Source 1]", out.Content)
	assert.Equal(t, &internal.RAGUsage{PromptTokens: 120, CompletionTokens: 8, TotalTokens: 128}, out.Usage)
}

func TestAzureGeneratorEmptyAndFailure(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	gen := NewAzureGenerator(config.Config{AzureOpenAIEndpoint: srv.URL, AzureOpenAIKey: "k", AzureOpenAIDeployment: "d"})
	out, err := gen.Generate(context.Background(), "s", "p")
	require.NoError(t, err)
	assert.Equal(t, noResponse, out.Content)
	assert.Nil(t, out.Usage)

	status = http.StatusTooManyRequests
	_, err = gen.Generate(context.Background(), "s", "p")
	assert.EqualError(t, err, "openai request failed: 429")
}

func TestNewGeneratorNotConfigured(t *testing.T) {
	_, err := NewGenerator(context.Background(), config.Config{LLMProvider: "azure"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewGenerator(context.Background(), config.Config{LLMProvider: "gemini", AzureOpenAIKey: "k", AzureOpenAIEndpoint: "e"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewGeminiGenerator(context.Background(), config.Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCheckConfiguration(t *testing.T) {
	st := CheckConfiguration(config.Config{
		LLMProvider:    "gemini",
		GeminiAPIKey:   "g",
		GeminiModel:    "gemini-2.5-flash",
		SearchEndpoint: "https://search",
		SearchIndex:    "idx",
	})
	assert.False(t, st.SearchConfigured)
	assert.True(t, st.LLMConfigured)
	assert.False(t, st.Ready)
	assert.Equal(t, "gemini-2.5-flash", st.Model)
}
