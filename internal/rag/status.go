package rag

import (
	"errors"

	"auditx/internal/config"
)

var ErrNotConfigured = errors.New("rag not configured")

// Status reports which halves of the pipeline can run. Keys are never
// included.
type Status struct {
	SearchConfigured bool   `json:"searchConfigured"`
	LLMConfigured    bool   `json:"llmConfigured"`
	Provider         string `json:"provider"`
	SearchEndpoint   string `json:"searchEndpoint"`
	SearchIndex      string `json:"searchIndex"`
	Model            string `json:"model"`
	Ready            bool   `json:"ready"`
}

func CheckConfiguration(cfg config.Config) Status {
	st := Status{
		SearchConfigured: cfg.SearchConfigured(),
		LLMConfigured:    cfg.LLMConfigured(),
		Provider:         cfg.LLMProvider,
		SearchEndpoint:   cfg.SearchEndpoint,
		SearchIndex:      cfg.SearchIndex,
		Model:            cfg.AzureOpenAIDeployment,
	}
	if cfg.LLMProvider == providerGemini {
		st.Model = cfg.GeminiModel
	}
	st.Ready = st.SearchConfigured && st.LLMConfigured
	return st
}
