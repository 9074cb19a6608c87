package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string
	LogDebug   bool
	HTTPAddr   string

	CosmosEndpoint     string
	CosmosKey          string
	CosmosDatabase     string
	CosmosContainer    string
	CosmosRateLimitRPS int
	CosmosTimeoutMs    int
	CosmosPageSize     int

	BlobBucket            string
	BlobCredentialsFile   string
	BlobUploadConcurrency int

	SearchEndpoint   string
	SearchKey        string
	SearchIndex      string
	SearchAPIVersion string
	SearchTopK       int

	LLMProvider           string
	AzureOpenAIEndpoint   string
	AzureOpenAIKey        string
	AzureOpenAIDeployment string
	AzureOpenAIAPIVersion string
	GeminiAPIKey          string
	GeminiModel           string

	RAGMaxTokens   int
	RAGTemperature float64
	RAGTopP        float64
	RAGMaxDocChars int

	MatchOKThreshold     float64
	MatchReviewThreshold float64
	MatchGapThreshold    float64

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	IntakeProvider     string
	IntakeLabel        string
	IntakeIntervalSec  int
	IntakeFetchMax     int
	IntakeProcessBatch int
	IntakeAutoSync     bool
	IntakeAutoExport   bool

	WorkflowTemplatesFile string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "auditx.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		LogDebug:   getEnvBool("LOG_DEBUG", false),
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),

		CosmosEndpoint:     getEnv("COSMOS_ENDPOINT", ""),
		CosmosKey:          getEnv("COSMOS_KEY", ""),
		CosmosDatabase:     getEnv("COSMOS_DATABASE", "AuditResults"),
		CosmosContainer:    getEnv("COSMOS_CONTAINER", "Audits"),
		CosmosRateLimitRPS: getEnvInt("COSMOS_RATE_LIMIT_RPS", 5),
		CosmosTimeoutMs:    getEnvInt("COSMOS_TIMEOUT_MS", 30000),
		CosmosPageSize:     getEnvInt("COSMOS_PAGE_SIZE", 100),

		BlobBucket:            getEnv("BLOB_BUCKET", "audit-evidence"),
		BlobCredentialsFile:   getEnv("BLOB_CREDENTIALS_FILE", ""),
		BlobUploadConcurrency: getEnvInt("BLOB_UPLOAD_CONCURRENCY", 4),

		SearchEndpoint:   getEnv("SEARCH_ENDPOINT", ""),
		SearchKey:        getEnv("SEARCH_KEY", ""),
		SearchIndex:      getEnv("SEARCH_INDEX", "audit-evidence-index"),
		SearchAPIVersion: getEnv("SEARCH_API_VERSION", "2023-11-01"),
		SearchTopK:       getEnvInt("SEARCH_TOP_K", 3),

		LLMProvider:           strings.ToLower(getEnv("LLM_PROVIDER", "azure")),
		AzureOpenAIEndpoint:   getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIKey:        getEnv("AZURE_OPENAI_KEY", ""),
		AzureOpenAIDeployment: getEnv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o"),
		AzureOpenAIAPIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		RAGMaxTokens:   getEnvInt("RAG_MAX_TOKENS", 800),
		RAGTemperature: getEnvFloat("RAG_TEMPERATURE", 0.3),
		RAGTopP:        getEnvFloat("RAG_TOP_P", 0.95),
		RAGMaxDocChars: getEnvInt("RAG_MAX_DOC_CHARS", 2000),

		MatchOKThreshold:     getEnvFloat("MATCH_OK_THRESHOLD", 0.90),
		MatchReviewThreshold: getEnvFloat("MATCH_REVIEW_THRESHOLD", 0.72),
		MatchGapThreshold:    getEnvFloat("MATCH_GAP_THRESHOLD", 0.08),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		IntakeProvider:     getEnv("INTAKE_PROVIDER", "gmail"),
		IntakeLabel:        getEnv("INTAKE_LABEL", "INBOX"),
		IntakeIntervalSec:  getEnvInt("INTAKE_INTERVAL_SEC", 60),
		IntakeFetchMax:     getEnvInt("INTAKE_FETCH_MAX", 20),
		IntakeProcessBatch: getEnvInt("INTAKE_PROCESS_BATCH", 20),
		IntakeAutoSync:     getEnvBool("INTAKE_AUTO_SYNC", true),
		IntakeAutoExport:   getEnvBool("INTAKE_AUTO_EXPORT", false),

		WorkflowTemplatesFile: getEnv("WORKFLOW_TEMPLATES_FILE", ""),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) CosmosConfigured() bool {
	return strings.TrimSpace(c.CosmosEndpoint) != "" && strings.TrimSpace(c.CosmosKey) != ""
}

func (c Config) SearchConfigured() bool {
	return strings.TrimSpace(c.SearchEndpoint) != "" && strings.TrimSpace(c.SearchKey) != ""
}

// LLMConfigured reports whether the selected provider has its credentials.
func (c Config) LLMConfigured() bool {
	switch c.LLMProvider {
	case "gemini":
		return strings.TrimSpace(c.GeminiAPIKey) != ""
	default:
		return strings.TrimSpace(c.AzureOpenAIEndpoint) != "" && strings.TrimSpace(c.AzureOpenAIKey) != ""
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	switch value {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
