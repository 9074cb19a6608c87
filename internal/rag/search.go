package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"auditx/internal"
	"auditx/internal/config"
	"auditx/internal/metrics"
)

const indexBatchSize = 100

// SearchClient talks to an Azure AI Search index over REST.
type SearchClient struct {
	cfg        config.Config
	httpClient *http.Client
	metrics    *metrics.Metrics
}

type searchRequest struct {
	Search    string `json:"search"`
	QueryType string `json:"queryType"`
	Top       int    `json:"top"`
	Filter    string `json:"filter,omitempty"`
}

type searchResponse struct {
	Value []map[string]any `json:"value"`
}

func NewSearchClient(cfg config.Config, m *metrics.Metrics) *SearchClient {
	return &SearchClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		metrics:    m,
	}
}

func (c *SearchClient) docsURL(op string) string {
	q := url.Values{}
	q.Set("api-version", c.cfg.SearchAPIVersion)
	return strings.TrimRight(c.cfg.SearchEndpoint, "/") + "/indexes/" + url.PathEscape(c.cfg.SearchIndex) + "/docs/" + op + "?" + q.Encode()
}

func (c *SearchClient) Search(ctx context.Context, query string, topK int) ([]internal.SearchDocument, error) {
	return c.SearchAudit(ctx, query, "", topK)
}

// SearchAudit scopes the query to one audit's evidence. Indexes without a
// filterable audit_id answer 400, in which case the plain query is retried
// once.
func (c *SearchClient) SearchAudit(ctx context.Context, query, auditID string, topK int) ([]internal.SearchDocument, error) {
	if !c.cfg.SearchConfigured() {
		return nil, ErrNotConfigured
	}
	if topK <= 0 {
		topK = c.cfg.SearchTopK
	}

	body := searchRequest{Search: query, QueryType: "simple", Top: topK}
	if auditID != "" {
		body.Filter = "audit_id eq '" + strings.ReplaceAll(auditID, "'", "''") + "'"
	}

	status, raw, err := c.post(ctx, c.docsURL("search"), body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest {
		c.metrics.IncRetry("search", "400")
		fallback := searchRequest{Search: query, QueryType: "simple", Top: topK}
		status, raw, err = c.post(ctx, c.docsURL("search"), fallback)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("search failed: status=%d body=%s", status, string(raw))
	}

	var payload searchResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]internal.SearchDocument, 0, len(payload.Value))
	for _, fields := range payload.Value {
		score, _ := fields["@search.score"].(float64)
		docs = append(docs, internal.SearchDocument{Fields: fields, Score: score})
	}
	return docs, nil
}

// IndexDocuments pushes extracted evidence text with mergeOrUpload so
// re-processing a message replaces its documents.
func (c *SearchClient) IndexDocuments(ctx context.Context, docs []internal.EvidenceDocument) error {
	if !c.cfg.SearchConfigured() {
		return ErrNotConfigured
	}

	for start := 0; start < len(docs); start += indexBatchSize {
		end := min(start+indexBatchSize, len(docs))

		batch := make([]map[string]any, 0, end-start)
		for _, d := range docs[start:end] {
			batch = append(batch, map[string]any{
				"@search.action": "mergeOrUpload",
				"id":             d.ID,
				"audit_id":       d.AuditID,
				"document_title": d.Title,
				"content_text":   d.Content,
				"blob_name":      d.BlobName,
				"source":         d.Source,
			})
		}

		status, raw, err := c.post(ctx, c.docsURL("index"), map[string]any{"value": batch})
		if err != nil {
			return err
		}
		// 207 means some documents failed; the body says which.
		if status != http.StatusOK && status != http.StatusCreated {
			return fmt.Errorf("index documents: status=%d body=%s", status, string(raw))
		}
	}
	return nil
}

func (c *SearchClient) post(ctx context.Context, url string, payload any) (int, []byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.SearchKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

// Index schemas differ between deployments, hence the field fallbacks.

func documentTitle(d internal.SearchDocument, idx int) string {
	for _, key := range []string{"document_title", "documentName", "title"} {
		if s, ok := d.Fields[key].(string); ok && s != "" {
			return s
		}
	}
	return "Document " + strconv.Itoa(idx+1)
}

func documentContent(d internal.SearchDocument) string {
	for _, key := range []string{"content_text", "content", "text"} {
		if s, ok := d.Fields[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func documentID(d internal.SearchDocument) *string {
	for _, key := range []string{"image_document_id", "id"} {
		if s, ok := d.Fields[key].(string); ok && s != "" {
			return &s
		}
	}
	return nil
}
