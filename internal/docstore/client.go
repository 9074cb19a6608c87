package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"auditx/internal/config"
	"auditx/internal/metrics"
)

const (
	apiVersion  = "2018-12-31"
	maxAttempts = 5
)

var ErrNotConfigured = errors.New("document store not configured")

// Client reads audit documents from a Cosmos DB SQL API container over REST.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
	metrics    *metrics.Metrics
	now        func() time.Time
	sleep      func(time.Duration)
}

type listPayload struct {
	Documents []json.RawMessage `json:"Documents"`
	Embedded  json.RawMessage   `json:"_embedded"`
}

func NewClient(cfg config.Config, m *metrics.Metrics) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.CosmosTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.CosmosRateLimitRPS),
		metrics:    m,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

func (c *Client) resourceLink() string {
	return "dbs/" + c.cfg.CosmosDatabase + "/colls/" + c.cfg.CosmosContainer
}

// ListDocuments returns every document in the configured container,
// following continuation tokens until the last page.
func (c *Client) ListDocuments(ctx context.Context) ([]json.RawMessage, error) {
	if !c.cfg.CosmosConfigured() {
		return nil, ErrNotConfigured
	}

	all := []json.RawMessage{}
	seen := map[string]struct{}{}
	continuation := ""

	for {
		body, next, err := c.fetchPage(ctx, continuation)
		if err != nil {
			return nil, err
		}

		docs, err := decodeDocuments(body)
		if err != nil {
			return nil, err
		}
		all = append(all, docs...)

		if next == "" || len(docs) == 0 {
			break
		}
		if _, ok := seen[next]; ok {
			break
		}
		seen[next] = struct{}{}
		continuation = next
	}

	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, continuation string) ([]byte, string, error) {
	link := c.resourceLink()
	url := strings.TrimRight(c.cfg.CosmosEndpoint, "/") + "/" + link + "/docs"

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}

		date := c.now().UTC().Format(http.TimeFormat)
		token, err := masterKeyToken(http.MethodGet, "docs", link, date, c.cfg.CosmosKey)
		if err != nil {
			return nil, "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, "", err
		}
		req.Header.Set("Authorization", token)
		req.Header.Set("x-ms-date", date)
		req.Header.Set("x-ms-version", apiVersion)
		req.Header.Set("x-ms-documentdb-query-enablecrosspartition", "true")
		req.Header.Set("Accept", "application/json")
		if c.cfg.CosmosPageSize > 0 {
			req.Header.Set("x-ms-max-item-count", strconv.Itoa(c.cfg.CosmosPageSize))
		}
		if continuation != "" {
			req.Header.Set("x-ms-continuation", continuation)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				c.metrics.IncRetry("docstore", strconv.Itoa(resp.StatusCode))
				c.sleep(backoff(attempt, resp.Header.Get("x-ms-retry-after-ms")))
				lastErr = fmt.Errorf("document store status %d", resp.StatusCode)
				continue
			}
			return nil, "", fmt.Errorf("document store error: status=%d body=%s", resp.StatusCode, string(body))
		}

		return body, resp.Header.Get("x-ms-continuation"), nil
	}

	if lastErr == nil {
		lastErr = errors.New("document store request failed")
	}
	return nil, "", lastErr
}

// decodeDocuments accepts the Documents array or, failing that, an
// _embedded array. Neither present means an empty page.
func decodeDocuments(body []byte) ([]json.RawMessage, error) {
	var payload listPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode document page: %w", err)
	}
	if payload.Documents != nil {
		return payload.Documents, nil
	}
	var embedded []json.RawMessage
	if len(payload.Embedded) > 0 && json.Unmarshal(payload.Embedded, &embedded) == nil {
		return embedded, nil
	}
	return []json.RawMessage{}, nil
}

// backoff honours the server's retry hint when it sends one.
func backoff(attempt int, retryAfterMs string) time.Duration {
	if ms, err := strconv.Atoi(retryAfterMs); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
