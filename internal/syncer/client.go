package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DocPayload is one document as submitted to the bulk-upsert endpoint.
type DocPayload struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	APIPath     string         `json:"api_path,omitempty"`
	DevMode     string         `json:"dev_mode,omitempty"`
	DocType     string         `json:"doc_type,omitempty"`
	Content     string         `json:"content"`
	SourceURL   string         `json:"source_url,omitempty"`
	Metadata    string         `json:"metadata,omitempty"`
	LastUpdated string         `json:"last_updated,omitempty"`
	ErrorCodes  []ErrorPayload `json:"error_codes,omitempty"`
}

type ErrorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
}

type bulkRequest struct {
	Source     string       `json:"source"`
	SourceName string       `json:"source_name,omitempty"`
	Documents  []DocPayload `json:"documents"`
}

// BulkResult mirrors the server's bulk-upsert response.
type BulkResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// Client submits upsert batches to the admin API with a fixed bearer
// token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// BulkUpsert posts one batch. A non-2xx response is an error for the whole
// batch.
func (c *Client) BulkUpsert(ctx context.Context, source, sourceName string, docs []DocPayload) (BulkResult, error) {
	var result BulkResult
	err := c.post(ctx, "/api/admin/bulk-upsert", bulkRequest{
		Source:     source,
		SourceName: sourceName,
		Documents:  docs,
	}, &result)
	return result, err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable — is specfusion serving? (%w)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
